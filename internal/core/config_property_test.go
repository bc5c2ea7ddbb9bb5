package core

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"pgregory.net/rapid"
)

func genConfig(t *rapid.T) models.Config {
	return models.Config{
		StateDir:         rapid.StringMatching(`[a-z]{1,8}/[a-z]{1,8}`).Draw(t, "state_dir"),
		AgentkitRoot:     rapid.StringMatching(`\.?[a-z]{1,10}`).Draw(t, "agentkit_root"),
		LockStaleAfter:   time.Duration(rapid.IntRange(1, 720).Draw(t, "stale_minutes")) * time.Minute,
		ListWorkers:      rapid.IntRange(1, 64).Draw(t, "list_workers"),
		IDRetryLimit:     rapid.IntRange(1, 500).Draw(t, "id_retry_limit"),
		HandoffDelegator: rapid.StringMatching(`team-[a-z]{1,8}`).Draw(t, "delegator"),
		Log: models.LogConfig{
			Level:  rapid.SampledFrom(validLogLevels).Draw(t, "log_level"),
			Format: rapid.SampledFrom(validLogFormats).Draw(t, "log_format"),
		},
		Alerts: models.AlertConfig{
			InputRequiredHours: rapid.IntRange(1, 240).Draw(t, "input_required_hours"),
			MaxQueueSize:       rapid.IntRange(1, 1000).Draw(t, "max_queue_size"),
		},
	}
}

func writeConfigYAML(dir string, c models.Config) error {
	content := fmt.Sprintf(`state_dir: %q
agentkit_root: %q
lock:
  stale_after: %s
tasks:
  list_workers: %d
  id_retry_limit: %d
handoff:
  delegator: %q
log:
  level: %s
  format: %s
alerts:
  input_required_hours: %d
  max_queue_size: %d
`, c.StateDir, c.AgentkitRoot, c.LockStaleAfter, c.ListWorkers, c.IDRetryLimit,
		c.HandoffDelegator, c.Log.Level, c.Log.Format,
		c.Alerts.InputRequiredHours, c.Alerts.MaxQueueSize)
	return os.WriteFile(filepath.Join(dir, ConfigFileName+".yaml"), []byte(content), 0o644)
}

// Feature: configuration, Property 6: File values load back unchanged and validate
func TestProperty_ConfigFileRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		want := genConfig(rt)
		if err := writeConfigYAML(dir, want); err != nil {
			rt.Fatalf("writing config: %v", err)
		}

		cm := NewConfigurationManager(dir)
		got, err := cm.LoadConfig()
		if err != nil {
			rt.Fatalf("LoadConfig: %v", err)
		}
		if *got != want {
			rt.Fatalf("loaded %+v, want %+v", *got, want)
		}
		if err := cm.ValidateConfig(got); err != nil {
			rt.Fatalf("generated config failed validation: %v", err)
		}
	})
}

// Feature: configuration, Property 7: Non-positive counts never validate
func TestProperty_ConfigRejectsNonPositiveCounts(t *testing.T) {
	cm := NewConfigurationManager("")
	rapid.Check(t, func(rt *rapid.T) {
		cfg := genConfig(rt)
		bad := rapid.IntRange(-100, 0).Draw(rt, "bad")
		switch rapid.IntRange(0, 3).Draw(rt, "field") {
		case 0:
			cfg.ListWorkers = bad
		case 1:
			cfg.IDRetryLimit = bad
		case 2:
			cfg.Alerts.InputRequiredHours = bad
		case 3:
			cfg.Alerts.MaxQueueSize = bad
		}
		if err := cm.ValidateConfig(&cfg); err == nil {
			rt.Fatalf("config with a non-positive count validated: %+v", cfg)
		}
	})
}
