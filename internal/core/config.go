// Package core contains the coordination logic of agentkit: the task
// delegation protocol, dependency resolution, hand-offs, the session lock,
// the phase workflow and configuration.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/spf13/viper"
)

// ConfigFileName is the per-project configuration file, without extension.
const ConfigFileName = ".agentkit"

// ProjectRootEnv overrides project root discovery.
const ProjectRootEnv = "AGENTKIT_PROJECT_ROOT"

// ConfigurationManager loads and validates the tool configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper to read
// .agentkit.yaml with AGENTKIT_* environment overrides.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager reading the config
// file in basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() *models.Config {
	return &models.Config{
		StateDir:         filepath.Join(".claude", "state"),
		AgentkitRoot:     ".agentkit",
		LockStaleAfter:   DefaultLockStaleAfter,
		ListWorkers:      8,
		IDRetryLimit:     DefaultIDRetryLimit,
		HandoffDelegator: DefaultHandoffDelegator,
		Log:              models.LogConfig{Level: "warn", Format: "console"},
		Alerts:           models.AlertConfig{InputRequiredHours: 24, MaxQueueSize: 25},
	}
}

// LoadConfig reads .agentkit.yaml from the base path. A missing file yields
// the defaults, still subject to environment overrides.
func (cm *viperConfigManager) LoadConfig() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	// SetConfigName would also match the .agentkit directory, so the file
	// is named explicitly.
	path := filepath.Join(cm.basePath, ConfigFileName+".yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix("AGENTKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("state_dir", def.StateDir)
	v.SetDefault("agentkit_root", def.AgentkitRoot)
	v.SetDefault("lock.stale_after", def.LockStaleAfter.String())
	v.SetDefault("tasks.list_workers", def.ListWorkers)
	v.SetDefault("tasks.id_retry_limit", def.IDRetryLimit)
	v.SetDefault("handoff.delegator", def.HandoffDelegator)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("alerts.input_required_hours", def.Alerts.InputRequiredHours)
	v.SetDefault("alerts.max_queue_size", def.Alerts.MaxQueueSize)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &models.Config{
		StateDir:         v.GetString("state_dir"),
		AgentkitRoot:     v.GetString("agentkit_root"),
		ListWorkers:      v.GetInt("tasks.list_workers"),
		IDRetryLimit:     v.GetInt("tasks.id_retry_limit"),
		HandoffDelegator: v.GetString("handoff.delegator"),
		Log: models.LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Alerts: models.AlertConfig{
			InputRequiredHours: v.GetInt("alerts.input_required_hours"),
			MaxQueueSize:       v.GetInt("alerts.max_queue_size"),
		},
	}

	staleAfter, err := time.ParseDuration(v.GetString("lock.stale_after"))
	if err != nil {
		return nil, fmt.Errorf("lock.stale_after: %w", err)
	}
	cfg.LockStaleAfter = staleAfter

	return cfg, nil
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
)

// ValidateConfig checks cfg for invalid values and reports every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string
	if cfg.StateDir == "" {
		errs = append(errs, "state_dir must not be empty")
	}
	if cfg.AgentkitRoot == "" {
		errs = append(errs, "agentkit_root must not be empty")
	}
	if cfg.LockStaleAfter <= 0 {
		errs = append(errs, fmt.Sprintf("lock.stale_after must be positive, got %s", cfg.LockStaleAfter))
	}
	if cfg.ListWorkers < 1 {
		errs = append(errs, fmt.Sprintf("tasks.list_workers must be at least 1, got %d", cfg.ListWorkers))
	}
	if cfg.IDRetryLimit < 1 {
		errs = append(errs, fmt.Sprintf("tasks.id_retry_limit must be at least 1, got %d", cfg.IDRetryLimit))
	}
	if cfg.HandoffDelegator == "" {
		errs = append(errs, "handoff.delegator must not be empty")
	}
	if !contains(validLogLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: %s", cfg.Log.Level, strings.Join(validLogLevels, ", ")))
	}
	if !contains(validLogFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: %s", cfg.Log.Format, strings.Join(validLogFormats, ", ")))
	}
	if cfg.Alerts.InputRequiredHours < 1 {
		errs = append(errs, fmt.Sprintf("alerts.input_required_hours must be at least 1, got %d", cfg.Alerts.InputRequiredHours))
	}
	if cfg.Alerts.MaxQueueSize < 1 {
		errs = append(errs, fmt.Sprintf("alerts.max_queue_size must be at least 1, got %d", cfg.Alerts.MaxQueueSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// rootMarkers identify a project root when walking up from the working
// directory.
var rootMarkers = []string{
	ConfigFileName + ".yaml",
	".agentkit-repo",
	filepath.Join(".claude", "state"),
}

// ResolveProjectRoot returns AGENTKIT_PROJECT_ROOT when set. Otherwise it
// walks up from cwd to the first directory holding a root marker, falling
// back to cwd.
func ResolveProjectRoot(cwd string) string {
	if root := os.Getenv(ProjectRootEnv); root != "" {
		return root
	}
	dir := cwd
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}
