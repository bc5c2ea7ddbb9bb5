package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/spf13/cobra"
)

// testEnv is a complete set of services over a temporary state directory.
type testEnv struct {
	root     string
	stateDir string
	store    storage.TaskStore
	events   observability.EventLog
	locks    core.SessionLockManager
}

// eventAdapter lets the event log serve as a core.EventLogger.
type eventAdapter struct{ log observability.EventLog }

func (a eventAdapter) LogEvent(action string, data map[string]any) error {
	return a.log.Append(action, data)
}

func (a eventAdapter) RecentEvents(limit int) ([]core.RecentEvent, error) {
	events, err := a.log.Recent(limit)
	if err != nil {
		return nil, err
	}
	out := make([]core.RecentEvent, len(events))
	for i, e := range events {
		out[i] = core.RecentEvent{Timestamp: e.Timestamp, Action: e.Action}
	}
	return out, nil
}

// setupServices wires real services into the package variables and restores
// the previous values when the test ends.
func setupServices(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	stateDir := filepath.Join(root, ".claude", "state")
	tasksDir := filepath.Join(stateDir, "tasks")
	logPath := filepath.Join(stateDir, "events.log")

	events, err := observability.NewJSONLEventLog(logPath)
	if err != nil {
		t.Fatalf("NewJSONLEventLog: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	store := storage.NewTaskStore(tasksDir, 2, nil)
	ids := core.NewTaskIDGenerator(store, 0)
	logger := eventAdapter{log: events}
	states := storage.NewStateStore(filepath.Join(stateDir, "orchestrator.json"), root, core.DefaultTeamIDs, nil)
	locks := core.NewSessionLockManager(filepath.Join(stateDir, "orchestrator.lock"), time.Hour, nil, nil)

	origTasks, origResolver, origHandoffs, origOrch, origSessions := Tasks, Resolver, Handoffs, Orchestrator, Sessions
	origLog, origAlerts, origMetrics := EventLog, AlertEngine, MetricsCalc
	origTasksDir, origLogPath := TasksDir, EventLogPath
	t.Cleanup(func() {
		Tasks, Resolver, Handoffs, Orchestrator, Sessions = origTasks, origResolver, origHandoffs, origOrch, origSessions
		EventLog, AlertEngine, MetricsCalc = origLog, origAlerts, origMetrics
		TasksDir, EventLogPath = origTasksDir, origLogPath
	})

	Tasks = core.NewTaskService(store, ids, logger, nil, nil)
	Resolver = core.NewDependencyResolver(store, logger, nil, nil)
	Handoffs = core.NewHandoffProcessor(store, ids, filepath.Join(stateDir, "locks"), logger, nil, nil)
	Orchestrator = core.NewOrchestrator(states, locks, nil, logger, nil, nil, nil)
	Sessions = core.NewSessionHandoffWriter(root, states, storage.ReadGitState, logger, logger, nil, nil)
	EventLog = events
	MetricsCalc = observability.NewMetricsCalculator(events)
	AlertEngine = observability.NewAlertEngine(store, locks, core.DefaultConfig().Alerts, nil,
		observability.WithHandoffMarkers(Handoffs, time.Hour))
	TasksDir, EventLogPath = tasksDir, logPath

	return &testEnv{root: root, stateDir: stateDir, store: store, events: events, locks: locks}
}

// setFlag sets a package-level flag variable for the duration of the test.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	orig := *p
	*p = v
	t.Cleanup(func() { *p = orig })
}

// run invokes cmd's RunE with args and returns what it printed.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

// mustRun is run for commands expected to succeed.
func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := run(t, cmd, args...)
	if err != nil {
		t.Fatalf("%s %v: %v", cmd.Name(), args, err)
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
