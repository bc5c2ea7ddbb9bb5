// Package internal provides the App struct that wires all components of
// agentkit together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentkit-forge/agentkit/internal/cli"
	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/internal/logging"
	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
)

// State file names under the configured state directory.
const (
	tasksDirName     = "tasks"
	locksDirName     = "locks"
	stateFileName    = "orchestrator.json"
	lockFileName     = "orchestrator.lock"
	eventLogFileName = "events.log"
)

// App holds all service dependencies for agentkit.
type App struct {
	ProjectRoot string
	StateDir    string

	Config *models.Config
	Logger *zap.Logger

	// Storage layer
	TaskStore  storage.TaskStore
	StateStore storage.StateStore

	// Core services
	IDGen        core.TaskIDGenerator
	Tasks        core.TaskService
	Resolver     core.DependencyResolver
	Handoffs     core.HandoffProcessor
	SessionLock  core.SessionLockManager
	Roster       *core.TeamRoster
	Orchestrator core.Orchestrator
	Sessions     core.SessionHandoffWriter

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
}

// NewApp loads the configuration for projectRoot, wires every service and
// sets the CLI package variables.
func NewApp(projectRoot string) (*App, error) {
	app := &App{ProjectRoot: projectRoot}

	// --- Configuration ---
	cfgMgr := core.NewConfigurationManager(projectRoot)
	cfg, err := cfgMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfgMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	app.Logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	logger := app.Logger

	app.StateDir = cfg.StateDir
	if !filepath.IsAbs(app.StateDir) {
		app.StateDir = filepath.Join(projectRoot, app.StateDir)
	}
	tasksDir := filepath.Join(app.StateDir, tasksDirName)
	eventLogPath := filepath.Join(app.StateDir, eventLogFileName)

	// --- Observability ---
	// A missing event log disables history and metrics but nothing else.
	var events core.EventLogger
	var reader core.EventReader
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		logger.Warn("event log unavailable", zap.String("path", eventLogPath), zap.Error(err))
		app.EventLog = nil
	} else {
		adapter := &eventLogAdapter{log: app.EventLog}
		events, reader = adapter, adapter
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Storage layer ---
	app.TaskStore = storage.NewTaskStore(tasksDir, cfg.ListWorkers, logger)
	app.IDGen = core.NewTaskIDGenerator(app.TaskStore, cfg.IDRetryLimit)

	agentkitRoot := cfg.AgentkitRoot
	if !filepath.IsAbs(agentkitRoot) {
		agentkitRoot = filepath.Join(projectRoot, agentkitRoot)
	}
	app.Roster = core.LoadTeamRoster(agentkitRoot, logger)
	app.StateStore = storage.NewStateStore(filepath.Join(app.StateDir, stateFileName), projectRoot, app.Roster.IDs(), logger)

	// --- Core services ---
	app.SessionLock = core.NewSessionLockManager(filepath.Join(app.StateDir, lockFileName), cfg.LockStaleAfter, logger, nil)
	app.Tasks = core.NewTaskService(app.TaskStore, app.IDGen, events, logger, nil)
	app.Resolver = core.NewDependencyResolver(app.TaskStore, events, logger, nil)
	app.Handoffs = core.NewHandoffProcessor(app.TaskStore, app.IDGen, filepath.Join(app.StateDir, locksDirName), events, logger, nil)
	app.Orchestrator = core.NewOrchestrator(app.StateStore, app.SessionLock, core.NewPhaseMachine(app.Roster), events, reader, logger, nil)
	app.Sessions = core.NewSessionHandoffWriter(projectRoot, app.StateStore, storage.ReadGitState, reader, events, logger, nil)

	app.AlertEngine = observability.NewAlertEngine(app.TaskStore, app.SessionLock, cfg.Alerts, nil,
		observability.WithHandoffMarkers(app.Handoffs, cfg.LockStaleAfter))

	// --- Wire CLI package-level variables ---
	cli.Tasks = app.Tasks
	cli.Resolver = app.Resolver
	cli.Handoffs = app.Handoffs
	cli.Orchestrator = app.Orchestrator
	cli.Sessions = app.Sessions
	cli.HandoffDelegator = cfg.HandoffDelegator
	cli.TasksDir = tasksDir
	cli.EventLogPath = eventLogPath

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc

	logger.Debug("app initialized",
		zap.String("project_root", projectRoot),
		zap.String("state_dir", app.StateDir),
		zap.Int("teams", len(app.Roster.IDs())),
	)
	return app, nil
}

// Close releases the event log file handle and flushes the logger. It is
// safe to call on an App whose EventLog is nil.
func (a *App) Close() error {
	var err error
	if a.EventLog != nil {
		err = a.EventLog.Close()
	}
	if a.Logger != nil {
		if syncErr := logging.Sync(a.Logger); err == nil {
			err = syncErr
		}
	}
	return err
}

// ResolveProjectRoot determines the project root from the working directory.
func ResolveProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return core.ResolveProjectRoot(cwd)
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger and
// core.EventReader.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(action string, data map[string]any) error {
	return a.log.Append(action, data)
}

func (a *eventLogAdapter) RecentEvents(limit int) ([]core.RecentEvent, error) {
	events, err := a.log.Recent(limit)
	if err != nil {
		return nil, err
	}
	result := make([]core.RecentEvent, len(events))
	for i, e := range events {
		result[i] = core.RecentEvent{Timestamp: e.Timestamp, Action: e.Action}
		if team, ok := e.Data["team"].(string); ok {
			result[i].Team = team
		}
	}
	return result, nil
}
