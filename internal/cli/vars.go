package cli

import (
	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	Tasks        core.TaskService
	Resolver     core.DependencyResolver
	Handoffs     core.HandoffProcessor
	Orchestrator core.Orchestrator
	Sessions     core.SessionHandoffWriter

	// HandoffDelegator is the delegator recorded on tasks created by
	// hand-offs when --delegator is not given.
	HandoffDelegator = core.DefaultHandoffDelegator

	// TasksDir and EventLogPath are watched by the watch command.
	TasksDir     string
	EventLogPath string
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
)
