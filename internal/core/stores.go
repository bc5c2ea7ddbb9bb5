package core

import (
	"context"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
)

// TaskStore is the subset of storage.TaskStore that core services need.
// Defining it here lets tests substitute in-memory fakes.
type TaskStore interface {
	Create(task *models.Task) error
	Load(taskID string) (*models.Task, error)
	Save(task *models.Task) error
	IDs() ([]string, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
}

// StateStore is the subset of storage.StateStore the orchestrator needs.
// Peek must not create or modify the state file.
type StateStore interface {
	Load() (*models.OrchestratorState, error)
	Peek() (*models.OrchestratorState, error)
	Save(state *models.OrchestratorState) error
}

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time
