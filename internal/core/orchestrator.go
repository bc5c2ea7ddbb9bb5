package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
)

// statusEventCount is how many recent events the status screen shows.
const statusEventCount = 5

// EventReader reads back the tail of the event log.
type EventReader interface {
	RecentEvents(limit int) ([]RecentEvent, error)
}

// Orchestrator runs session-level operations on the orchestrator state.
// Every mutation happens under the session lock and logs one event.
type Orchestrator interface {
	Status() (*StatusReport, error)
	Advance() (*models.OrchestratorState, error)
	SetPhase(phase int) (*models.OrchestratorState, error)
	UpdateTeam(team string, status models.TeamStatus, notes *string) (*models.OrchestratorState, error)
	AddTodo(title, team string) (*models.TodoItem, error)
	ForceUnlock() (bool, error)
	Invoke() (*models.OrchestratorState, error)
}

type orchestrator struct {
	states  StateStore
	locks   SessionLockManager
	machine *PhaseMachine
	events  EventLogger
	reader  EventReader
	logger  *zap.Logger
	now     Clock
}

// NewOrchestrator wires an Orchestrator. events, reader and logger may be
// nil; now defaults to time.Now.
func NewOrchestrator(states StateStore, locks SessionLockManager, machine *PhaseMachine, events EventLogger, reader EventReader, logger *zap.Logger, now Clock) Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if machine == nil {
		machine = NewPhaseMachine(nil)
	}
	return &orchestrator{states: states, locks: locks, machine: machine, events: events, reader: reader, logger: logger, now: now}
}

// Status gathers the state, lock and recent events without taking the lock.
// It never writes: before the first mutation it reports the default state
// without persisting it.
func (o *orchestrator) Status() (*StatusReport, error) {
	state, err := o.states.Peek()
	if err != nil {
		return nil, fmt.Errorf("loading orchestrator state: %w", err)
	}
	lock, err := o.locks.Check()
	if err != nil {
		return nil, err
	}
	report := &StatusReport{State: state, Lock: lock, Teams: o.machine.Roster().IDs()}
	if o.reader != nil {
		events, err := o.reader.RecentEvents(statusEventCount)
		if err != nil {
			o.logger.Warn("reading recent events failed", zap.Error(err))
		}
		report.Events = events
	}
	return report, nil
}

func (o *orchestrator) Advance() (*models.OrchestratorState, error) {
	return o.mutate(func(state *models.OrchestratorState) (*models.OrchestratorState, string, map[string]any, error) {
		next, err := o.machine.Advance(state)
		if err != nil {
			return nil, "", nil, err
		}
		return next, "phase_advanced", map[string]any{
			"from":       state.CurrentPhase,
			"phase":      next.CurrentPhase,
			"phase_name": next.PhaseName,
			"completed":  next.Completed,
		}, nil
	})
}

func (o *orchestrator) SetPhase(phase int) (*models.OrchestratorState, error) {
	return o.mutate(func(state *models.OrchestratorState) (*models.OrchestratorState, string, map[string]any, error) {
		next, err := o.machine.SetPhase(state, phase)
		if err != nil {
			return nil, "", nil, err
		}
		return next, "phase_set", map[string]any{"phase": phase, "phase_name": next.PhaseName}, nil
	})
}

func (o *orchestrator) UpdateTeam(team string, status models.TeamStatus, notes *string) (*models.OrchestratorState, error) {
	return o.mutate(func(state *models.OrchestratorState) (*models.OrchestratorState, string, map[string]any, error) {
		next, err := o.machine.UpdateTeamStatus(state, team, status, notes, o.now())
		if err != nil {
			return nil, "", nil, err
		}
		return next, "team_status_updated", map[string]any{"team": team, "status": string(status)}, nil
	})
}

// AddTodo appends a pending todo item, optionally owned by a rostered team.
func (o *orchestrator) AddTodo(title, team string) (*models.TodoItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Subject: "todo", Problems: []string{"todo title is required"}}
	}
	if team != "" && !o.machine.Roster().Has(team) {
		return nil, &ValidationError{Subject: "todo", Problems: []string{
			fmt.Sprintf("unknown team: %s. Valid teams: %s", team, joinEnum(o.machine.Roster().IDs())),
		}}
	}

	var item models.TodoItem
	_, err := o.mutate(func(state *models.OrchestratorState) (*models.OrchestratorState, string, map[string]any, error) {
		next := state.Clone()
		item = models.TodoItem{
			ID:     fmt.Sprintf("todo-%d", nextTodoNumber(state.TodoItems)),
			Title:  title,
			Status: "pending",
			Team:   team,
		}
		next.TodoItems = append(next.TodoItems, item)
		return next, "todo_added", map[string]any{"todo_id": item.ID, "team": team}, nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ForceUnlock removes the session lock whoever holds it.
func (o *orchestrator) ForceUnlock() (bool, error) {
	released, err := o.locks.Release()
	if err != nil {
		return false, err
	}
	if released {
		emitEvent(o.events, o.logger, "lock_force_released", map[string]any{})
	}
	return released, nil
}

// Invoke opens an orchestration session: it takes the lock, records the
// session ID in the state and logs the current phase.
func (o *orchestrator) Invoke() (*models.OrchestratorState, error) {
	var sessionID string
	return o.mutateWithLock(func(lock *models.SessionLock) {
		sessionID = lock.SessionID
	}, func(state *models.OrchestratorState) (*models.OrchestratorState, string, map[string]any, error) {
		next := state.Clone()
		next.SessionID = sessionID
		return next, "orchestrate_invoked", map[string]any{
			"phase":      next.CurrentPhase,
			"phase_name": next.PhaseName,
			"session_id": sessionID,
		}, nil
	})
}

type mutation func(*models.OrchestratorState) (*models.OrchestratorState, string, map[string]any, error)

func (o *orchestrator) mutate(fn mutation) (*models.OrchestratorState, error) {
	return o.mutateWithLock(nil, fn)
}

// mutateWithLock runs fn against freshly loaded state while holding the
// session lock, persists the result and logs fn's event.
func (o *orchestrator) mutateWithLock(onLock func(*models.SessionLock), fn mutation) (*models.OrchestratorState, error) {
	res, err := o.locks.Acquire(LockHolder{})
	if err != nil {
		return nil, err
	}
	if !res.Acquired {
		return nil, &LockHeldError{Holder: res.Existing}
	}
	defer func() {
		if _, err := o.locks.Release(); err != nil {
			o.logger.Warn("releasing session lock failed", zap.Error(err))
		}
	}()
	if onLock != nil {
		onLock(res.Lock)
	}

	state, err := o.states.Load()
	if err != nil {
		return nil, fmt.Errorf("loading orchestrator state: %w", err)
	}
	next, action, data, err := fn(state)
	if err != nil {
		return nil, err
	}
	if err := o.states.Save(next); err != nil {
		return nil, fmt.Errorf("saving orchestrator state: %w", err)
	}
	emitEvent(o.events, o.logger, action, data)
	return next, nil
}

func nextTodoNumber(items []models.TodoItem) int {
	highest := 0
	for _, item := range items {
		if n, err := strconv.Atoi(strings.TrimPrefix(item.ID, "todo-")); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}
