package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentkit-forge/agentkit/pkg/models"
)

var (
	// ErrIDSpaceExhausted is returned when no free task ID was found within
	// the retry ceiling.
	ErrIDSpaceExhausted = errors.New("task ID space exhausted")

	// ErrLockHeld is returned when the session lock belongs to another holder.
	ErrLockHeld = errors.New("session lock held")

	// ErrTerminalTask is matched by TerminalStateError.
	ErrTerminalTask = errors.New("task is in a terminal state")
)

// ValidationError reports bad caller input. Nothing is written when one is
// returned.
type ValidationError struct {
	Subject  string
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%s validation failed:\n  - %s", e.Subject, strings.Join(e.Problems, "\n  - "))
}

// TransitionError reports a status change that the lifecycle table forbids.
type TransitionError struct {
	From    models.TaskStatus
	To      models.TaskStatus
	Allowed []models.TaskStatus
}

func (e *TransitionError) Error() string {
	allowed := "none (terminal state)"
	if len(e.Allowed) > 0 {
		names := make([]string, len(e.Allowed))
		for i, s := range e.Allowed {
			names[i] = string(s)
		}
		allowed = strings.Join(names, ", ")
	}
	return fmt.Sprintf("invalid transition: %s → %s. Allowed: %s", e.From, e.To, allowed)
}

// TerminalStateError reports an append attempted on a finished task.
type TerminalStateError struct {
	What   string // "messages" or "artifacts"
	Status models.TaskStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("cannot add %s to task in terminal state: %s", e.What, e.Status)
}

func (e *TerminalStateError) Is(target error) bool {
	return target == ErrTerminalTask
}

// LockHeldError carries the holder of a session lock that could not be
// acquired. It matches ErrLockHeld with errors.Is.
type LockHeldError struct {
	Holder *models.SessionLock
}

func (e *LockHeldError) Error() string {
	if e.Holder == nil {
		return "session lock exists but is unreadable. Use force-unlock to override."
	}
	return fmt.Sprintf("session locked by PID %d since %s. Use force-unlock to override.",
		e.Holder.PID, e.Holder.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
}

func (e *LockHeldError) Is(target error) bool {
	return target == ErrLockHeld
}

func joinEnum[T ~string](values []T) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
