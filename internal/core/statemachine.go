package core

import "github.com/agentkit-forge/agentkit/pkg/models"

// transitions is the task lifecycle table. States absent from the map,
// including BLOCKED_ON_CANCELED, have no user-requested edges.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.StatusSubmitted:     {models.StatusAccepted, models.StatusRejected, models.StatusCanceled},
	models.StatusAccepted:      {models.StatusWorking, models.StatusRejected, models.StatusCanceled},
	models.StatusWorking:       {models.StatusCompleted, models.StatusFailed, models.StatusInputRequired, models.StatusCanceled},
	models.StatusInputRequired: {models.StatusWorking, models.StatusCanceled},
}

// AllowedTransitions returns the statuses reachable from status by a direct
// transition request.
func AllowedTransitions(status models.TaskStatus) []models.TaskStatus {
	return append([]models.TaskStatus(nil), transitions[status]...)
}

// CanTransition reports whether from → to is an edge of the lifecycle table.
func CanTransition(from, to models.TaskStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further work happens on a task in status.
func IsTerminal(status models.TaskStatus) bool {
	switch status {
	case models.StatusCompleted, models.StatusFailed, models.StatusRejected,
		models.StatusCanceled, models.StatusBlockedOnCanceled:
		return true
	}
	return false
}

// isPermanentBlocker reports whether a dependency in status can never
// complete.
func isPermanentBlocker(status models.TaskStatus) bool {
	switch status {
	case models.StatusFailed, models.StatusRejected, models.StatusCanceled:
		return true
	}
	return false
}

// ValidStatus reports whether status is a known lifecycle state.
func ValidStatus(status models.TaskStatus) bool {
	for _, s := range models.TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func validTaskType(t models.TaskType) bool {
	for _, known := range models.TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

func validPriority(p models.Priority) bool {
	for _, known := range models.Priorities {
		if p == known {
			return true
		}
	}
	return false
}

func validRole(r models.MessageRole) bool {
	return r == models.RoleDelegator || r == models.RoleExecutor
}
