package models

import (
	"encoding/json"
	"time"
)

// StateSchemaVersion is written into every orchestrator state record.
const StateSchemaVersion = "1.0.0"

// TeamStatus is the coarse progress marker tracked per team.
type TeamStatus string

const (
	TeamIdle       TeamStatus = "idle"
	TeamInProgress TeamStatus = "in_progress"
	TeamBlocked    TeamStatus = "blocked"
	TeamDone       TeamStatus = "done"
)

// TeamStatuses lists every valid team status.
var TeamStatuses = []TeamStatus{TeamIdle, TeamInProgress, TeamBlocked, TeamDone}

// TeamProgress is one team's entry in the orchestrator state.
type TeamProgress struct {
	Status      TeamStatus `json:"status"`
	Notes       string     `json:"notes"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// TodoItem is a free-form work item tracked alongside the phase.
type TodoItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Team   string `json:"team,omitempty"`
}

// OrchestratorState is the single per-repository record describing where the
// project sits in the five-phase workflow.
type OrchestratorState struct {
	SchemaVersion      string                  `json:"schema_version"`
	RepoID             string                  `json:"repo_id"`
	Branch             string                  `json:"branch"`
	SessionID          string                  `json:"session_id"`
	CurrentPhase       int                     `json:"current_phase"`
	PhaseName          string                  `json:"phase_name"`
	LastPhaseCompleted int                     `json:"last_phase_completed"`
	NextAction         string                  `json:"next_action"`
	TeamProgress       map[string]TeamProgress `json:"team_progress"`
	TodoItems          []TodoItem              `json:"todo_items"`
	RecentResults      []json.RawMessage       `json:"recent_results"`
	Completed          bool                    `json:"completed"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *OrchestratorState) Clone() *OrchestratorState {
	c := *s
	c.TeamProgress = make(map[string]TeamProgress, len(s.TeamProgress))
	for k, v := range s.TeamProgress {
		c.TeamProgress[k] = v
	}
	c.TodoItems = append([]TodoItem(nil), s.TodoItems...)
	c.RecentResults = append([]json.RawMessage(nil), s.RecentResults...)
	return &c
}

// SessionLock is the content of the orchestrator lock file. Its presence on
// disk means a session is active.
type SessionLock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	SessionID string    `json:"session_id"`
}
