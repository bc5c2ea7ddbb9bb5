package models

import "time"

// TaskType represents the category of work a delegated task involves.
type TaskType string

const (
	TaskTypeImplement   TaskType = "implement"
	TaskTypeReview      TaskType = "review"
	TaskTypePlan        TaskType = "plan"
	TaskTypeInvestigate TaskType = "investigate"
	TaskTypeTest        TaskType = "test"
	TaskTypeDocument    TaskType = "document"
)

// TaskTypes lists every valid task type in display order.
var TaskTypes = []TaskType{
	TaskTypeImplement, TaskTypeReview, TaskTypePlan,
	TaskTypeInvestigate, TaskTypeTest, TaskTypeDocument,
}

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusSubmitted     TaskStatus = "submitted"
	StatusAccepted      TaskStatus = "accepted"
	StatusWorking       TaskStatus = "working"
	StatusInputRequired TaskStatus = "input-required"
	StatusCompleted     TaskStatus = "completed"
	StatusFailed        TaskStatus = "failed"
	StatusRejected      TaskStatus = "rejected"
	StatusCanceled      TaskStatus = "canceled"

	// StatusBlockedOnCanceled is only ever set by the dependency resolver,
	// when every outstanding dependency has ended without completing.
	StatusBlockedOnCanceled TaskStatus = "BLOCKED_ON_CANCELED"
)

// TaskStatuses lists every valid status in lifecycle order.
var TaskStatuses = []TaskStatus{
	StatusSubmitted, StatusAccepted, StatusWorking, StatusInputRequired,
	StatusCompleted, StatusFailed, StatusRejected, StatusCanceled,
	StatusBlockedOnCanceled,
}

// BlockedReasonCanceled marks a task whose blocking is permanent.
const BlockedReasonCanceled = "canceled"

// Priority represents the urgency level of a task.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// Priorities lists the valid priorities from most to least urgent.
var Priorities = []Priority{P0, P1, P2, P3}

// Rank returns the sort position of the priority. Unknown priorities sort
// after every known one.
func (p Priority) Rank() int {
	for i, known := range Priorities {
		if p == known {
			return i
		}
	}
	return len(Priorities)
}

// MessageRole identifies which side of a delegation wrote a message.
type MessageRole string

const (
	RoleDelegator MessageRole = "delegator"
	RoleExecutor  MessageRole = "executor"
)

// Message is one entry in a task's append-only conversation log.
type Message struct {
	Role         MessageRole `json:"role"`
	From         string      `json:"from"`
	Timestamp    time.Time   `json:"timestamp"`
	Content      string      `json:"content"`
	StatusChange TaskStatus  `json:"statusChange,omitempty"`
}

// Task is a unit of delegated work owned by one delegator and assigned to
// one or more teams. It is persisted as a single JSON record keyed by ID.
type Task struct {
	ID        string     `json:"id"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	Priority  Priority   `json:"priority"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	Delegator     string   `json:"delegator"`
	Assignees     []string `json:"assignees"`
	DependsOn     []string `json:"dependsOn"`
	BlockedBy     []string `json:"blockedBy"`
	BlockedReason string   `json:"blockedReason,omitempty"`

	Title              string         `json:"title"`
	Description        string         `json:"description"`
	AcceptanceCriteria []string       `json:"acceptanceCriteria"`
	Scope              []string       `json:"scope"`
	Context            map[string]any `json:"context"`

	Messages  []Message  `json:"messages"`
	Artifacts []Artifact `json:"artifacts"`

	HandoffTo               []string `json:"handoffTo"`
	HandoffContext          string   `json:"handoffContext"`
	HandoffProcessedTargets []string `json:"_handoffProcessedTargets,omitempty"`
	HandoffProcessed        bool     `json:"_handoffProcessed,omitempty"`
}

// HandoffFrom returns the source task ID recorded in the task's context when
// it was spawned by a hand-off, or "" otherwise.
func (t *Task) HandoffFrom() string {
	if t.Context == nil {
		return ""
	}
	from, _ := t.Context["handoffFrom"].(string)
	return from
}

// HasAssignee reports whether team is one of the task's assignees.
func (t *Task) HasAssignee(team string) bool {
	for _, a := range t.Assignees {
		if a == team {
			return true
		}
	}
	return false
}

// TaskFilter narrows a task listing. Empty fields match everything.
type TaskFilter struct {
	Status    TaskStatus
	Assignee  string
	Delegator string
	Type      TaskType
	Priority  Priority
}
