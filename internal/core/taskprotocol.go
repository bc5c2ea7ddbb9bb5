package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
)

// CreateTaskInput carries the caller-supplied fields of a new task. Type and
// Priority default to implement and P2.
type CreateTaskInput struct {
	Delegator          string
	Assignees          []string
	Title              string
	Description        string
	Type               models.TaskType
	Priority           models.Priority
	DependsOn          []string
	AcceptanceCriteria []string
	Scope              []string
	Context            map[string]any
	HandoffTo          []string
	HandoffContext     string
}

// MessageInput is a message to append to a task. Empty fields take
// operation-specific defaults.
type MessageInput struct {
	Role    models.MessageRole
	From    string
	Content string
}

// TaskService implements the task delegation protocol on top of a TaskStore.
type TaskService interface {
	Create(ctx context.Context, in CreateTaskInput) (*models.Task, error)
	Get(taskID string) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, msg *MessageInput) (*models.Task, error)
	AddMessage(ctx context.Context, taskID string, msg MessageInput) (*models.Task, error)
	AddArtifact(ctx context.Context, taskID string, artifact models.Artifact) (*models.Task, error)
}

type taskService struct {
	store  TaskStore
	ids    TaskIDGenerator
	events EventLogger
	logger *zap.Logger
	now    Clock
}

// NewTaskService creates a TaskService. events and logger may be nil; now
// defaults to time.Now.
func NewTaskService(store TaskStore, ids TaskIDGenerator, events EventLogger, logger *zap.Logger, now Clock) TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &taskService{store: store, ids: ids, events: events, logger: logger, now: now}
}

// Create validates in, reserves a fresh ID and persists the task in the
// submitted state. Nothing is written when validation fails.
func (s *taskService) Create(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deps, err := s.validateCreate(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	task := &models.Task{
		Type:               in.Type,
		Status:             models.StatusSubmitted,
		Priority:           in.Priority,
		CreatedAt:          now,
		UpdatedAt:          now,
		Delegator:          in.Delegator,
		Assignees:          dedupe(in.Assignees),
		DependsOn:          dedupe(in.DependsOn),
		BlockedBy:          []string{},
		Title:              in.Title,
		Description:        in.Description,
		AcceptanceCriteria: in.AcceptanceCriteria,
		Scope:              in.Scope,
		Context:            copyContext(in.Context),
		HandoffTo:          dedupe(in.HandoffTo),
		HandoffContext:     in.HandoffContext,
	}
	if task.Type == "" {
		task.Type = models.TaskTypeImplement
	}
	if task.Priority == "" {
		task.Priority = models.P2
	}

	content := in.Description
	if content == "" {
		content = in.Title
	}
	task.Messages = []models.Message{{
		Role:      models.RoleDelegator,
		From:      in.Delegator,
		Timestamp: now,
		Content:   content,
	}}

	for _, dep := range deps {
		if dep.Status != models.StatusCompleted {
			task.BlockedBy = append(task.BlockedBy, dep.ID)
		}
	}

	id, err := s.ids.GenerateTaskID(now, func(candidate string) error {
		task.ID = candidate
		return s.store.Create(task)
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	task.ID = id

	emitEvent(s.events, s.logger, "task_created", map[string]any{
		"task_id":   task.ID,
		"title":     task.Title,
		"delegator": task.Delegator,
		"assignees": task.Assignees,
		"priority":  string(task.Priority),
	})
	return task, nil
}

// validateCreate checks every field of in and returns the loaded dependency
// records. All problems are collected before returning.
func (s *taskService) validateCreate(in CreateTaskInput) ([]*models.Task, error) {
	var problems []string

	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "task title is required")
	}
	if strings.TrimSpace(in.Delegator) == "" {
		problems = append(problems, "task delegator is required")
	}
	if len(dedupe(in.Assignees)) == 0 {
		problems = append(problems, "at least one assignee is required")
	}
	if in.Type != "" && !validTaskType(in.Type) {
		problems = append(problems, fmt.Sprintf("invalid task type: %s. Valid: %s", in.Type, joinEnum(models.TaskTypes)))
	}
	if in.Priority != "" && !validPriority(in.Priority) {
		problems = append(problems, fmt.Sprintf("invalid priority: %s. Valid: %s", in.Priority, joinEnum(models.Priorities)))
	}

	var deps []*models.Task
	for _, depID := range dedupe(in.DependsOn) {
		if !ValidTaskID(depID) {
			problems = append(problems, fmt.Sprintf("invalid dependency ID: %s", depID))
			continue
		}
		dep, err := s.store.Load(depID)
		if errors.Is(err, models.ErrTaskNotFound) {
			problems = append(problems, fmt.Sprintf("dependency not found: %s", depID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading dependency %s: %w", depID, err)
		}
		deps = append(deps, dep)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Subject: "task", Problems: problems}
	}
	return deps, nil
}

// Get loads a task by ID. A malformed record is a hard error here even
// though List skips it.
func (s *taskService) Get(taskID string) (*models.Task, error) {
	if !ValidTaskID(taskID) {
		return nil, &ValidationError{Subject: "task", Problems: []string{fmt.Sprintf("invalid task ID: %s", taskID)}}
	}
	return s.store.Load(taskID)
}

func (s *taskService) List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	return s.store.List(ctx, filter)
}

// UpdateStatus moves a task along one edge of the lifecycle table. When msg
// names a sender or content, a message tagged with the new status is
// appended as well.
func (s *taskService) UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, msg *MessageInput) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidStatus(status) {
		return nil, &ValidationError{Subject: "status", Problems: []string{
			fmt.Sprintf("invalid status: %s. Valid: %s", status, joinEnum(models.TaskStatuses)),
		}}
	}
	if msg != nil && msg.Role != "" && !validRole(msg.Role) {
		return nil, invalidRoleError(msg.Role)
	}

	task, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}

	from := task.Status
	if !CanTransition(from, status) {
		return nil, &TransitionError{From: from, To: status, Allowed: AllowedTransitions(from)}
	}

	now := laterOf(s.now().UTC(), task.UpdatedAt)
	task.Status = status
	task.UpdatedAt = now

	if msg != nil && (msg.From != "" || msg.Content != "") {
		m := models.Message{
			Role:         models.RoleExecutor,
			From:         "unknown",
			Timestamp:    now,
			Content:      fmt.Sprintf("Status changed to %s", status),
			StatusChange: status,
		}
		if msg.Role != "" {
			m.Role = msg.Role
		}
		if msg.From != "" {
			m.From = msg.From
		}
		if msg.Content != "" {
			m.Content = msg.Content
		}
		task.Messages = append(task.Messages, m)
	}

	if err := s.store.Save(task); err != nil {
		return nil, fmt.Errorf("saving task %s: %w", taskID, err)
	}

	emitEvent(s.events, s.logger, "task_status_changed", map[string]any{
		"task_id": taskID,
		"from":    string(from),
		"to":      string(status),
	})
	return task, nil
}

// AddMessage appends a message to a non-terminal task.
func (s *taskService) AddMessage(ctx context.Context, taskID string, msg MessageInput) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validRole(msg.Role) {
		return nil, invalidRoleError(msg.Role)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, &ValidationError{Subject: "message", Problems: []string{"message content is required"}}
	}

	task, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(task.Status) {
		return nil, &TerminalStateError{What: "messages", Status: task.Status}
	}

	from := msg.From
	if from == "" {
		from = "unknown"
	}
	now := laterOf(s.now().UTC(), task.UpdatedAt)
	task.Messages = append(task.Messages, models.Message{
		Role:      msg.Role,
		From:      from,
		Timestamp: now,
		Content:   msg.Content,
	})
	task.UpdatedAt = now

	if err := s.store.Save(task); err != nil {
		return nil, fmt.Errorf("saving task %s: %w", taskID, err)
	}

	emitEvent(s.events, s.logger, "task_message_added", map[string]any{
		"task_id": taskID,
		"role":    string(msg.Role),
		"from":    from,
	})
	return task, nil
}

// AddArtifact appends a typed artifact to a non-terminal task, stamping its
// addedAt time.
func (s *taskService) AddArtifact(ctx context.Context, taskID string, artifact models.Artifact) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !artifact.Type.Valid() {
		return nil, &ValidationError{Subject: "artifact", Problems: []string{
			fmt.Sprintf("invalid artifact type: %s. Valid: %s", artifact.Type, joinEnum(models.ArtifactTypes)),
		}}
	}
	if err := artifact.Validate(); err != nil {
		return nil, &ValidationError{Subject: "artifact", Problems: []string{err.Error()}}
	}

	task, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(task.Status) {
		return nil, &TerminalStateError{What: "artifacts", Status: task.Status}
	}

	now := laterOf(s.now().UTC(), task.UpdatedAt)
	artifact.AddedAt = now
	task.Artifacts = append(task.Artifacts, artifact)
	task.UpdatedAt = now

	if err := s.store.Save(task); err != nil {
		return nil, fmt.Errorf("saving task %s: %w", taskID, err)
	}

	emitEvent(s.events, s.logger, "task_artifact_added", map[string]any{
		"task_id": taskID,
		"type":    string(artifact.Type),
	})
	return task, nil
}

func invalidRoleError(role models.MessageRole) error {
	return &ValidationError{Subject: "message", Problems: []string{
		fmt.Sprintf("invalid message role: %s. Valid: %s", role, joinEnum([]models.MessageRole{models.RoleDelegator, models.RoleExecutor})),
	}}
}

// laterOf keeps updatedAt monotonic when the wall clock steps backwards.
func laterOf(now, previous time.Time) time.Time {
	if now.Before(previous) {
		return previous
	}
	return now
}

// dedupe drops empty and repeated entries, keeping first-seen order. It
// never returns nil.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func copyContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
