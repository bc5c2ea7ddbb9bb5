// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task protocol and the orchestrator as tools for agent sessions.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/agentkit-forge/agentkit/pkg/models"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Services are the agentkit components the server calls into. Tasks and
// Orchestrator are required; the rest may be nil, in which case the tools
// that need them report an error result.
type Services struct {
	Tasks            core.TaskService
	Resolver         core.DependencyResolver
	Handoffs         core.HandoffProcessor
	Orchestrator     core.Orchestrator
	Metrics          observability.MetricsCalculator
	Alerts           observability.AlertEngine
	HandoffDelegator string
}

// Server wraps agentkit services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates a new MCP server over svc.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if svc.HandoffDelegator == "" {
		svc.HandoffDelegator = core.DefaultHandoffDelegator
	}

	s := &Server{svc: svc}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "agentkit", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Status        string   `json:"status"`
	Priority      string   `json:"priority"`
	Delegator     string   `json:"delegator"`
	Assignees     []string `json:"assignees"`
	DependsOn     []string `json:"depends_on,omitempty"`
	BlockedBy     []string `json:"blocked_by,omitempty"`
	BlockedReason string   `json:"blocked_reason,omitempty"`
	HandoffTo     []string `json:"handoff_to,omitempty"`
	HandoffFrom   string   `json:"handoff_from,omitempty"`
	Messages      int      `json:"messages"`
	Artifacts     int      `json:"artifacts"`
	Created       string   `json:"created"`
	Updated       string   `json:"updated"`
	Summary       string   `json:"summary"`
}

type createTaskInput struct {
	Delegator          string         `json:"delegator" jsonschema:"who is delegating the task"`
	Assignees          []string       `json:"assignees" jsonschema:"one or more assignee team IDs"`
	Title              string         `json:"title" jsonschema:"short task title"`
	Description        string         `json:"description,omitempty" jsonschema:"longer description; used as the first message"`
	Type               string         `json:"type,omitempty" jsonschema:"implement, review, plan, investigate, test or document (default implement)"`
	Priority           string         `json:"priority,omitempty" jsonschema:"P0, P1, P2 or P3 (default P2)"`
	DependsOn          []string       `json:"depends_on,omitempty" jsonschema:"IDs of existing tasks this one depends on"`
	AcceptanceCriteria []string       `json:"acceptance_criteria,omitempty"`
	Scope              []string       `json:"scope,omitempty"`
	Context            map[string]any `json:"context,omitempty" jsonschema:"free-form context passed to the assignees"`
	HandoffTo          []string       `json:"handoff_to,omitempty" jsonschema:"teams to hand off to when the task completes"`
	HandoffContext     string         `json:"handoff_context,omitempty"`
}

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier (e.g. task-20260314-001-abc123)"`
}

type listTasksInput struct {
	Status    string `json:"status,omitempty" jsonschema:"filter by status"`
	Assignee  string `json:"assignee,omitempty" jsonschema:"filter by assignee team"`
	Delegator string `json:"delegator,omitempty" jsonschema:"filter by delegator"`
	Type      string `json:"type,omitempty" jsonschema:"filter by task type"`
	Priority  string `json:"priority,omitempty" jsonschema:"filter by priority"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type transitionTaskInput struct {
	TaskID  string `json:"task_id" jsonschema:"the task identifier"`
	Status  string `json:"status" jsonschema:"the new status: accepted, rejected, working, input-required, completed, failed or canceled"`
	Message string `json:"message,omitempty" jsonschema:"optional message recorded with the change"`
	From    string `json:"from,omitempty" jsonschema:"who made the change"`
	Role    string `json:"role,omitempty" jsonschema:"delegator or executor (default executor)"`
}

type addMessageInput struct {
	TaskID  string `json:"task_id" jsonschema:"the task identifier"`
	Content string `json:"content" jsonschema:"message content"`
	From    string `json:"from,omitempty" jsonschema:"message sender"`
	Role    string `json:"role,omitempty" jsonschema:"delegator or executor (default executor)"`
}

type emptyInput struct{}

type resolveOutput struct {
	Unblocked []string `json:"unblocked"`
	Errors    []string `json:"errors"`
	Changed   int      `json:"changed"`
}

type processHandoffsInput struct {
	Delegator string `json:"delegator,omitempty" jsonschema:"delegator recorded on created tasks"`
}

type handoffsOutput struct {
	Created []taskOutput `json:"created"`
	Errors  []string     `json:"errors"`
}

type statusOutput struct {
	Repo        string            `json:"repo"`
	Branch      string            `json:"branch"`
	SessionID   string            `json:"session_id,omitempty"`
	Phase       int               `json:"phase"`
	PhaseName   string            `json:"phase_name"`
	Completed   bool              `json:"completed"`
	NextAction  string            `json:"next_action"`
	Locked      bool              `json:"locked"`
	StaleLock   bool              `json:"stale_lock"`
	Teams       map[string]string `json:"teams"`
	PendingTodo int               `json:"pending_todos"`
	Text        string            `json:"text"`
}

type phaseOutput struct {
	Phase      int    `json:"phase"`
	PhaseName  string `json:"phase_name"`
	Completed  bool   `json:"completed"`
	NextAction string `json:"next_action"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated      int            `json:"tasks_created"`
	TasksCompleted    int            `json:"tasks_completed"`
	Transitions       map[string]int `json:"transitions"`
	MessagesAdded     int            `json:"messages_added"`
	ArtifactsAdded    int            `json:"artifacts_added"`
	TasksUnblocked    int            `json:"tasks_unblocked"`
	HandoffsCreated   int            `json:"handoffs_created"`
	PhaseChanges      int            `json:"phase_changes"`
	LockForceReleases int            `json:"lock_force_releases"`
	Sessions          int            `json:"sessions"`
	EventCount        int            `json:"event_count"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Delegate a new task to one or more teams. The task starts submitted and blocked by any dependency that has not completed.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by ID, including a rendered summary of its messages and artifacts.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, highest priority first, with optional status, assignee, delegator, type and priority filters.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "transition_task",
		Description: "Move a task to a new lifecycle status. Only the allowed lifecycle moves are accepted.",
	}, s.handleTransitionTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_message",
		Description: "Append a message to a task that has not reached a terminal state.",
	}, s.handleAddMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "resolve_dependencies",
		Description: "Recompute which tasks are blocked by their dependencies and report cycles and missing dependencies.",
	}, s.handleResolveDependencies)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "process_handoffs",
		Description: "Create follow-up tasks for the hand-off targets of completed tasks. Safe to call repeatedly.",
	}, s.handleProcessHandoffs)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_status",
		Description: "Get the orchestrator status: phase, session lock, team progress and todo items.",
	}, s.handleGetStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "advance_phase",
		Description: "Advance the workflow to the next phase. Fails while another session holds the lock.",
	}, s.handleAdvancePhase)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get metrics derived from the event log: tasks created and completed, transitions, hand-offs, phase changes and sessions.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (tasks waiting on input, permanently blocked tasks, stale session lock, queue size).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleCreateTask(ctx context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	task, err := s.svc.Tasks.Create(ctx, core.CreateTaskInput{
		Delegator:          input.Delegator,
		Assignees:          input.Assignees,
		Title:              input.Title,
		Description:        input.Description,
		Type:               models.TaskType(input.Type),
		Priority:           models.Priority(input.Priority),
		DependsOn:          input.DependsOn,
		AcceptanceCriteria: input.AcceptanceCriteria,
		Scope:              input.Scope,
		Context:            input.Context,
		HandoffTo:          input.HandoffTo,
		HandoffContext:     input.HandoffContext,
	})
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.svc.Tasks.Get(input.TaskID)
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleListTasks(ctx context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	tasks, err := s.svc.Tasks.List(ctx, models.TaskFilter{
		Status:    models.TaskStatus(input.Status),
		Assignee:  input.Assignee,
		Delegator: input.Delegator,
		Type:      models.TaskType(input.Type),
		Priority:  models.Priority(input.Priority),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{Tasks: []taskOutput{}}, nil
	}

	out := listTasksOutput{Tasks: make([]taskOutput, len(tasks)), Count: len(tasks)}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}
	return nil, out, nil
}

func (s *Server) handleTransitionTask(ctx context.Context, _ *gomcp.CallToolRequest, input transitionTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	if input.Status == "" {
		return errorResult("status is required"), taskOutput{}, nil
	}

	var msg *core.MessageInput
	if input.Message != "" || input.From != "" {
		msg = &core.MessageInput{Role: models.MessageRole(input.Role), From: input.From, Content: input.Message}
	}
	task, err := s.svc.Tasks.UpdateStatus(ctx, input.TaskID, models.TaskStatus(input.Status), msg)
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleAddMessage(ctx context.Context, _ *gomcp.CallToolRequest, input addMessageInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	role := models.MessageRole(input.Role)
	if role == "" {
		role = models.RoleExecutor
	}

	task, err := s.svc.Tasks.AddMessage(ctx, input.TaskID, core.MessageInput{Role: role, From: input.From, Content: input.Content})
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleResolveDependencies(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, resolveOutput, error) {
	empty := resolveOutput{Unblocked: []string{}, Errors: []string{}}
	if s.svc.Resolver == nil {
		return errorResult("dependency resolver not available"), empty, nil
	}

	result, err := s.svc.Resolver.Resolve(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("resolving dependencies: %s", err)), empty, nil
	}
	out := resolveOutput{Unblocked: result.Unblocked, Errors: result.Errors, Changed: len(result.Changed)}
	if out.Unblocked == nil {
		out.Unblocked = []string{}
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return nil, out, nil
}

func (s *Server) handleProcessHandoffs(ctx context.Context, _ *gomcp.CallToolRequest, input processHandoffsInput) (*gomcp.CallToolResult, handoffsOutput, error) {
	out := handoffsOutput{Created: []taskOutput{}, Errors: []string{}}
	if s.svc.Handoffs == nil {
		return errorResult("handoff processor not available"), out, nil
	}

	delegator := input.Delegator
	if delegator == "" {
		delegator = s.svc.HandoffDelegator
	}
	result, err := s.svc.Handoffs.Process(ctx, delegator)
	if err != nil {
		return errorResult(fmt.Sprintf("processing hand-offs: %s", err)), out, nil
	}
	for _, t := range result.Created {
		out.Created = append(out.Created, taskToOutput(t))
	}
	out.Errors = append(out.Errors, result.Errors...)
	return nil, out, nil
}

func (s *Server) handleGetStatus(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, statusOutput, error) {
	report, err := s.svc.Orchestrator.Status()
	if err != nil {
		return errorResult(fmt.Sprintf("reading status: %s", err)), statusOutput{Teams: map[string]string{}}, nil
	}

	st := report.State
	out := statusOutput{
		Repo:       st.RepoID,
		Branch:     st.Branch,
		SessionID:  st.SessionID,
		Phase:      st.CurrentPhase,
		PhaseName:  st.PhaseName,
		Completed:  st.Completed,
		NextAction: st.NextAction,
		Teams:      make(map[string]string, len(report.Teams)),
		Text:       core.FormatStatus(*report),
	}
	if report.Lock != nil {
		out.Locked = report.Lock.Locked
		out.StaleLock = report.Lock.Stale
	}
	for _, id := range report.Teams {
		status := models.TeamIdle
		if p, ok := st.TeamProgress[id]; ok {
			status = p.Status
		}
		out.Teams[id] = string(status)
	}
	for _, item := range st.TodoItems {
		if item.Status == "pending" {
			out.PendingTodo++
		}
	}
	return nil, out, nil
}

func (s *Server) handleAdvancePhase(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, phaseOutput, error) {
	state, err := s.svc.Orchestrator.Advance()
	if err != nil {
		return errorResult(err.Error()), phaseOutput{}, nil
	}
	return nil, phaseOutput{
		Phase:      state.CurrentPhase,
		PhaseName:  state.PhaseName,
		Completed:  state.Completed,
		NextAction: state.NextAction,
	}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.svc.Metrics == nil {
		return errorResult("metrics calculator not available"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	m, err := s.svc.Metrics.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:      m.TasksCreated,
		TasksCompleted:    m.TasksCompleted,
		Transitions:       m.Transitions,
		MessagesAdded:     m.MessagesAdded,
		ArtifactsAdded:    m.ArtifactsAdded,
		TasksUnblocked:    m.TasksUnblocked,
		HandoffsCreated:   m.HandoffsCreated,
		PhaseChanges:      m.PhaseChanges,
		LockForceReleases: m.LockForceReleases,
		Sessions:          m.Sessions,
		EventCount:        m.EventCount,
	}
	if out.Transitions == nil {
		out.Transitions = make(map[string]int)
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	empty := getAlertsOutput{Alerts: []alertOutput{}}
	if s.svc.Alerts == nil {
		return errorResult("alert engine not available"), empty, nil
	}

	alerts, err := s.svc.Alerts.Evaluate(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), empty, nil
	}

	out := getAlertsOutput{Alerts: make([]alertOutput, len(alerts)), Count: len(alerts)}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	assignees := t.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	return taskOutput{
		ID:            t.ID,
		Title:         t.Title,
		Type:          string(t.Type),
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		Delegator:     t.Delegator,
		Assignees:     assignees,
		DependsOn:     t.DependsOn,
		BlockedBy:     t.BlockedBy,
		BlockedReason: t.BlockedReason,
		HandoffTo:     t.HandoffTo,
		HandoffFrom:   t.HandoffFrom(),
		Messages:      len(t.Messages),
		Artifacts:     len(t.Artifacts),
		Created:       t.CreatedAt.Format(time.RFC3339),
		Updated:       t.UpdatedAt.Format(time.RFC3339),
		Summary:       core.FormatTaskSummary(t),
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{Transitions: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
