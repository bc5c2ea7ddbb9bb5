package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage delegated tasks (create, get, list, transition, message, artifact)",
	Long: `Unified task management commands.

Tasks are delegated by one party to one or more assignee teams and move
through a fixed lifecycle: submitted, accepted, working, input-required and
finally completed, failed, rejected or canceled.`,
}

// Flag values for "task create".
var (
	createTitle          string
	createDescription    string
	createDelegator      string
	createAssignees      []string
	createType           string
	createPriority       string
	createDependsOn      []string
	createCriteria       []string
	createScope          []string
	createContext        map[string]string
	createHandoffTo      []string
	createHandoffContext string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new delegated task",
	Long: `Create a new task in the submitted state.

--title, --delegator and at least one --assignee are required. Dependencies
named with --depends-on must already exist; the task starts blocked by every
dependency that has not completed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		in := core.CreateTaskInput{
			Delegator:          createDelegator,
			Assignees:          createAssignees,
			Title:              createTitle,
			Description:        createDescription,
			Type:               models.TaskType(createType),
			Priority:           models.Priority(createPriority),
			DependsOn:          createDependsOn,
			AcceptanceCriteria: createCriteria,
			Scope:              createScope,
			HandoffTo:          createHandoffTo,
			HandoffContext:     createHandoffContext,
		}
		if len(createContext) > 0 {
			in.Context = make(map[string]any, len(createContext))
			for k, v := range createContext {
				in.Context[k] = v
			}
		}

		task, err := Tasks.Create(commandContext(cmd), in)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created task %s\n", task.ID)
		if len(task.BlockedBy) > 0 {
			fmt.Fprintf(out, "  Blocked by: %s\n", strings.Join(task.BlockedBy, ", "))
		}
		return nil
	},
}

var taskGetJSON bool

var taskGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		task, err := Tasks.Get(args[0])
		if err != nil {
			return err
		}
		if taskGetJSON {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintln(cmd.OutOrStdout(), core.FormatTaskSummary(task))
		return nil
	},
}

// Flag values for "task list".
var (
	listStatus    string
	listAssignee  string
	listDelegator string
	listType      string
	listPriority  string
	listJSON      bool
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, highest priority first",
	Long: `List tasks ordered by priority, then creation time, then ID.

Every filter flag is optional; filters combine with AND.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		tasks, err := Tasks.List(commandContext(cmd), models.TaskFilter{
			Status:    models.TaskStatus(listStatus),
			Assignee:  listAssignee,
			Delegator: listDelegator,
			Type:      models.TaskType(listType),
			Priority:  models.Priority(listPriority),
		})
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if listJSON {
			if tasks == nil {
				tasks = []*models.Task{}
			}
			return writeJSON(cmd.OutOrStdout(), tasks)
		}
		fmt.Fprintln(cmd.OutOrStdout(), core.FormatTaskList(tasks))
		return nil
	},
}

// Flag values for "task transition".
var (
	transitionMessage string
	transitionFrom    string
	transitionRole    string
)

var taskTransitionCmd = &cobra.Command{
	Use:   "transition <task-id> <status>",
	Short: "Move a task to a new lifecycle status",
	Long: `Move a task along one edge of the lifecycle.

Allowed moves:
  submitted       -> accepted, rejected, canceled
  accepted        -> working, canceled
  working         -> completed, failed, input-required, canceled
  input-required  -> working, canceled

When --message or --from is given, a message tagged with the new status is
appended to the task.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		var msg *core.MessageInput
		if transitionMessage != "" || transitionFrom != "" {
			msg = &core.MessageInput{Role: models.MessageRole(transitionRole), From: transitionFrom, Content: transitionMessage}
		}
		task, err := Tasks.UpdateStatus(commandContext(cmd), args[0], models.TaskStatus(args[1]), msg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", task.ID, task.Status)
		return nil
	},
}

// Flag values for "task message".
var (
	messageContent string
	messageFrom    string
	messageRole    string
)

var taskMessageCmd = &cobra.Command{
	Use:   "message <task-id>",
	Short: "Append a message to a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		task, err := Tasks.AddMessage(commandContext(cmd), args[0], core.MessageInput{
			Role:    models.MessageRole(messageRole),
			From:    messageFrom,
			Content: messageContent,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added message to %s (%d messages)\n", task.ID, len(task.Messages))
		return nil
	},
}

// Flag values for "task artifact".
var (
	artifactType     string
	artifactSummary  string
	artifactPaths    []string
	artifactSteps    []string
	artifactFindings []string
	artifactPassed   int
	artifactFailed   int
	artifactAdded    int
)

var taskArtifactCmd = &cobra.Command{
	Use:   "artifact <task-id>",
	Short: "Attach a typed artifact to a task",
	Long: `Attach an artifact to a task that has not reached a terminal state.

Types and their payload flags:
  files-changed     --path (repeatable)
  test-results      --passed, --failed, --added
  review-findings   --finding (repeatable, "severity:file:line:message" or a plain message)
  plan              --step (repeatable)
  summary           --summary only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		artifact, err := buildArtifact()
		if err != nil {
			return err
		}
		task, err := Tasks.AddArtifact(commandContext(cmd), args[0], artifact)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s artifact to %s\n", artifact.Type, task.ID)
		return nil
	},
}

var taskSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarise the task queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}

		tasks, err := Tasks.List(commandContext(cmd), models.TaskFilter{})
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), core.TasksSummary(tasks))
		return nil
	},
}

// buildArtifact assembles an artifact from the "task artifact" flags.
func buildArtifact() (models.Artifact, error) {
	switch models.ArtifactType(artifactType) {
	case models.ArtifactFilesChanged:
		return models.NewFilesChangedArtifact(artifactSummary, artifactPaths...), nil
	case models.ArtifactTestResults:
		return models.NewTestResultsArtifact(artifactSummary, artifactPassed, artifactFailed, artifactAdded), nil
	case models.ArtifactReviewFindings:
		findings := make([]models.Finding, 0, len(artifactFindings))
		for _, raw := range artifactFindings {
			findings = append(findings, parseFinding(raw))
		}
		return models.NewReviewFindingsArtifact(artifactSummary, findings...), nil
	case models.ArtifactPlan:
		return models.NewPlanArtifact(artifactSummary, artifactSteps...), nil
	case models.ArtifactSummary:
		return models.NewSummaryArtifact(artifactSummary), nil
	}
	return models.Artifact{}, fmt.Errorf("invalid artifact type: %s. Valid: %s", artifactType, joinArtifactTypes())
}

// parseFinding reads "severity:file:line:message". Anything that does not
// fit that shape becomes a plain message.
func parseFinding(raw string) models.Finding {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) != 4 {
		return models.Finding{Message: raw}
	}
	line, err := strconv.Atoi(parts[2])
	if err != nil {
		return models.Finding{Message: raw}
	}
	return models.Finding{Severity: parts[0], File: parts[1], Line: line, Message: strings.TrimSpace(parts[3])}
}

func joinArtifactTypes() string {
	names := make([]string, len(models.ArtifactTypes))
	for i, t := range models.ArtifactTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	f := taskCreateCmd.Flags()
	f.StringVar(&createTitle, "title", "", "Task title (required)")
	f.StringVar(&createDescription, "description", "", "Task description")
	f.StringVar(&createDelegator, "delegator", "", "Who is delegating the task (required)")
	f.StringSliceVar(&createAssignees, "assignee", nil, "Assignee team (repeatable, at least one)")
	f.StringVar(&createType, "type", "", "Task type: implement, review, plan, investigate, test, document (default implement)")
	f.StringVar(&createPriority, "priority", "", "Priority: P0, P1, P2, P3 (default P2)")
	f.StringSliceVar(&createDependsOn, "depends-on", nil, "ID of a task this one depends on (repeatable)")
	f.StringArrayVar(&createCriteria, "criteria", nil, "Acceptance criterion (repeatable)")
	f.StringArrayVar(&createScope, "scope", nil, "Path or area in scope (repeatable)")
	f.StringToStringVar(&createContext, "context", nil, "Context entries as key=value")
	f.StringSliceVar(&createHandoffTo, "handoff-to", nil, "Team to hand off to on completion (repeatable)")
	f.StringVar(&createHandoffContext, "handoff-context", "", "Notes passed to hand-off tasks")

	taskGetCmd.Flags().BoolVar(&taskGetJSON, "json", false, "Output the task as JSON")

	lf := taskListCmd.Flags()
	lf.StringVar(&listStatus, "status", "", "Filter by status")
	lf.StringVar(&listAssignee, "assignee", "", "Filter by assignee team")
	lf.StringVar(&listDelegator, "delegator", "", "Filter by delegator")
	lf.StringVar(&listType, "type", "", "Filter by task type")
	lf.StringVar(&listPriority, "priority", "", "Filter by priority")
	lf.BoolVar(&listJSON, "json", false, "Output tasks as JSON")

	tf := taskTransitionCmd.Flags()
	tf.StringVar(&transitionMessage, "message", "", "Message to record with the change")
	tf.StringVar(&transitionFrom, "from", "", "Who made the change")
	tf.StringVar(&transitionRole, "role", "", "Message role: delegator or executor (default executor)")

	mf := taskMessageCmd.Flags()
	mf.StringVar(&messageContent, "content", "", "Message content (required)")
	mf.StringVar(&messageFrom, "from", "", "Message sender")
	mf.StringVar(&messageRole, "role", string(models.RoleExecutor), "Message role: delegator or executor")

	af := taskArtifactCmd.Flags()
	af.StringVar(&artifactType, "type", "", "Artifact type (required)")
	af.StringVar(&artifactSummary, "summary", "", "Artifact summary")
	af.StringArrayVar(&artifactPaths, "path", nil, "Changed file path (files-changed)")
	af.StringArrayVar(&artifactSteps, "step", nil, "Plan step (plan)")
	af.StringArrayVar(&artifactFindings, "finding", nil, "Review finding (review-findings)")
	af.IntVar(&artifactPassed, "passed", 0, "Passed test count (test-results)")
	af.IntVar(&artifactFailed, "failed", 0, "Failed test count (test-results)")
	af.IntVar(&artifactAdded, "added", 0, "Added test count (test-results)")

	for _, c := range []*cobra.Command{taskGetCmd, taskMessageCmd, taskArtifactCmd} {
		c.ValidArgsFunction = completeTaskIDs()
	}
	taskTransitionCmd.ValidArgsFunction = completeTransitionArgs
	_ = taskCreateCmd.RegisterFlagCompletionFunc("assignee", completeTeams)
	_ = taskCreateCmd.RegisterFlagCompletionFunc("handoff-to", completeTeams)
	_ = taskCreateCmd.RegisterFlagCompletionFunc("depends-on", completeTaskIDs())
	_ = taskCreateCmd.RegisterFlagCompletionFunc("type", completeTaskTypes)
	_ = taskCreateCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	_ = taskListCmd.RegisterFlagCompletionFunc("status", completeStatuses)
	_ = taskListCmd.RegisterFlagCompletionFunc("assignee", completeTeams)
	_ = taskListCmd.RegisterFlagCompletionFunc("type", completeTaskTypes)
	_ = taskListCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	_ = taskTransitionCmd.RegisterFlagCompletionFunc("role", completeRoles)
	_ = taskMessageCmd.RegisterFlagCompletionFunc("role", completeRoles)
	_ = taskArtifactCmd.RegisterFlagCompletionFunc("type", completeArtifactTypes)

	taskCmd.AddCommand(taskCreateCmd, taskGetCmd, taskListCmd, taskTransitionCmd, taskMessageCmd, taskArtifactCmd, taskSummaryCmd)
	rootCmd.AddCommand(taskCmd)
}
