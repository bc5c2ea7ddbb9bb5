package cli

import (
	"strings"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/spf13/cobra"
)

type completionFunc func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)

// completeTaskIDs returns a completion function that lists task IDs,
// skipping tasks in any of excludeStatuses.
func completeTaskIDs(excludeStatuses ...models.TaskStatus) completionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if Tasks == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		tasks, err := Tasks.List(commandContext(cmd), models.TaskFilter{})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		exclude := make(map[models.TaskStatus]bool)
		for _, s := range excludeStatuses {
			exclude[s] = true
		}

		var ids []string
		for _, task := range tasks {
			if exclude[task.Status] || !strings.HasPrefix(task.ID, toComplete) {
				continue
			}
			ids = append(ids, task.ID+"\t"+string(task.Status)+": "+task.Title)
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeTransitionArgs completes the task ID, then the statuses that task
// may move to next.
func completeTransitionArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeTaskIDs(models.StatusCompleted, models.StatusFailed, models.StatusRejected, models.StatusCanceled)(cmd, args, toComplete)
	case 1:
		if Tasks == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		task, err := Tasks.Get(args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var out []string
		for _, s := range core.AllowedTransitions(task.Status) {
			out = append(out, string(s))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completeTeams lists the teams of the configured roster.
func completeTeams(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	if Orchestrator == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	report, err := Orchestrator.Status()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return report.Teams, cobra.ShellCompDirectiveNoFileComp
}

// completeTeamArgs completes "orchestrate team <team-id> <status>".
func completeTeamArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeTeams(cmd, args, toComplete)
	case 1:
		return enumValues(models.TeamStatuses), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"P0\tCritical",
		"P1\tHigh",
		"P2\tMedium",
		"P3\tLow",
	}, cobra.ShellCompDirectiveNoFileComp
}

func completeStatuses(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return enumValues(models.TaskStatuses), cobra.ShellCompDirectiveNoFileComp
}

func completeTaskTypes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return enumValues(models.TaskTypes), cobra.ShellCompDirectiveNoFileComp
}

func completeArtifactTypes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return enumValues(models.ArtifactTypes), cobra.ShellCompDirectiveNoFileComp
}

func completeRoles(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{string(models.RoleDelegator), string(models.RoleExecutor)}, cobra.ShellCompDirectiveNoFileComp
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
