package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Inspect and resolve task dependencies",
}

var depsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Recompute which tasks are blocked by their dependencies",
	Long: `Recompute blockedBy for every task and persist the tasks whose blocking
state changed.

Tasks whose remaining dependencies all ended without completing are marked
BLOCKED_ON_CANCELED. Dependency cycles and references to missing tasks are
reported but do not fail the command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Resolver == nil {
			return fmt.Errorf("dependency resolver not initialized")
		}

		result, err := Resolver.Resolve(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("resolving dependencies: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(result.Unblocked) == 0 {
			fmt.Fprintln(out, "No tasks unblocked.")
		} else {
			fmt.Fprintf(out, "Unblocked %d task(s):\n", len(result.Unblocked))
			for _, id := range result.Unblocked {
				fmt.Fprintf(out, "  %s\n", id)
			}
		}
		fmt.Fprintf(out, "Updated %d task(s).\n", len(result.Changed))
		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "\n%d problem(s):\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
		}
		return nil
	},
}

func init() {
	depsCmd.AddCommand(depsResolveCmd)
	rootCmd.AddCommand(depsCmd)
}
