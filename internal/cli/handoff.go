package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	handoffDelegatorFlag string
	handoffSaveFlag      bool
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Process hand-offs between teams and sessions",
}

var handoffProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Create follow-up tasks for completed work",
	Long: `Create one task per hand-off target of every completed task.

Each (task, target) pair is handled at most once, so the command is safe to
re-run after an interruption. Tasks locked by another hand-off run are
skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Handoffs == nil {
			return fmt.Errorf("handoff processor not initialized")
		}

		delegator := handoffDelegatorFlag
		if delegator == "" {
			delegator = HandoffDelegator
		}
		result, err := Handoffs.Process(commandContext(cmd), delegator)
		if err != nil {
			return fmt.Errorf("processing hand-offs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(result.Created) == 0 {
			fmt.Fprintln(out, "No hand-offs to process.")
		} else {
			fmt.Fprintf(out, "Created %d hand-off task(s):\n", len(result.Created))
			for _, t := range result.Created {
				fmt.Fprintf(out, "  %s → %s (from %s)\n", t.ID, strings.Join(t.Assignees, ", "), t.HandoffFrom())
			}
		}
		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "\n%d error(s):\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
		}
		return nil
	},
}

var handoffSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Write a hand-off document for the next session",
	Long: `Print a markdown hand-off for whoever picks up the work next.

The document records the git branch, recent commits and uncommitted files,
the current phase and next action, active teams, open todo items and the
last ten events. With --save it is also written to docs/ai_handoffs/.
The orchestrator state is read but never modified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Sessions == nil {
			return fmt.Errorf("session hand-off not initialized")
		}

		h, err := Sessions.Generate(handoffSaveFlag)
		if err != nil {
			return fmt.Errorf("generating session hand-off: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprint(out, h.Document)
		if h.SavedPath != "" {
			fmt.Fprintf(out, "\nSaved to: %s\n", h.SavedPath)
		}
		return nil
	},
}

func init() {
	handoffSessionCmd.Flags().BoolVar(&handoffSaveFlag, "save", false, "Also write the document to docs/ai_handoffs/")
	handoffCmd.AddCommand(handoffSessionCmd)

	handoffProcessCmd.Flags().StringVar(&handoffDelegatorFlag, "delegator", "", "Delegator recorded on created tasks (default from config)")
	handoffCmd.AddCommand(handoffProcessCmd)
	rootCmd.AddCommand(handoffCmd)
}
