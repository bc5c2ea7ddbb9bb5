package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/spf13/cobra"
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Track the project through the five-phase workflow",
	Long: `Session-level orchestration commands.

The project moves through Discovery, Planning, Implementation, Validation
and Ship. Every change to the orchestrator state is made under the session
lock; a lock held by a live session makes the command fail until that
session ends or the lock is force-released.`,
}

var orchestrateStatusJSON bool

var orchestrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show phase, lock, team progress and recent events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		report, err := Orchestrator.Status()
		if err != nil {
			return fmt.Errorf("reading orchestrator status: %w", err)
		}
		if orchestrateStatusJSON {
			return writeJSON(cmd.OutOrStdout(), report.State)
		}
		fmt.Fprintln(cmd.OutOrStdout(), core.FormatStatus(*report))
		return nil
	},
}

var orchestrateAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance to the next phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		state, err := Orchestrator.Advance()
		if err != nil {
			return err
		}
		printPhase(cmd, state)
		return nil
	},
}

var orchestrateSetPhaseCmd = &cobra.Command{
	Use:   "set-phase <phase>",
	Short: "Jump to a phase (1-5)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		phase, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid phase: %s. Must be 1-5", args[0])
		}
		state, err := Orchestrator.SetPhase(phase)
		if err != nil {
			return err
		}
		printPhase(cmd, state)
		return nil
	},
}

var orchestrateTeamNotes string

var orchestrateTeamCmd = &cobra.Command{
	Use:   "team <team-id> <status>",
	Short: "Set a team's progress status (idle, in_progress, blocked, done)",
	Long: `Set a team's progress status.

--notes replaces the team's notes; without it the previous notes are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		var notes *string
		if cmd.Flags().Changed("notes") {
			notes = &orchestrateTeamNotes
		}
		state, err := Orchestrator.UpdateTeam(args[0], models.TeamStatus(args[1]), notes)
		if err != nil {
			return err
		}
		p := state.TeamProgress[args[0]]
		line := fmt.Sprintf("%s is now %s", args[0], p.Status)
		if p.Notes != "" {
			line += " — " + p.Notes
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	},
}

var orchestrateForceUnlockCmd = &cobra.Command{
	Use:   "force-unlock",
	Short: "Remove the session lock regardless of who holds it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		released, err := Orchestrator.ForceUnlock()
		if err != nil {
			return fmt.Errorf("releasing session lock: %w", err)
		}
		if released {
			fmt.Fprintln(cmd.OutOrStdout(), "Session lock released.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No session lock to release.")
		}
		return nil
	},
}

var orchestrateTodoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage orchestrator todo items",
}

var todoTeam string

var orchestrateTodoAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a pending todo item",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		item, err := Orchestrator.AddTodo(strings.Join(args, " "), todoTeam)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", item.ID, item.Title)
		return nil
	},
}

var orchestrateInvokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Open an orchestration session at the current phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orchestrator == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		state, err := Orchestrator.Invoke()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %s\n", state.SessionID)
		printPhase(cmd, state)
		return nil
	},
}

func printPhase(cmd *cobra.Command, state *models.OrchestratorState) {
	out := cmd.OutOrStdout()
	if state.Completed {
		fmt.Fprintln(out, "All phases complete.")
	} else {
		fmt.Fprintf(out, "Phase %d/%d — %s\n", state.CurrentPhase, core.FinalPhase, state.PhaseName)
	}
	fmt.Fprintf(out, "Next: %s\n", state.NextAction)
}

func init() {
	orchestrateStatusCmd.Flags().BoolVar(&orchestrateStatusJSON, "json", false, "Output the orchestrator state as JSON")
	orchestrateTeamCmd.Flags().StringVar(&orchestrateTeamNotes, "notes", "", "Notes for the team")
	orchestrateTodoAddCmd.Flags().StringVar(&todoTeam, "team", "", "Team that owns the item")

	orchestrateTeamCmd.ValidArgsFunction = completeTeamArgs
	_ = orchestrateTodoAddCmd.RegisterFlagCompletionFunc("team", completeTeams)

	orchestrateTodoCmd.AddCommand(orchestrateTodoAddCmd)
	orchestrateCmd.AddCommand(
		orchestrateStatusCmd,
		orchestrateAdvanceCmd,
		orchestrateSetPhaseCmd,
		orchestrateTeamCmd,
		orchestrateForceUnlockCmd,
		orchestrateTodoCmd,
		orchestrateInvokeCmd,
	)
	rootCmd.AddCommand(orchestrateCmd)
}
