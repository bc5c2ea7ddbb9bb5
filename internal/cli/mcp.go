package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	akmcp "github.com/agentkit-forge/agentkit/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the agentkit MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentkit MCP server on stdio",
	Long: `Start the agentkit MCP server on stdio transport.

The server exposes the task protocol and the orchestrator as MCP tools that
agent sessions can call: create_task, get_task, list_tasks, transition_task,
add_message, resolve_dependencies, process_handoffs, get_status,
advance_phase, get_metrics and get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil || Orchestrator == nil {
			return fmt.Errorf("services not initialized")
		}

		srv := akmcp.NewServer(akmcp.Services{
			Tasks:            Tasks,
			Resolver:         Resolver,
			Handoffs:         Handoffs,
			Orchestrator:     Orchestrator,
			Metrics:          MetricsCalc,
			Alerts:           AlertEngine,
			HandoffDelegator: HandoffDelegator,
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
