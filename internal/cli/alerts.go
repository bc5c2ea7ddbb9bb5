package cli

import (
	"fmt"
	"strings"

	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var alertsJSON bool

var severityColors = map[observability.AlertSeverity]*color.Color{
	observability.SeverityHigh:   color.New(color.FgRed, color.Bold),
	observability.SeverityMedium: color.New(color.FgYellow),
	observability.SeverityLow:    color.New(color.FgBlue),
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions against the task queue and the session lock.

Alerts fire for tasks waiting on input too long, tasks blocked by dependencies
that will never complete, a stale session lock, and an oversized submitted
queue.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}

		alerts, err := AlertEngine.Evaluate(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if alertsJSON {
			return writeJSON(out, alerts)
		}
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}

		fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			tag := "[" + strings.ToUpper(string(alert.Severity)) + "]"
			if c, ok := severityColors[alert.Severity]; ok {
				tag = c.Sprint(tag)
			}
			fmt.Fprintf(out, "  %s %s\n", tag, alert.Message)
			fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}
