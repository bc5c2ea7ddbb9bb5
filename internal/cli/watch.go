package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream task changes and new events as they happen",
	Long: `Watch the state directory and print a line for every task record that is
written or removed and every event appended to the event log.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TasksDir == "" || EventLogPath == "" {
			return fmt.Errorf("state directory not initialized")
		}

		w, err := observability.NewStateWatcher(TasksDir, EventLogPath, nil)
		if err != nil {
			return err
		}
		defer w.Stop()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", TasksDir)
		return streamChanges(ctx, cmd.OutOrStdout(), w.Changes())
	},
}

// streamChanges prints changes until the channel closes or ctx ends.
func streamChanges(ctx context.Context, out io.Writer, changes <-chan observability.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatChange(c))
		}
	}
}

func formatChange(c observability.Change) string {
	stamp := c.At.UTC().Format("15:04:05")
	switch c.Kind {
	case observability.ChangeTaskWritten:
		return fmt.Sprintf("%s  task    %s updated", stamp, c.TaskID)
	case observability.ChangeTaskRemoved:
		return fmt.Sprintf("%s  task    %s removed", stamp, c.TaskID)
	case observability.ChangeEvent:
		return fmt.Sprintf("%s  event   %s %s", c.Event.Timestamp.UTC().Format("15:04:05"), c.Event.Action, formatEventData(c.Event.Data))
	}
	return fmt.Sprintf("%s  %s", stamp, c.Kind)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
