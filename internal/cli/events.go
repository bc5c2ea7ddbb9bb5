package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/spf13/cobra"
)

var (
	eventsAction string
	eventsTask   string
	eventsSince  string
	eventsLimit  int
	eventsJSON   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log",
	Long: `Show events from the append-only event log, oldest first.

Without filters the last 20 events are shown. --since accepts 7d, 24h or any
Go duration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil {
			return fmt.Errorf("event log not initialized")
		}

		filter := observability.EventFilter{Action: eventsAction, TaskID: eventsTask}
		if eventsSince != "" {
			since, err := parseSinceDuration(eventsSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}

		events, err := EventLog.Read(filter)
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}
		limit := eventsLimit
		if limit <= 0 {
			limit = observability.DefaultRecentLimit
		}
		if len(events) > limit {
			events = events[len(events)-limit:]
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			if events == nil {
				events = []observability.Event{}
			}
			return writeJSON(out, events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No events found.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(out, "%s  %-22s %s\n", e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Action, formatEventData(e.Data))
		}
		return nil
	},
}

// formatEventData renders data as space-separated key=value pairs in key
// order.
func formatEventData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventsAction, "action", "", "Only show events with this action")
	f.StringVar(&eventsTask, "task", "", "Only show events for this task ID")
	f.StringVar(&eventsSince, "since", "", "Only show events newer than this (e.g. 24h, 7d)")
	f.IntVar(&eventsLimit, "limit", observability.DefaultRecentLimit, "Maximum number of events to show")
	f.BoolVar(&eventsJSON, "json", false, "Output events as JSON")
	rootCmd.AddCommand(eventsCmd)
}
