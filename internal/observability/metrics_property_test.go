package observability

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: observability, Property 8: Transition counts match the events written
// For any sequence of task_status_changed events, Transitions[s] equals the
// number of events targeting s and TasksCompleted equals Transitions[completed].
func TestProperty_MetricsTransitionsMatchEvents(t *testing.T) {
	statuses := []string{"accepted", "rejected", "working", "input-required", "completed", "failed", "canceled"}

	rapid.Check(t, func(rt *rapid.T) {
		el, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.log"))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer el.Close()

		n := rapid.IntRange(0, 40).Draw(rt, "n")
		base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		want := map[string]int{}
		for i := 0; i < n; i++ {
			to := rapid.SampledFrom(statuses).Draw(rt, fmt.Sprintf("to_%d", i))
			want[to]++
			err := el.Write(Event{
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Action:    "task_status_changed",
				Data:      map[string]any{"task_id": fmt.Sprintf("task-20260115-%03d", i), "to": to},
			})
			if err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}

		m, err := NewMetricsCalculator(el).Calculate(base)
		if err != nil {
			rt.Fatalf("Calculate: %v", err)
		}
		for _, s := range statuses {
			if m.Transitions[s] != want[s] {
				rt.Fatalf("Transitions[%s] = %d, want %d", s, m.Transitions[s], want[s])
			}
		}
		if m.TasksCompleted != want["completed"] {
			rt.Fatalf("TasksCompleted = %d, want %d", m.TasksCompleted, want["completed"])
		}
		if m.EventCount != n {
			rt.Fatalf("EventCount = %d, want %d", m.EventCount, n)
		}
	})
}
