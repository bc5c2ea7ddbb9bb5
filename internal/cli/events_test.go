package cli

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/internal/observability"
	"github.com/agentkit-forge/agentkit/pkg/models"
)

func resetEventFlags(t *testing.T) {
	t.Helper()
	setFlag(t, &eventsAction, "")
	setFlag(t, &eventsTask, "")
	setFlag(t, &eventsSince, "")
	setFlag(t, &eventsLimit, observability.DefaultRecentLimit)
	setFlag(t, &eventsJSON, false)
}

func TestEventsCmd_NilLog(t *testing.T) {
	setFlag(t, &EventLog, nil)
	_, err := run(t, eventsCmd)
	if err == nil || !strings.Contains(err.Error(), "event log not initialized") {
		t.Errorf("err = %v", err)
	}
}

func TestEventsCmd_Empty(t *testing.T) {
	setupServices(t)
	resetEventFlags(t)

	if out := mustRun(t, eventsCmd); out != "No events found.\n" {
		t.Errorf("output = %q", out)
	}
	setFlag(t, &eventsJSON, true)
	if out := mustRun(t, eventsCmd); strings.TrimSpace(out) != "[]" {
		t.Errorf("JSON output = %q, want []", out)
	}
}

func TestEventsCmd_Filters(t *testing.T) {
	setupServices(t)
	resetEventFlags(t)

	first := createTask(t, "first", []string{"team-backend"})
	second := createTask(t, "second", []string{"team-backend"})
	transition(t, first, models.StatusAccepted)

	out := mustRun(t, eventsCmd)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "task_status_changed") || !strings.Contains(lines[2], "from=submitted") {
		t.Errorf("last line = %q", lines[2])
	}

	setFlag(t, &eventsTask, second)
	out = mustRun(t, eventsCmd)
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "task_id="+second) {
		t.Errorf("task filter output = %q", out)
	}

	setFlag(t, &eventsTask, "")
	setFlag(t, &eventsAction, "task_created")
	setFlag(t, &eventsLimit, 1)
	setFlag(t, &eventsJSON, true)
	var events []observability.Event
	if err := json.Unmarshal([]byte(mustRun(t, eventsCmd)), &events); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(events) != 1 || events[0].Data["task_id"] != second {
		t.Errorf("limited events = %+v, want the newest task_created", events)
	}
}

func TestEventsCmd_InvalidSince(t *testing.T) {
	setupServices(t)
	resetEventFlags(t)
	setFlag(t, &eventsSince, "yesterday")

	_, err := run(t, eventsCmd)
	if err == nil || !strings.Contains(err.Error(), "parsing --since") {
		t.Errorf("err = %v", err)
	}
}

func TestFormatEventData(t *testing.T) {
	got := formatEventData(map[string]any{"to": "working", "task_id": "task-1", "from": "accepted"})
	if want := "from=accepted task_id=task-1 to=working"; got != want {
		t.Errorf("formatEventData = %q, want %q", got, want)
	}
	if got := formatEventData(nil); got != "" {
		t.Errorf("formatEventData(nil) = %q", got)
	}
}

func TestFormatChange(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 15, 0, time.UTC)
	tests := []struct {
		name   string
		change observability.Change
		want   string
	}{
		{"written", observability.Change{Kind: observability.ChangeTaskWritten, TaskID: "task-20260314-001-abcdef", At: at},
			"09:30:15  task    task-20260314-001-abcdef updated"},
		{"removed", observability.Change{Kind: observability.ChangeTaskRemoved, TaskID: "task-20260314-001-abcdef", At: at},
			"09:30:15  task    task-20260314-001-abcdef removed"},
		{"event", observability.Change{Kind: observability.ChangeEvent, At: at, Event: &observability.Event{
			Timestamp: at.Add(-time.Second), Action: "phase_set", Data: map[string]any{"phase": 2},
		}}, "09:30:14  event   phase_set phase=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatChange(tt.change); got != tt.want {
				t.Errorf("formatChange = %q, want %q", got, tt.want)
			}
		})
	}
}
