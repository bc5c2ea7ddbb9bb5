package observability

import (
	"fmt"
	"time"
)

// Metrics holds counters derived from the event log.
type Metrics struct {
	TasksCreated      int            `json:"tasks_created"`
	TasksCompleted    int            `json:"tasks_completed"`
	Transitions       map[string]int `json:"transitions"`
	MessagesAdded     int            `json:"messages_added"`
	ArtifactsAdded    int            `json:"artifacts_added"`
	TasksUnblocked    int            `json:"tasks_unblocked"`
	HandoffsCreated   int            `json:"handoffs_created"`
	PhaseChanges      int            `json:"phase_changes"`
	LockForceReleases int            `json:"lock_force_releases"`
	Sessions          int            `json:"sessions"`
	EventsByAction    map[string]int `json:"events_by_action"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		Transitions:    make(map[string]int),
		EventsByAction: make(map[string]int),
		EventCount:     len(events),
	}

	for _, event := range events {
		t := event.Timestamp
		if m.OldestEvent == nil || t.Before(*m.OldestEvent) {
			m.OldestEvent = &t
		}
		if m.NewestEvent == nil || t.After(*m.NewestEvent) {
			m.NewestEvent = &t
		}
		m.EventsByAction[event.Action]++

		switch event.Action {
		case "task_created":
			m.TasksCreated++
		case "task_status_changed":
			to, _ := event.Data["to"].(string)
			if to == "" {
				continue
			}
			m.Transitions[to]++
			if to == "completed" {
				m.TasksCompleted++
			}
		case "task_message_added":
			m.MessagesAdded++
		case "task_artifact_added":
			m.ArtifactsAdded++
		case "dependencies_resolved":
			m.TasksUnblocked += lenOf(event.Data["unblocked"])
		case "handoffs_processed":
			m.HandoffsCreated += lenOf(event.Data["created"])
		case "phase_advanced", "phase_set":
			m.PhaseChanges++
		case "lock_force_released":
			m.LockForceReleases++
		case "orchestrate_invoked":
			m.Sessions++
		}
	}

	return m, nil
}

// lenOf counts the entries of a decoded JSON array.
func lenOf(v any) int {
	switch list := v.(type) {
	case []any:
		return len(list)
	case []string:
		return len(list)
	}
	return 0
}
