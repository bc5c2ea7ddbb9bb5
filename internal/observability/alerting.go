package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

var severityRank = map[AlertSeverity]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2}

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// TaskLister lists task records.
type TaskLister interface {
	List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
}

// LockChecker reports on the session lock without touching it.
type LockChecker interface {
	Check() (*core.LockStatus, error)
}

// MarkerLister lists the per-task hand-off markers on disk.
type MarkerLister interface {
	Markers() ([]core.HandoffMarker, error)
}

// AlertEngine evaluates alert conditions against the task queue, the
// session lock and, when configured, the hand-off markers.
type AlertEngine interface {
	Evaluate(ctx context.Context) ([]Alert, error)
}

type alertEngine struct {
	tasks       TaskLister
	lock        LockChecker
	markers     MarkerLister
	markerStale time.Duration
	thresholds  models.AlertConfig
	now         func() time.Time
}

// AlertOption configures optional checks of an AlertEngine.
type AlertOption func(*alertEngine)

// WithHandoffMarkers enables an alert for every hand-off marker older than
// staleAfter. Such a marker was left by a process that died mid-run and
// blocks its task's hand-offs until removed.
func WithHandoffMarkers(markers MarkerLister, staleAfter time.Duration) AlertOption {
	return func(ae *alertEngine) {
		if staleAfter <= 0 {
			staleAfter = core.DefaultLockStaleAfter
		}
		ae.markers, ae.markerStale = markers, staleAfter
	}
}

// NewAlertEngine creates an AlertEngine. lock may be nil to skip the session
// lock check; now defaults to time.Now.
func NewAlertEngine(tasks TaskLister, lock LockChecker, thresholds models.AlertConfig, now func() time.Time, opts ...AlertOption) AlertEngine {
	if now == nil {
		now = time.Now
	}
	ae := &alertEngine{tasks: tasks, lock: lock, thresholds: thresholds, now: now}
	for _, opt := range opts {
		opt(ae)
	}
	return ae
}

// Evaluate returns every triggered alert, most severe first.
func (ae *alertEngine) Evaluate(ctx context.Context) ([]Alert, error) {
	now := ae.now().UTC()

	tasks, err := ae.tasks.List(ctx, models.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	alerts := []Alert{}
	alerts = append(alerts, ae.checkInputRequired(tasks, now)...)
	alerts = append(alerts, ae.checkBlockedOnCanceled(tasks, now)...)
	alerts = append(alerts, ae.checkQueueSize(tasks, now)...)

	if ae.lock != nil {
		lockAlerts, err := ae.checkSessionLock(now)
		if err != nil {
			return nil, fmt.Errorf("checking session lock: %w", err)
		}
		alerts = append(alerts, lockAlerts...)
	}
	if ae.markers != nil {
		markerAlerts, err := ae.checkHandoffMarkers(now)
		if err != nil {
			return nil, fmt.Errorf("checking hand-off locks: %w", err)
		}
		alerts = append(alerts, markerAlerts...)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if ri, rj := severityRank[alerts[i].Severity], severityRank[alerts[j].Severity]; ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

// checkInputRequired flags tasks that have waited on the delegator longer
// than the threshold.
func (ae *alertEngine) checkInputRequired(tasks []*models.Task, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.InputRequiredHours) * time.Hour
	var alerts []Alert
	for _, t := range tasks {
		if t.Status != models.StatusInputRequired || now.Sub(t.UpdatedAt) <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "input-required-" + t.ID,
			Condition:   "input_required_too_long",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("task %s has waited for input for more than %d hours", t.ID, ae.thresholds.InputRequiredHours),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkBlockedOnCanceled flags tasks whose dependencies can never complete.
func (ae *alertEngine) checkBlockedOnCanceled(tasks []*models.Task, now time.Time) []Alert {
	var alerts []Alert
	for _, t := range tasks {
		if t.Status != models.StatusBlockedOnCanceled {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "blocked-on-canceled-" + t.ID,
			Condition:   "blocked_on_canceled",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("task %s is blocked by dependencies that will never complete: %s", t.ID, strings.Join(t.BlockedBy, ", ")),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkQueueSize counts submitted tasks and alerts if over the threshold.
func (ae *alertEngine) checkQueueSize(tasks []*models.Task, now time.Time) []Alert {
	submitted := 0
	for _, t := range tasks {
		if t.Status == models.StatusSubmitted {
			submitted++
		}
	}
	if submitted <= ae.thresholds.MaxQueueSize {
		return nil
	}
	return []Alert{{
		ID:          "queue-size",
		Condition:   "queue_too_large",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("task queue has %d submitted tasks, exceeding the maximum of %d", submitted, ae.thresholds.MaxQueueSize),
		TriggeredAt: now,
	}}
}

func (ae *alertEngine) checkSessionLock(now time.Time) ([]Alert, error) {
	status, err := ae.lock.Check()
	if err != nil {
		return nil, err
	}
	if !status.Locked || !status.Stale {
		return nil, nil
	}
	return []Alert{{
		ID:        "stale-session-lock",
		Condition: "session_lock_stale",
		Severity:  SeverityHigh,
		Message: fmt.Sprintf("session lock held by PID %d since %s is stale",
			status.Lock.PID, status.Lock.StartedAt.UTC().Format(time.RFC3339)),
		TriggeredAt: now,
	}}, nil
}

func (ae *alertEngine) checkHandoffMarkers(now time.Time) ([]Alert, error) {
	markers, err := ae.markers.Markers()
	if err != nil {
		return nil, err
	}
	var alerts []Alert
	for _, m := range markers {
		if now.Sub(m.AcquiredAt) <= ae.markerStale {
			continue
		}
		alerts = append(alerts, Alert{
			ID:        "stale-handoff-lock-" + m.TaskID,
			Condition: "handoff_lock_stale",
			Severity:  SeverityHigh,
			Message: fmt.Sprintf("hand-off lock for task %s held by PID %d since %s is stale; remove %s to resume its hand-offs",
				m.TaskID, m.PID, m.AcquiredAt.UTC().Format(time.RFC3339), m.Path),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}
