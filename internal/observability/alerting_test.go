package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/agentkit-forge/agentkit/pkg/models"
)

var alertNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeLister struct {
	tasks []*models.Task
	err   error
}

func (f *fakeLister) List(_ context.Context, _ models.TaskFilter) ([]*models.Task, error) {
	return f.tasks, f.err
}

type fakeLock struct {
	status *core.LockStatus
	err    error
}

func (f *fakeLock) Check() (*core.LockStatus, error) { return f.status, f.err }

type fakeMarkers struct {
	markers []core.HandoffMarker
	err     error
}

func (f *fakeMarkers) Markers() ([]core.HandoffMarker, error) { return f.markers, f.err }

func testThresholds() models.AlertConfig {
	return models.AlertConfig{InputRequiredHours: 24, MaxQueueSize: 25}
}

func task(id string, status models.TaskStatus, updated time.Time) *models.Task {
	return &models.Task{ID: id, Status: status, CreatedAt: updated, UpdatedAt: updated}
}

func evaluate(t *testing.T, tasks []*models.Task, lock LockChecker, th models.AlertConfig) []Alert {
	t.Helper()
	engine := NewAlertEngine(&fakeLister{tasks: tasks}, lock, th, func() time.Time { return alertNow })
	alerts, err := engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return alerts
}

func TestAlertEngine_InputRequiredTooLong(t *testing.T) {
	alerts := evaluate(t, []*models.Task{
		task("task-old", models.StatusInputRequired, alertNow.Add(-48*time.Hour)),
		task("task-fresh", models.StatusInputRequired, alertNow.Add(-time.Hour)),
		task("task-edge", models.StatusInputRequired, alertNow.Add(-24*time.Hour)),
		task("task-working", models.StatusWorking, alertNow.Add(-72*time.Hour)),
	}, nil, testThresholds())

	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", alerts)
	}
	a := alerts[0]
	if a.ID != "input-required-task-old" || a.Condition != "input_required_too_long" || a.Severity != SeverityMedium {
		t.Errorf("alert = %+v", a)
	}
	if !a.TriggeredAt.Equal(alertNow) {
		t.Errorf("TriggeredAt = %v", a.TriggeredAt)
	}
}

func TestAlertEngine_BlockedOnCanceled(t *testing.T) {
	blocked := task("task-b", models.StatusBlockedOnCanceled, alertNow)
	blocked.BlockedBy = []string{"task-x", "task-y"}

	alerts := evaluate(t, []*models.Task{blocked}, nil, testThresholds())
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", alerts)
	}
	if alerts[0].Severity != SeverityHigh || alerts[0].Condition != "blocked_on_canceled" {
		t.Errorf("alert = %+v", alerts[0])
	}
	if !strings.HasSuffix(alerts[0].Message, "task-x, task-y") {
		t.Errorf("message = %q", alerts[0].Message)
	}
}

func TestAlertEngine_QueueSize(t *testing.T) {
	th := models.AlertConfig{InputRequiredHours: 24, MaxQueueSize: 2}
	queue := []*models.Task{
		task("a", models.StatusSubmitted, alertNow),
		task("b", models.StatusSubmitted, alertNow),
	}
	if alerts := evaluate(t, queue, nil, th); len(alerts) != 0 {
		t.Fatalf("queue at threshold should not alert: %+v", alerts)
	}

	queue = append(queue, task("c", models.StatusSubmitted, alertNow), task("d", models.StatusAccepted, alertNow))
	alerts := evaluate(t, queue, nil, th)
	if len(alerts) != 1 || alerts[0].ID != "queue-size" || alerts[0].Severity != SeverityLow {
		t.Fatalf("alerts = %+v", alerts)
	}
	want := "task queue has 3 submitted tasks, exceeding the maximum of 2"
	if alerts[0].Message != want {
		t.Errorf("message = %q, want %q", alerts[0].Message, want)
	}
}

func TestAlertEngine_StaleSessionLock(t *testing.T) {
	started := alertNow.Add(-2 * time.Hour)
	lock := &fakeLock{status: &core.LockStatus{
		Locked: true,
		Stale:  true,
		Lock:   &models.SessionLock{PID: 4242, StartedAt: started},
		Age:    2 * time.Hour,
	}}

	alerts := evaluate(t, nil, lock, testThresholds())
	if len(alerts) != 1 || alerts[0].ID != "stale-session-lock" || alerts[0].Severity != SeverityHigh {
		t.Fatalf("alerts = %+v", alerts)
	}
	want := "session lock held by PID 4242 since 2026-03-14T07:00:00Z is stale"
	if alerts[0].Message != want {
		t.Errorf("message = %q, want %q", alerts[0].Message, want)
	}

	lock.status = &core.LockStatus{Locked: true, Lock: &models.SessionLock{PID: 1, StartedAt: alertNow}}
	if alerts := evaluate(t, nil, lock, testThresholds()); len(alerts) != 0 {
		t.Errorf("fresh lock raised %+v", alerts)
	}
	lock.status = &core.LockStatus{}
	if alerts := evaluate(t, nil, lock, testThresholds()); len(alerts) != 0 {
		t.Errorf("absent lock raised %+v", alerts)
	}
}

func TestAlertEngine_OrdersBySeverity(t *testing.T) {
	lock := &fakeLock{status: &core.LockStatus{
		Locked: true, Stale: true,
		Lock: &models.SessionLock{PID: 1, StartedAt: alertNow.Add(-time.Hour)},
	}}
	tasks := []*models.Task{
		task("task-2", models.StatusSubmitted, alertNow),
		task("task-3", models.StatusInputRequired, alertNow.Add(-30*time.Hour)),
		task("task-1", models.StatusBlockedOnCanceled, alertNow),
	}
	th := models.AlertConfig{InputRequiredHours: 24, MaxQueueSize: 0}

	alerts := evaluate(t, tasks, lock, th)
	var ids []string
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	want := "blocked-on-canceled-task-1,stale-session-lock,input-required-task-3,queue-size"
	if got := strings.Join(ids, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestAlertEngine_NoAlertsOnQuietQueue(t *testing.T) {
	alerts := evaluate(t, []*models.Task{
		task("a", models.StatusWorking, alertNow.Add(-100*time.Hour)),
		task("b", models.StatusCompleted, alertNow.Add(-100*time.Hour)),
	}, &fakeLock{status: &core.LockStatus{}}, testThresholds())
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("alerts = %#v, want empty non-nil slice", alerts)
	}
}

func TestAlertEngine_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	engine := NewAlertEngine(&fakeLister{err: boom}, nil, testThresholds(), nil)
	if _, err := engine.Evaluate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("list error = %v", err)
	}

	engine = NewAlertEngine(&fakeLister{}, &fakeLock{err: boom}, testThresholds(), nil)
	if _, err := engine.Evaluate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("lock error = %v", err)
	}
}

func TestAlertEngine_StaleHandoffMarker(t *testing.T) {
	markers := &fakeMarkers{markers: []core.HandoffMarker{
		{TaskID: "task-crashed", Path: "/state/locks/task-crashed.handoff.lock", PID: 4242, AcquiredAt: alertNow.Add(-2 * time.Hour)},
		{TaskID: "task-running", Path: "/state/locks/task-running.handoff.lock", PID: 77, AcquiredAt: alertNow.Add(-time.Minute)},
	}}
	engine := NewAlertEngine(&fakeLister{}, nil, testThresholds(), func() time.Time { return alertNow },
		WithHandoffMarkers(markers, 30*time.Minute))

	alerts, err := engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %+v, want one", alerts)
	}
	a := alerts[0]
	if a.ID != "stale-handoff-lock-task-crashed" || a.Condition != "handoff_lock_stale" || a.Severity != SeverityHigh {
		t.Errorf("alert = %+v", a)
	}
	if !strings.Contains(a.Message, "PID 4242") || !strings.Contains(a.Message, "task-crashed.handoff.lock") {
		t.Errorf("message = %q", a.Message)
	}

	boom := errors.New("boom")
	engine = NewAlertEngine(&fakeLister{}, nil, testThresholds(), nil, WithHandoffMarkers(&fakeMarkers{err: boom}, 0))
	if _, err := engine.Evaluate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("marker error = %v", err)
	}
}
