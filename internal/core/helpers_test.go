package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/agentkit-forge/agentkit/pkg/models"
)

// recordedEvent is one LogEvent call captured by recordingEvents.
type recordedEvent struct {
	Action string
	Data   map[string]any
}

// recordingEvents implements EventLogger for testing.
type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) LogEvent(action string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Action: action, Data: data})
	return nil
}

func (r *recordingEvents) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func (r *recordingEvents) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return recordedEvent{}
	}
	return r.events[len(r.events)-1]
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// taskFixture bundles a file-backed task store with the services built on it.
type taskFixture struct {
	dir      string
	store    TaskStore
	ids      TaskIDGenerator
	tasks    TaskService
	events   *recordingEvents
	clock    *fakeClock
	locksDir string
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	return newTaskFixtureAt(t.TempDir())
}

func newTaskFixtureAt(dir string) *taskFixture {
	store := storage.NewTaskStore(filepath.Join(dir, "tasks"), 4, nil)
	ids := NewTaskIDGenerator(store, 0)
	events := &recordingEvents{}
	clock := newFakeClock()
	return &taskFixture{
		dir:      dir,
		store:    store,
		ids:      ids,
		tasks:    NewTaskService(store, ids, events, nil, clock.now),
		events:   events,
		clock:    clock,
		locksDir: filepath.Join(dir, "locks"),
	}
}

func (f *taskFixture) handoffs() HandoffProcessor {
	return NewHandoffProcessor(f.store, f.ids, f.locksDir, f.events, nil, f.clock.now)
}

func (f *taskFixture) resolver() DependencyResolver {
	return NewDependencyResolver(f.store, f.events, nil, f.clock.now)
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func (f *taskFixture) mustCreate(t fatalf, in CreateTaskInput) *models.Task {
	if in.Delegator == "" {
		in.Delegator = "orchestrator"
	}
	if len(in.Assignees) == 0 {
		in.Assignees = []string{"team-backend"}
	}
	if in.Title == "" {
		in.Title = "Untitled work"
	}
	task, err := f.tasks.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%q): %v", in.Title, err)
	}
	return task
}

// mustWalk applies each status in turn.
func (f *taskFixture) mustWalk(t fatalf, taskID string, statuses ...models.TaskStatus) *models.Task {
	var task *models.Task
	for _, s := range statuses {
		var err error
		task, err = f.tasks.UpdateStatus(context.Background(), taskID, s, nil)
		if err != nil {
			t.Fatalf("UpdateStatus(%s, %s): %v", taskID, s, err)
		}
	}
	return task
}

func (f *taskFixture) mustLoad(t fatalf, taskID string) *models.Task {
	task, err := f.store.Load(taskID)
	if err != nil {
		t.Fatalf("Load(%s): %v", taskID, err)
	}
	return task
}

func (f *taskFixture) mustList(t fatalf) []*models.Task {
	tasks, err := f.store.List(context.Background(), models.TaskFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return tasks
}
