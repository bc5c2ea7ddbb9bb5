package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"pgregory.net/rapid"
)

func genTasks(t *rapid.T) []*models.Task {
	n := rapid.IntRange(0, 12).Draw(t, "n")
	tasks := make([]*models.Task, n)
	for i := range tasks {
		priority := rapid.SampledFrom(models.Priorities).Draw(t, fmt.Sprintf("priority_%d", i))
		offset := time.Duration(rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("minutes_%d", i))) * time.Minute
		tasks[i] = newTask(fmt.Sprintf("task-20260314-%03d-abc123", i+1), priority, baseTime.Add(offset))
	}
	return tasks
}

func inListOrder(a, b *models.Task) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func TestProperty_ListIsOrderedByPriorityThenNewest(t *testing.T) {
	root := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp(root, "tasks")
		if err != nil {
			rt.Fatal(err)
		}
		store := NewTaskStore(dir, rapid.IntRange(1, 4).Draw(rt, "workers"), nil)

		tasks := genTasks(rt)
		for _, i := range rapid.Permutation(indexes(len(tasks))).Draw(rt, "write_order") {
			if err := store.Create(tasks[i]); err != nil {
				rt.Fatalf("Create(%s): %v", tasks[i].ID, err)
			}
		}

		got, err := store.List(context.Background(), models.TaskFilter{})
		if err != nil {
			rt.Fatalf("List: %v", err)
		}
		if len(got) != len(tasks) {
			rt.Fatalf("List returned %d tasks, want %d", len(got), len(tasks))
		}
		for i := 1; i < len(got); i++ {
			if !inListOrder(got[i-1], got[i]) {
				rt.Fatalf("%s (%s, %s) listed before %s (%s, %s)",
					got[i-1].ID, got[i-1].Priority, got[i-1].CreatedAt.Format(time.Kitchen),
					got[i].ID, got[i].Priority, got[i].CreatedAt.Format(time.Kitchen))
			}
		}
	})
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
