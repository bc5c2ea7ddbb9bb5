package core

import (
	"context"
	"slices"
	"testing"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"pgregory.net/rapid"
)

// Feature: task protocol, Property 3: Status changes follow the lifecycle table
func TestProperty_StatusChangesFollowLifecycleTable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newTaskFixtureAt(t.TempDir())
		task := f.mustCreate(rt, CreateTaskInput{Title: "walk"})

		current := models.StatusSubmitted
		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			target := rapid.SampledFrom(models.TaskStatuses).Draw(rt, "target")
			_, err := f.tasks.UpdateStatus(context.Background(), task.ID, target, nil)

			allowed := slices.Contains(AllowedTransitions(current), target)
			if allowed && err != nil {
				rt.Fatalf("%s → %s is a table edge but failed: %v", current, target, err)
			}
			if !allowed && err == nil {
				rt.Fatalf("%s → %s is not a table edge but succeeded", current, target)
			}
			if allowed {
				current = target
			}

			if got := f.mustLoad(rt, task.ID).Status; got != current {
				rt.Fatalf("stored status = %s, want %s", got, current)
			}
		}

		if IsTerminal(current) && len(AllowedTransitions(current)) != 0 {
			rt.Fatalf("terminal status %s has outgoing edges", current)
		}
	})
}

func TestLifecycleTable(t *testing.T) {
	for _, s := range models.TaskStatuses {
		if CanTransition(s, models.StatusBlockedOnCanceled) {
			t.Errorf("%s → BLOCKED_ON_CANCELED must not be requestable", s)
		}
		if CanTransition(s, models.StatusSubmitted) {
			t.Errorf("%s → submitted must not be requestable", s)
		}
		if IsTerminal(s) != (len(AllowedTransitions(s)) == 0) {
			t.Errorf("IsTerminal(%s) = %v disagrees with its edges %v", s, IsTerminal(s), AllowedTransitions(s))
		}
	}
}
