package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
)

// ResolveResult is the outcome of one dependency resolution pass.
type ResolveResult struct {
	// Unblocked lists tasks whose blockedBy went from non-empty to empty.
	Unblocked []string
	// Errors holds cycle and dangling-dependency reports.
	Errors []string
	// Changed holds updated copies of every task whose blockedBy, status
	// or blockedReason differs from its input. Only these need persisting.
	Changed []*models.Task
}

// ResolveDependencies recomputes blockedBy for every task and detects
// dependency cycles. It does not modify tasks; updated copies are returned in
// Changed.
func ResolveDependencies(tasks []*models.Task, now time.Time) ResolveResult {
	byID := make(map[string]*models.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; dup {
			continue
		}
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	result := ResolveResult{Unblocked: []string{}, Errors: []string{}}
	excluded := findCycles(ids, byID, &result.Errors)

	for _, id := range ids {
		if excluded[id] {
			continue
		}
		t := byID[id]
		if IsTerminal(t.Status) && t.Status != models.StatusBlockedOnCanceled {
			continue
		}
		if len(t.DependsOn) == 0 && t.Status != models.StatusBlockedOnCanceled {
			continue
		}

		blockedBy := []string{}
		var permanent, transient int
		seen := make(map[string]bool, len(t.DependsOn))
		for _, depID := range t.DependsOn {
			if seen[depID] {
				continue
			}
			seen[depID] = true

			dep, ok := byID[depID]
			switch {
			case !ok:
				result.Errors = append(result.Errors, fmt.Sprintf("task %s: dependency %s not found", id, depID))
				transient++
			case dep.Status == models.StatusCompleted:
				continue
			case isPermanentBlocker(dep.Status):
				permanent++
			default:
				transient++
			}
			blockedBy = append(blockedBy, depID)
		}

		status, reason := t.Status, t.BlockedReason
		forced := permanent > 0 && transient == 0
		if forced {
			status, reason = models.StatusBlockedOnCanceled, models.BlockedReasonCanceled
		} else if t.Status == models.StatusBlockedOnCanceled {
			status, reason = models.StatusSubmitted, ""
		}

		if len(t.BlockedBy) > 0 && len(blockedBy) == 0 && !forced {
			result.Unblocked = append(result.Unblocked, id)
		}

		if slices.Equal(t.BlockedBy, blockedBy) && status == t.Status && reason == t.BlockedReason {
			continue
		}
		updated := *t
		updated.BlockedBy = blockedBy
		updated.Status = status
		updated.BlockedReason = reason
		updated.UpdatedAt = laterOf(now.UTC(), t.UpdatedAt)
		result.Changed = append(result.Changed, &updated)
	}
	return result
}

// dfsFrame is one entry of the explicit DFS stack: a node and the index of
// the next outgoing edge to explore.
type dfsFrame struct {
	id   string
	next int
}

// findCycles walks the dependsOn graph with an explicit stack, appending one
// "cycle detected" report per distinct ring closed on the active path. The
// same walk tracks Tarjan low-links: every member of a strongly connected
// component with more than one task or a self-edge is excluded, and a member
// no reported ring passes through gets the shortest ring through it reported
// as well. It returns the excluded task IDs.
func findCycles(ids []string, byID map[string]*models.Task, errs *[]string) map[string]bool {
	index := make(map[string]int, len(ids))
	low := make(map[string]int, len(ids))
	onPath := make(map[string]bool)
	onStack := make(map[string]bool)
	var sccStack []string
	excluded := make(map[string]bool)
	reported := make(map[string]bool)
	covered := make(map[string]bool)

	edges := func(id string) []string {
		return byID[id].DependsOn
	}
	report := func(ring []string) {
		key := cycleKey(ring)
		if reported[key] {
			return
		}
		reported[key] = true
		for _, m := range ring {
			covered[m] = true
		}
		cycle := append(slices.Clone(ring), ring[0])
		*errs = append(*errs, "cycle detected: "+strings.Join(cycle, " → "))
	}
	visit := func(id string) {
		index[id] = len(index)
		low[id] = index[id]
		onPath[id] = true
		onStack[id] = true
		sccStack = append(sccStack, id)
	}

	for _, root := range ids {
		if _, seen := index[root]; seen {
			continue
		}
		stack := []dfsFrame{{id: root}}
		path := []string{root}
		visit(root)

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			out := edges(top.id)
			if top.next >= len(out) {
				id := top.id
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				onPath[id] = false
				if len(stack) > 0 {
					parent := stack[len(stack)-1].id
					low[parent] = min(low[parent], low[id])
				}
				if low[id] == index[id] {
					members := popComponent(id, &sccStack, onStack)
					if len(members) > 1 || slices.Contains(edges(id), id) {
						for _, m := range members {
							excluded[m] = true
						}
						for _, m := range members {
							if !covered[m] {
								report(shortestRing(m, members, edges))
							}
						}
					}
				}
				continue
			}
			dep := out[top.next]
			top.next++
			if _, ok := byID[dep]; !ok {
				continue
			}

			if _, seen := index[dep]; !seen {
				visit(dep)
				stack = append(stack, dfsFrame{id: dep})
				path = append(path, dep)
				continue
			}
			if onStack[dep] {
				low[top.id] = min(low[top.id], index[dep])
			}
			if onPath[dep] {
				report(path[slices.Index(path, dep):])
			}
		}
	}
	return excluded
}

// popComponent removes the strongly connected component rooted at root from
// the Tarjan stack and returns its members.
func popComponent(root string, sccStack *[]string, onStack map[string]bool) []string {
	start := slices.Index(*sccStack, root)
	members := slices.Clone((*sccStack)[start:])
	*sccStack = (*sccStack)[:start]
	for _, m := range members {
		onStack[m] = false
	}
	return members
}

// shortestRing returns the shortest dependsOn ring from start back to itself
// that stays inside component, without repeating start at the end.
func shortestRing(start string, component []string, edges func(string) []string) []string {
	inside := make(map[string]bool, len(component))
	for _, m := range component {
		inside[m] = true
	}
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, dep := range edges(u) {
			if dep == start {
				var ring []string
				for n := u; n != ""; n = parent[n] {
					ring = append(ring, n)
				}
				slices.Reverse(ring)
				return ring
			}
			if _, seen := parent[dep]; seen || !inside[dep] {
				continue
			}
			parent[dep] = u
			queue = append(queue, dep)
		}
	}
	return []string{start}
}

func cycleKey(members []string) string {
	sorted := slices.Clone(members)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// DependencyResolver runs ResolveDependencies against the task store.
type DependencyResolver interface {
	Resolve(ctx context.Context) (*ResolveResult, error)
}

type dependencyResolver struct {
	store  TaskStore
	events EventLogger
	logger *zap.Logger
	now    Clock
}

// NewDependencyResolver creates a DependencyResolver. events and logger may
// be nil; now defaults to time.Now.
func NewDependencyResolver(store TaskStore, events EventLogger, logger *zap.Logger, now Clock) DependencyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &dependencyResolver{store: store, events: events, logger: logger, now: now}
}

// Resolve lists every task, resolves blocking and persists the tasks whose
// blocking state changed. Cycle and dangling-dependency problems are reported
// in the result, not as an error.
//
// Each changed task is re-read right before saving so a concurrent write is
// not reverted: only blockedBy, status and blockedReason are applied, and the
// status only if the task still has the status it was listed with.
func (r *dependencyResolver) Resolve(ctx context.Context) (*ResolveResult, error) {
	tasks, err := r.store.List(ctx, models.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	listed := make(map[string]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		listed[t.ID] = t.Status
	}

	result := ResolveDependencies(tasks, r.now())
	saved := make([]*models.Task, 0, len(result.Changed))
	skipped := make(map[string]bool)
	for _, t := range result.Changed {
		current, err := r.store.Load(t.ID)
		if err != nil {
			if errors.Is(err, models.ErrTaskNotFound) {
				skipped[t.ID] = true
				continue
			}
			return nil, fmt.Errorf("reloading task %s: %w", t.ID, err)
		}

		was := listed[t.ID]
		switch {
		case current.Status == was:
			current.Status = t.Status
			current.BlockedReason = t.BlockedReason
		case t.Status == was && !IsTerminal(current.Status):
			// Moved on since listing; blockedBy is still ours to set.
		default:
			r.logger.Debug("task changed during resolution, leaving it for the next pass",
				zap.String("task_id", t.ID),
				zap.String("listed", string(was)),
				zap.String("current", string(current.Status)))
			skipped[t.ID] = true
			continue
		}
		current.BlockedBy = t.BlockedBy
		current.UpdatedAt = laterOf(t.UpdatedAt, current.UpdatedAt)

		if err := r.store.Save(current); err != nil {
			return nil, fmt.Errorf("saving task %s: %w", t.ID, err)
		}
		r.logger.Debug("dependency state updated",
			zap.String("task_id", current.ID),
			zap.String("status", string(current.Status)),
			zap.Strings("blocked_by", current.BlockedBy))
		saved = append(saved, current)
	}
	result.Changed = saved
	if len(skipped) > 0 {
		result.Unblocked = slices.DeleteFunc(result.Unblocked, func(id string) bool { return skipped[id] })
	}

	emitEvent(r.events, r.logger, "dependencies_resolved", map[string]any{
		"unblocked": result.Unblocked,
		"errors":    len(result.Errors),
		"changed":   len(result.Changed),
	})
	return &result, nil
}
