package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
)

// DefaultHandoffDelegator is the delegator recorded on hand-off tasks when
// the caller does not name one.
const DefaultHandoffDelegator = "orchestrator"

// HandoffResult reports the tasks created by one Process call and the
// per-target failures.
type HandoffResult struct {
	Created []*models.Task
	Errors  []string
}

// HandoffProcessor turns the handoffTo targets of completed tasks into new
// downstream tasks, at most once per (task, target) pair.
type HandoffProcessor interface {
	Process(ctx context.Context, delegator string) (*HandoffResult, error)
	Markers() ([]HandoffMarker, error)
}

// HandoffMarker is a per-task hand-off lock currently on disk. A marker that
// outlives its process blocks that task's hand-offs until it is removed.
type HandoffMarker struct {
	TaskID     string
	Path       string
	PID        int
	AcquiredAt time.Time
}

type handoffProcessor struct {
	store    TaskStore
	creator  TaskService
	locksDir string
	events   EventLogger
	logger   *zap.Logger
	now      Clock
}

// NewHandoffProcessor creates a HandoffProcessor. Per-task lock markers are
// created in locksDir. Downstream tasks are created without their own
// task_created events; one handoffs_processed event covers the whole run.
func NewHandoffProcessor(store TaskStore, ids TaskIDGenerator, locksDir string, events EventLogger, logger *zap.Logger, now Clock) HandoffProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &handoffProcessor{
		store:    store,
		creator:  NewTaskService(store, ids, nil, logger, now),
		locksDir: locksDir,
		events:   events,
		logger:   logger,
		now:      now,
	}
}

const handoffLockSuffix = ".handoff.lock"

func (p *handoffProcessor) lockPath(taskID string) string {
	return filepath.Join(p.locksDir, taskID+handoffLockSuffix)
}

// Markers lists the hand-off markers in the locks directory, oldest first.
// A marker whose holder record cannot be read is dated by its mtime.
func (p *handoffProcessor) Markers() ([]HandoffMarker, error) {
	entries, err := os.ReadDir(p.locksDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading locks directory: %w", err)
	}

	var markers []HandoffMarker
	for _, e := range entries {
		taskID, ok := strings.CutSuffix(e.Name(), handoffLockSuffix)
		if !ok || e.IsDir() {
			continue
		}
		m := HandoffMarker{TaskID: taskID, Path: filepath.Join(p.locksDir, e.Name())}
		var holder markerHolder
		if err := storage.ReadJSON(m.Path, &holder); err == nil && !holder.AcquiredAt.IsZero() {
			m.PID, m.AcquiredAt = holder.PID, holder.AcquiredAt
		} else if info, err := e.Info(); err == nil {
			m.AcquiredAt = info.ModTime().UTC()
		} else {
			// Released between ReadDir and here.
			continue
		}
		markers = append(markers, m)
	}
	slices.SortFunc(markers, func(a, b HandoffMarker) int {
		return a.AcquiredAt.Compare(b.AcquiredAt)
	})
	return markers, nil
}

// Process handles every completed task with outstanding hand-off targets.
// Tasks locked by another process are skipped without error.
func (p *handoffProcessor) Process(ctx context.Context, delegator string) (*HandoffResult, error) {
	if delegator == "" {
		delegator = DefaultHandoffDelegator
	}

	completed, err := p.store.List(ctx, models.TaskFilter{Status: models.StatusCompleted})
	if err != nil {
		return nil, fmt.Errorf("listing completed tasks: %w", err)
	}

	result := &HandoffResult{Created: []*models.Task{}, Errors: []string{}}
	for _, t := range completed {
		if len(t.HandoffTo) == 0 || t.HandoffProcessed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.processTask(ctx, t.ID, delegator, result); err != nil {
			return nil, err
		}
	}

	createdIDs := make([]string, len(result.Created))
	for i, t := range result.Created {
		createdIDs[i] = t.ID
	}
	emitEvent(p.events, p.logger, "handoffs_processed", map[string]any{
		"created": createdIDs,
		"errors":  len(result.Errors),
	})
	return result, nil
}

// processTask handles one source task under its per-task lock. Only errors
// that prevent safe bookkeeping are returned; per-target creation failures
// are recorded in result.
func (p *handoffProcessor) processTask(ctx context.Context, taskID, delegator string, result *HandoffResult) (err error) {
	if err := os.MkdirAll(p.locksDir, 0o755); err != nil {
		return fmt.Errorf("creating locks directory: %w", err)
	}
	release, acquired, err := tryMarkerLock(p.lockPath(taskID), newMarkerHolder(p.now()))
	if err != nil {
		return err
	}
	if !acquired {
		p.logger.Debug("hand-off lock held elsewhere, skipping", zap.String("task_id", taskID))
		return nil
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = fmt.Errorf("releasing hand-off lock for %s: %w", taskID, rerr)
		}
	}()

	// The listing may be stale by now; act only on the current record.
	task, err := p.store.Load(taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("reloading task %s: %w", taskID, err)
	}
	if task.Status != models.StatusCompleted || task.HandoffProcessed {
		return nil
	}

	for _, target := range task.HandoffTo {
		if slices.Contains(task.HandoffProcessedTargets, target) {
			continue
		}

		existing, err := p.findExisting(ctx, task.ID, target)
		if err != nil {
			return err
		}
		if existing == nil {
			created, err := p.creator.Create(ctx, handoffInput(task, target, delegator))
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to create handoff task for %s: %v", target, err))
				p.logger.Warn("hand-off task creation failed",
					zap.String("task_id", task.ID), zap.String("target", target), zap.Error(err))
				continue
			}
			result.Created = append(result.Created, created)
		} else {
			p.logger.Debug("hand-off task already exists",
				zap.String("task_id", task.ID), zap.String("target", target), zap.String("existing", existing.ID))
		}

		task.HandoffProcessedTargets = append(task.HandoffProcessedTargets, target)
		task.UpdatedAt = laterOf(p.now().UTC(), task.UpdatedAt)
		if err := p.store.Save(task); err != nil {
			return fmt.Errorf("recording hand-off to %s for %s: %w", target, task.ID, err)
		}
	}

	if allHandled(task) {
		task.HandoffProcessed = true
		task.UpdatedAt = laterOf(p.now().UTC(), task.UpdatedAt)
		if err := p.store.Save(task); err != nil {
			return fmt.Errorf("marking hand-offs processed for %s: %w", task.ID, err)
		}
	}
	return nil
}

// findExisting returns a task already spawned from sourceID for target, left
// behind by an earlier run that stopped before recording it.
func (p *handoffProcessor) findExisting(ctx context.Context, sourceID, target string) (*models.Task, error) {
	candidates, err := p.store.List(ctx, models.TaskFilter{Assignee: target})
	if err != nil {
		return nil, fmt.Errorf("searching hand-off tasks for %s: %w", target, err)
	}
	for _, c := range candidates {
		if c.HandoffFrom() == sourceID {
			return c, nil
		}
	}
	return nil, nil
}

func handoffInput(src *models.Task, target, delegator string) CreateTaskInput {
	description := src.HandoffContext
	if description == "" {
		description = fmt.Sprintf("Continuation of %s: %s", src.ID, src.Title)
	}

	ctx := copyContext(src.Context)
	ctx["handoffFrom"] = src.ID
	ctx["handoffFromTeam"] = strings.Join(src.Assignees, ", ")
	ctx["previousArtifacts"] = slices.Clone(src.Artifacts)

	return CreateTaskInput{
		Delegator:   delegator,
		Assignees:   []string{target},
		Title:       "[Handoff] " + src.Title,
		Description: description,
		Type:        src.Type,
		Priority:    src.Priority,
		Scope:       slices.Clone(src.Scope),
		Context:     ctx,
	}
}

func allHandled(t *models.Task) bool {
	for _, target := range t.HandoffTo {
		if !slices.Contains(t.HandoffProcessedTargets, target) {
			return false
		}
	}
	return true
}
