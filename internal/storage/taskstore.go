package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentkit-forge/agentkit/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const taskFileExt = ".json"

// DefaultListWorkers bounds how many task files List reads concurrently.
const DefaultListWorkers = 8

// TaskStore persists one JSON record per task in a flat directory.
type TaskStore interface {
	Create(task *models.Task) error
	Load(taskID string) (*models.Task, error)
	Save(task *models.Task) error
	IDs() ([]string, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
}

// fileTaskStore implements TaskStore on top of the atomic write helpers.
type fileTaskStore struct {
	dir     string
	workers int
	logger  *zap.Logger
}

// NewTaskStore creates a TaskStore rooted at dir. workers bounds concurrent
// reads during List; values below 1 use DefaultListWorkers.
func NewTaskStore(dir string, workers int, logger *zap.Logger) TaskStore {
	if workers < 1 {
		workers = DefaultListWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileTaskStore{dir: dir, workers: workers, logger: logger}
}

func (s *fileTaskStore) path(taskID string) string {
	return filepath.Join(s.dir, taskID+taskFileExt)
}

// Create writes a new record, failing with models.ErrTaskExists if the ID is
// already on disk. The exclusive create is what reserves the ID.
func (s *fileTaskStore) Create(task *models.Task) error {
	normalizeTask(task)
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := CreateExclusive(s.path(task.ID), data); err != nil {
		if errors.Is(err, ErrExists) {
			return fmt.Errorf("creating task %s: %w", task.ID, models.ErrTaskExists)
		}
		return fmt.Errorf("creating task %s: %w", task.ID, err)
	}
	return nil
}

// Load reads and validates a single task record.
func (s *fileTaskStore) Load(taskID string) (*models.Task, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("reading task %s: %w", taskID, err)
	}
	task, err := decodeTask(data, taskID)
	if err != nil {
		return nil, fmt.Errorf("parsing task %s: %w", taskID, err)
	}
	return task, nil
}

// Save replaces the record for task.ID atomically.
func (s *fileTaskStore) Save(task *models.Task) error {
	normalizeTask(task)
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(s.path(task.ID), data, 0o644); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

// IDs returns the IDs of every record file in the directory, in name order.
// A missing directory yields no IDs.
func (s *fileTaskStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading task directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, taskFileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, taskFileExt))
	}
	return ids, nil
}

// List reads every record with a bounded pool of workers, skips records that
// fail to read or validate, applies filter and returns the result sorted by
// priority then newest first.
func (s *fileTaskStore) List(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}

	loaded := make([]*models.Task, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			task, err := s.Load(id)
			if err != nil {
				s.logger.Warn("skipping unreadable task record",
					zap.String("path", s.path(id)), zap.Error(err))
				return nil
			}
			loaded[i] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	var result []*models.Task
	for _, task := range loaded {
		if task != nil && matchesTaskFilter(task, filter) {
			result = append(result, task)
		}
	}
	SortTasks(result)
	return result, nil
}

// SortTasks orders tasks by priority (P0 first, unknown last), then by
// creation time newest first, then by ID.
func SortTasks(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// matchesTaskFilter checks whether a task satisfies all filter criteria.
func matchesTaskFilter(task *models.Task, filter models.TaskFilter) bool {
	if filter.Status != "" && task.Status != filter.Status {
		return false
	}
	if filter.Assignee != "" && !task.HasAssignee(filter.Assignee) {
		return false
	}
	if filter.Delegator != "" && task.Delegator != filter.Delegator {
		return false
	}
	if filter.Type != "" && task.Type != filter.Type {
		return false
	}
	if filter.Priority != "" && task.Priority != filter.Priority {
		return false
	}
	return true
}

func encodeTask(task *models.Task) ([]byte, error) {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling task %s: %w", task.ID, err)
	}
	return append(data, '\n'), nil
}

// decodeTask parses a record and rejects shapes the state machine cannot
// act on. Unknown priorities are tolerated; they sort last.
func decodeTask(data []byte, wantID string) (*models.Task, error) {
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, fmt.Errorf("record has no id")
	}
	if task.ID != wantID {
		return nil, fmt.Errorf("record id %q does not match file name %q", task.ID, wantID)
	}
	if !validStatus(task.Status) {
		return nil, fmt.Errorf("unknown status %q", task.Status)
	}
	normalizeTask(&task)
	return &task, nil
}

func validStatus(status models.TaskStatus) bool {
	for _, s := range models.TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// normalizeTask replaces nil collections so records always serialise them
// as [] or {} rather than null.
func normalizeTask(task *models.Task) {
	if task.Assignees == nil {
		task.Assignees = []string{}
	}
	if task.DependsOn == nil {
		task.DependsOn = []string{}
	}
	if task.BlockedBy == nil {
		task.BlockedBy = []string{}
	}
	if task.AcceptanceCriteria == nil {
		task.AcceptanceCriteria = []string{}
	}
	if task.Scope == nil {
		task.Scope = []string{}
	}
	if task.Context == nil {
		task.Context = map[string]any{}
	}
	if task.Messages == nil {
		task.Messages = []models.Message{}
	}
	if task.Artifacts == nil {
		task.Artifacts = []models.Artifact{}
	}
	if task.HandoffTo == nil {
		task.HandoffTo = []string{}
	}
}
