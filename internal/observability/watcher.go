package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentkit-forge/agentkit/internal/core"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeKind identifies what a Change reports.
type ChangeKind string

const (
	ChangeTaskWritten ChangeKind = "task_written"
	ChangeTaskRemoved ChangeKind = "task_removed"
	ChangeEvent       ChangeKind = "event"
)

// Change is one observed change to the state directory.
type Change struct {
	Kind   ChangeKind
	TaskID string
	Event  *Event
	At     time.Time
}

// StateWatcher streams task record changes and newly appended events.
type StateWatcher struct {
	tasksDir     string
	eventLogPath string
	logger       *zap.Logger

	watcher *fsnotify.Watcher
	changes chan Change
	stop    chan struct{}
	once    sync.Once

	// offset is how far into the event log has been delivered.
	offset int64
}

// NewStateWatcher creates a watcher for tasksDir and the event log at
// eventLogPath. Both directories are created if missing.
func NewStateWatcher(tasksDir, eventLogPath string, logger *zap.Logger) (*StateWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{tasksDir, filepath.Dir(eventLogPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &StateWatcher{
		tasksDir:     filepath.Clean(tasksDir),
		eventLogPath: filepath.Clean(eventLogPath),
		logger:       logger,
		watcher:      watcher,
		changes:      make(chan Change, 64),
		stop:         make(chan struct{}),
	}, nil
}

// Start begins watching. Events already in the log are not replayed.
func (w *StateWatcher) Start(ctx context.Context) error {
	w.skipExisting()

	if err := w.watcher.Add(w.tasksDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.tasksDir, err)
	}
	if logDir := filepath.Dir(w.eventLogPath); logDir != w.tasksDir {
		if err := w.watcher.Add(logDir); err != nil {
			return fmt.Errorf("watching %s: %w", logDir, err)
		}
	}

	go w.run(ctx)
	return nil
}

// Changes returns the channel changes are delivered on. It is closed when
// the watcher stops.
func (w *StateWatcher) Changes() <-chan Change {
	return w.changes
}

// Stop stops the watcher and releases its resources.
func (w *StateWatcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

func (w *StateWatcher) run(ctx context.Context) {
	defer close(w.changes)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			for _, c := range w.classify(event) {
				select {
				case w.changes <- c:
				case <-w.stop:
					return
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// classify turns one filesystem event into zero or more changes.
func (w *StateWatcher) classify(event fsnotify.Event) []Change {
	path := filepath.Clean(event.Name)
	now := time.Now().UTC()

	if path == w.eventLogPath {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return nil
		}
		events, err := w.readNewEvents()
		if err != nil {
			w.logger.Warn("reading new events failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		changes := make([]Change, 0, len(events))
		for i := range events {
			changes = append(changes, Change{Kind: ChangeEvent, Event: &events[i], At: now})
		}
		return changes
	}

	if filepath.Dir(path) != w.tasksDir || !strings.HasSuffix(path, ".json") {
		return nil
	}
	id := strings.TrimSuffix(filepath.Base(path), ".json")
	if !core.ValidTaskID(id) {
		return nil
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return []Change{{Kind: ChangeTaskWritten, TaskID: id, At: now}}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return []Change{{Kind: ChangeTaskRemoved, TaskID: id, At: now}}
	}
	return nil
}

// skipExisting moves the read offset to the current end of the event log.
func (w *StateWatcher) skipExisting() {
	if info, err := os.Stat(w.eventLogPath); err == nil {
		w.offset = info.Size()
	}
}

// readNewEvents decodes the complete lines appended since the last read. A
// trailing partial line is left for the next call.
func (w *StateWatcher) readNewEvents() ([]Event, error) {
	f, err := os.Open(w.eventLogPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < w.offset {
		// Truncated or replaced; start over.
		w.offset = 0
	}
	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return nil, err
	}

	var events []Event
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return events, err
		}
		w.offset += int64(len(line))

		var e Event
		if jsonErr := json.Unmarshal(line, &e); jsonErr != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
