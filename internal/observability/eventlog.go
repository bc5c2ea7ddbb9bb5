package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultRecentLimit is how many events Recent returns when limit is not
// positive.
const DefaultRecentLimit = 20

// Event is one line of the event log. On disk it is a flat JSON object:
// timestamp and action followed by the data keys.
type Event struct {
	Timestamp time.Time
	Action    string
	Data      map[string]any
}

// MarshalJSON flattens Data into the top-level object. Data keys named
// timestamp or action are dropped.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Data)+2)
	for k, v := range e.Data {
		if k == "timestamp" || k == "action" {
			continue
		}
		flat[k] = v
	}
	flat["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	flat["action"] = e.Action
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat form back.
func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	action, ok := flat["action"].(string)
	if !ok || action == "" {
		return fmt.Errorf("event has no action")
	}
	rawTS, _ := flat["timestamp"].(string)
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return fmt.Errorf("event timestamp: %w", err)
	}
	delete(flat, "action")
	delete(flat, "timestamp")
	*e = Event{Timestamp: ts, Action: action, Data: flat}
	return nil
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Action string
	TaskID string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Append(action string, data map[string]any) error
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Recent(limit int) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using an append-only JSONL file.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
	now  func() time.Time
}

// NewJSONLEventLog opens (creating if needed) the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f, now: time.Now}, nil
}

// Append stamps a new event with the current time and writes it.
func (l *jsonlEventLog) Append(action string, data map[string]any) error {
	return l.Write(Event{Timestamp: l.now().UTC(), Action: action, Data: data})
}

// Write appends one JSON line. The line goes out in a single write call so
// concurrent writers on O_APPEND never interleave.
func (l *jsonlEventLog) Write(event Event) error {
	if event.Action == "" {
		return fmt.Errorf("event action is required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log and returns the events matching filter in file order.
// Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

// Recent returns the last limit events, oldest first.
func (l *jsonlEventLog) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	events, err := l.Read(EventFilter{})
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Timestamp.After(*filter.Until) {
		return false
	}
	if filter.Action != "" && event.Action != filter.Action {
		return false
	}
	if filter.TaskID != "" {
		if id, _ := event.Data["task_id"].(string); id != filter.TaskID {
			return false
		}
	}
	return true
}
