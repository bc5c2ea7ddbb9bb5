package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func openLog(t *testing.T) (EventLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "events.log")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, path
}

func TestEventLog_WriteAndRead(t *testing.T) {
	log, path := openLog(t)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: now, Action: "task_created", Data: map[string]any{"task_id": "task-20260314-001-abcdef", "priority": "P1"}},
		{Timestamp: now.Add(time.Second), Action: "task_status_changed", Data: map[string]any{"task_id": "task-20260314-001-abcdef", "from": "submitted", "to": "accepted"}},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(string(raw), "\n", 2)[0]
	var flat map[string]any
	if err := json.Unmarshal([]byte(first), &flat); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if flat["timestamp"] != "2026-03-14T09:00:00Z" || flat["action"] != "task_created" || flat["priority"] != "P1" {
		t.Errorf("on-disk line = %s", first)
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	if !result[0].Timestamp.Equal(now) || result[0].Action != "task_created" {
		t.Errorf("first event = %+v", result[0])
	}
	if result[1].Data["to"] != "accepted" {
		t.Errorf("second event data = %v", result[1].Data)
	}
	if _, ok := result[1].Data["action"]; ok {
		t.Error("action leaked into Data")
	}
}

func TestEventLog_DataCannotOverrideReservedKeys(t *testing.T) {
	log, _ := openLog(t)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	err := log.Write(Event{Timestamp: now, Action: "phase_set", Data: map[string]any{
		"action":    "spoofed",
		"timestamp": "1999-01-01T00:00:00Z",
		"phase":     3,
	}})
	if err != nil {
		t.Fatalf("writing event: %v", err)
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 1 || result[0].Action != "phase_set" || !result[0].Timestamp.Equal(now) {
		t.Fatalf("events = %+v", result)
	}
	if result[0].Data["phase"] != float64(3) {
		t.Errorf("phase = %#v", result[0].Data["phase"])
	}
}

func TestEventLog_Append(t *testing.T) {
	log, _ := openLog(t)
	before := time.Now().UTC().Add(-time.Second)

	if err := log.Append("lock_force_released", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append("", nil); err == nil {
		t.Error("expected error for empty action")
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 1 || result[0].Timestamp.Before(before) {
		t.Errorf("events = %+v", result)
	}
}

func TestEventLog_Filters(t *testing.T) {
	log, _ := openLog(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, action := range []string{"task_created", "task_status_changed", "task_created", "phase_advanced"} {
		data := map[string]any{"task_id": fmt.Sprintf("task-20260314-%03d", i%2+1)}
		if err := log.Write(Event{Timestamp: base.Add(time.Duration(i) * time.Hour), Action: action, Data: data}); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	byAction, _ := log.Read(EventFilter{Action: "task_created"})
	if len(byAction) != 2 {
		t.Errorf("action filter returned %d events, want 2", len(byAction))
	}

	byTask, _ := log.Read(EventFilter{TaskID: "task-20260314-002"})
	if len(byTask) != 2 {
		t.Errorf("task filter returned %d events, want 2", len(byTask))
	}

	since := base.Add(time.Hour)
	until := base.Add(2 * time.Hour)
	window, _ := log.Read(EventFilter{Since: &since, Until: &until})
	if len(window) != 2 || window[0].Action != "task_status_changed" {
		t.Errorf("time window returned %+v", window)
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	log, path := openLog(t)
	if err := log.Append("task_created", nil); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("not json\n{\"timestamp\":\"2026-03-14T09:00:00Z\"}\n\n")
	_ = f.Close()

	if err := log.Append("phase_set", nil); err != nil {
		t.Fatal(err)
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 well-formed events, got %d", len(result))
	}
}

func TestEventLog_Recent(t *testing.T) {
	log, _ := openLog(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		if err := log.Write(Event{Timestamp: base.Add(time.Duration(i) * time.Minute), Action: fmt.Sprintf("a%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	last3, err := log.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(last3) != 3 || last3[0].Action != "a27" || last3[2].Action != "a29" {
		t.Errorf("Recent(3) = %+v", last3)
	}

	def, _ := log.Recent(0)
	if len(def) != DefaultRecentLimit {
		t.Errorf("Recent(0) returned %d events, want %d", len(def), DefaultRecentLimit)
	}
}

func TestEventLog_MissingFileReadsEmpty(t *testing.T) {
	log, path := openLog(t)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	result, err := log.Read(EventFilter{})
	if err != nil || result != nil {
		t.Errorf("Read on missing file = %v, %v", result, err)
	}
}

func TestEventLog_ConcurrentWritersAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		log, err := NewJSONLEventLog(path)
		if err != nil {
			t.Fatalf("creating event log: %v", err)
		}
		defer log.Close()

		wg.Add(1)
		go func(w int, log EventLog) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := log.Append("task_message_added", map[string]any{"writer": w, "n": i, "content": strings.Repeat("x", 200)}); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}(w, log)
	}
	wg.Wait()

	reader, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	result, err := reader.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != writers*perWriter {
		t.Errorf("read %d events, want %d", len(result), writers*perWriter)
	}
}
