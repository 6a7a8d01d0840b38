package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoggerCreation(t *testing.T) {
	logger := New("test-component")

	if logger.component != "test-component" {
		t.Errorf("expected component 'test-component', got '%s'", logger.component)
	}
}

func TestLoggerWithChange(t *testing.T) {
	logger := New("lifecycle").WithChange("chg-42")

	if logger.changeID != "chg-42" {
		t.Errorf("expected change 'chg-42', got '%s'", logger.changeID)
	}
	if logger.component != "lifecycle" {
		t.Errorf("expected component preserved, got '%s'", logger.component)
	}
}

func TestEventSerialization(t *testing.T) {
	event := Event{
		Timestamp: "2024-01-01T00:00:00Z",
		Level:     LevelInfo,
		Component: "test",
		Event:     "test_event",
		ChangeID:  "chg-1",
		Duration:  100,
		Extra: map[string]interface{}{
			"key": "value",
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}

	if parsed["level"] != "info" {
		t.Errorf("expected level 'info', got '%v'", parsed["level"])
	}
	if parsed["component"] != "test" {
		t.Errorf("expected component 'test', got '%v'", parsed["component"])
	}
	if parsed["change_id"] != "chg-1" {
		t.Errorf("expected change_id 'chg-1', got '%v'", parsed["change_id"])
	}
	if parsed["duration_ms"].(float64) != 100 {
		t.Errorf("expected duration_ms 100, got '%v'", parsed["duration_ms"])
	}
}

func TestInfoWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	New("store").Info("opened", map[string]interface{}{"path": "/tmp/x.db"})

	line := strings.TrimSpace(buf.String())
	var parsed Event
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed.Component != "store" || parsed.Event != "opened" {
		t.Errorf("unexpected event: %+v", parsed)
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	l := New("store")
	l.debug = false
	l.Debug("noisy", nil)

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestTimedEvent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	start := time.Now().Add(-50 * time.Millisecond)
	New("query").TimedEvent("scan", start, nil)

	var parsed Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Duration < 50 {
		t.Errorf("expected duration >= 50ms, got %d", parsed.Duration)
	}
}

