package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gback-app/coach-engine/internal/catalog"
)

func TestEventSerialization(t *testing.T) {
	ex, _ := catalog.Default().Get("cat_cow")
	events := []any{
		TurnAppendedEvent{Event: newEvent("turn_appended", time.Unix(1, 0)), Seq: 1, Role: "agent", Text: "hello"},
		StateChangedEvent{Event: newEvent("state_changed", time.Unix(1, 0)), Lifecycle: "connected", Mode: "voice"},
		NotificationEvent{Event: newEvent("notification", time.Unix(1, 0)), Title: "G-Back AI", Message: "Connection lost."},
		ExerciseOpenedEvent{Event: newEvent("exercise_opened", time.Unix(1, 0)), Exercise: ex},
		ConnectionEvent{Event: newEvent("connection", time.Unix(1, 0)), Connected: true},
	}

	for _, event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		if payload["type"] == nil {
			t.Fatalf("missing type in payload: %s", string(b))
		}
		if payload["version"] == nil {
			t.Fatalf("missing version in payload: %s", string(b))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("missing timestamp in payload: %s", string(b))
		}
	}
}

func TestNewEventDefaultsTimestamp(t *testing.T) {
	ev := newEvent("connection", time.Time{})
	if ev.Timestamp == "" || ev.Version != EventVersion {
		t.Fatalf("unexpected event %+v", ev)
	}
}
