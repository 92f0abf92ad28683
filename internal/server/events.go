package server

import (
	"time"

	"github.com/gback-app/coach-engine/internal/catalog"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type TurnAppendedEvent struct {
	Event
	Seq  int    `json:"seq"`
	Role string `json:"role"`
	Text string `json:"text"`
}

type StateChangedEvent struct {
	Event
	Lifecycle      string  `json:"lifecycle"`
	Mode           string  `json:"mode"`
	PlaybackCursor float64 `json:"playback_cursor"`
	SessionID      string  `json:"session_id,omitempty"`
	LastError      string  `json:"last_error,omitempty"`
}

type NotificationEvent struct {
	Event
	Title   string `json:"title"`
	Message string `json:"message"`
}

type ExerciseOpenedEvent struct {
	Event
	Exercise catalog.Exercise `json:"exercise"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
