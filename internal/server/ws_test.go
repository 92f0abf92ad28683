package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/session"
)

func TestHubBroadcastsControllerEvents(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	ex, _ := catalog.Default().Get("bird_dog")
	hub.TurnAppended(session.Turn{Seq: 3, Role: session.RoleUser, Text: "hi", At: time.Now()})
	hub.StateChanged(session.SessionState{Lifecycle: session.Errored, Mode: session.ModeChat, LastError: "Connection lost."})
	hub.Notify("G-Back AI", "Microphone access denied.")
	hub.ExerciseOpened(ex)

	want := []string{"turn_appended", "state_changed", "notification", "exercise_opened"}
	for _, eventType := range want {
		select {
		case msg := <-ch:
			var payload map[string]any
			if err := json.Unmarshal(msg, &payload); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if payload["type"] != eventType {
				t.Fatalf("expected event type %s, got %#v", eventType, payload["type"])
			}
			if eventType == "exercise_opened" {
				exercise, _ := payload["exercise"].(map[string]any)
				if exercise["id"] != "bird_dog" {
					t.Fatalf("unexpected exercise payload: %s", string(msg))
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", eventType)
		}
	}
}

func TestWSSendsConnectionStateAndEvents(t *testing.T) {
	hub := NewHub(nil)
	coach := newCoachStub()
	handler, err := Handler(testStaticFS(t), hub, apiStoreStub{}, coach, Options{})
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	readType := func() string {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		typ, _ := payload["type"].(string)
		return typ
	}

	if got := readType(); got != "connection" {
		t.Fatalf("first event = %q, want connection", got)
	}
	if got := readType(); got != "state_changed" {
		t.Fatalf("second event = %q, want state_changed", got)
	}

	hub.Notify("G-Back AI", "hello")
	if got := readType(); got != "notification" {
		t.Fatalf("third event = %q, want notification", got)
	}
}
