package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/session"
)

// Hub fans controller events out to websocket clients. Slow clients miss
// events rather than block the controller.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[chan []byte]struct{}), logger: logger}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) Notify(title, message string) {
	h.broadcastEvent(NotificationEvent{
		Event:   newEvent("notification", time.Now().UTC()),
		Title:   title,
		Message: message,
	})
}

func (h *Hub) TurnAppended(turn session.Turn) {
	h.broadcastEvent(TurnAppendedEvent{
		Event: newEvent("turn_appended", turn.At),
		Seq:   turn.Seq,
		Role:  turn.Role,
		Text:  turn.Text,
	})
}

func (h *Hub) StateChanged(state session.SessionState) {
	h.broadcastEvent(stateEvent(state))
}

func (h *Hub) ExerciseOpened(ex catalog.Exercise) {
	h.broadcastEvent(ExerciseOpenedEvent{
		Event:    newEvent("exercise_opened", time.Now().UTC()),
		Exercise: ex,
	})
}

func stateEvent(state session.SessionState) StateChangedEvent {
	return StateChangedEvent{
		Event:          newEvent("state_changed", time.Now().UTC()),
		Lifecycle:      string(state.Lifecycle),
		Mode:           string(state.Mode),
		PlaybackCursor: state.PlaybackCursor,
		SessionID:      state.SessionID,
		LastError:      state.LastError,
	}
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}

var _ session.Notifier = (*Hub)(nil)
