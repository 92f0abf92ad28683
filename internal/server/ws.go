package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerWSRoute streams hub events. A new client first receives a
// connection event and the current session state.
func registerWSRoute(mux *http.ServeMux, hub *Hub, coach Coach, logger *slog.Logger) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		greeting := []any{
			ConnectionEvent{Event: newEvent("connection", time.Now().UTC()), Connected: true},
			stateEvent(coach.State()),
		}
		for _, event := range greeting {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}

		// Drain client frames so a closed socket ends the stream.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case msg := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	})
}
