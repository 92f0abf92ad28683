package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/session"
	"github.com/gback-app/coach-engine/internal/storage"
)

const maxBodyBytes = 64 << 10

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetToolInvocations(sessionID string) ([]storage.ToolInvocation, error)
	GetDates() ([]string, error)
}

// Coach is the conversation the UI drives.
type Coach interface {
	Catalog() *catalog.Catalog
	Transcript() []session.Turn
	State() session.SessionState
	Open()
	Reset() error
	SendTurn(ctx context.Context, text string) (session.Turn, error)
	CancelTurn()
	StartVoice(ctx context.Context) error
	StopVoice() error
	ReportPain(score int) bool
}

type Options struct {
	Warnings func() []string
	Logger   *slog.Logger
}

func registerAPIRoutes(mux *http.ServeMux, store SessionStore, coach Coach, opts Options) {
	logger := opts.Logger

	mux.HandleFunc("GET /api/exercises", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coach.Catalog().All())
	})

	mux.HandleFunc("GET /api/transcript", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coach.Transcript())
	})

	mux.HandleFunc("POST /api/open", func(w http.ResponseWriter, r *http.Request) {
		coach.Open()
		writeJSON(w, http.StatusOK, coach.Transcript())
	})

	mux.HandleFunc("POST /api/reset", func(w http.ResponseWriter, r *http.Request) {
		if err := coach.Reset(); err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, coach.Transcript())
	})

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		// A client that goes away does not abort the turn. The reply still
		// lands in the transcript and reaches the UI over the websocket.
		turn, err := coach.SendTurn(context.WithoutCancel(r.Context()), req.Text)
		if err != nil {
			body := map[string]any{"error": err.Error()}
			if turn.Seq != 0 {
				body["turn"] = turn
			}
			writeJSON(w, statusFor(err), body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"turn": turn})
	})

	mux.HandleFunc("POST /api/chat/cancel", func(w http.ResponseWriter, r *http.Request) {
		coach.CancelTurn()
		w.WriteHeader(http.StatusNoContent)
	})

	// Voice start returns at once; progress is reported as state events.
	mux.HandleFunc("POST /api/voice/start", func(w http.ResponseWriter, r *http.Request) {
		if st := coach.State(); st.Lifecycle != session.Idle {
			writeJSONError(w, http.StatusConflict, session.ErrVoiceActive.Error())
			return
		}
		go func() {
			if err := coach.StartVoice(context.Background()); err != nil {
				logger.Warn("voice session did not start", "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
	})

	mux.HandleFunc("POST /api/voice/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := coach.StopVoice(); err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/pain", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Score *int `json:"score"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Score == nil || *req.Score < 0 || *req.Score > 10 {
			writeJSONError(w, http.StatusBadRequest, "score must be between 0 and 10")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"alerted": coach.ReportPain(*req.Score)})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if opts.Warnings != nil {
			warnings = opts.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": coach.State(), "warnings": warnings})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		sessions, err := store.GetSessionsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sessionData, err := store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		invocations, err := store.GetToolInvocations(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get tool invocations: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session":          sessionData,
			"tool_invocations": invocations,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, dates)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyTurn):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrVoiceActive),
		errors.Is(err, session.ErrNoVoiceSession),
		errors.Is(err, session.ErrTurnCancelled):
		return http.StatusConflict
	case errors.Is(err, session.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
