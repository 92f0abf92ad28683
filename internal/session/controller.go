// Package session owns the coach conversation: the transcript, turn-based
// chat, and the lifecycle of a streaming voice session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/llm"
	"github.com/gback-app/coach-engine/internal/pcm"
	"github.com/gback-app/coach-engine/internal/storage"
	"github.com/gback-app/coach-engine/internal/tools"
)

const (
	defaultConnectTimeout    = 15 * time.Second
	defaultHighPainThreshold = 7
)

// Config is everything the controller needs to talk to the agent and the
// user. Credentials stay with the clients passed in Deps.
type Config struct {
	Language          string
	LiveModel         string
	Voice             string
	InputSampleRate   int
	ConnectTimeout    time.Duration
	HighPainThreshold int

	Title           string
	Greeting        string
	HighPainAlert   string
	MicError        string
	DeviceError     string
	ConnectionLost  string
	ConnectionError string
	ToolFallback    string
}

func DefaultConfig() Config {
	return Config{
		Language:          "en",
		LiveModel:         llm.DefaultLiveModel,
		Voice:             llm.DefaultLiveVoice,
		InputSampleRate:   pcm.InputSampleRate,
		ConnectTimeout:    defaultConnectTimeout,
		HighPainThreshold: defaultHighPainThreshold,
		Title:             "G-Back AI",
		Greeting:          "Ready to strengthen your back today?",
		HighPainAlert:     "I noticed your pain is high today. Would you like to try a gentle stretching modification?",
		MicError:          "Microphone access denied.",
		DeviceError:       "Audio device unavailable.",
		ConnectionLost:    "Connection lost.",
		ConnectionError:   "Connection Error",
		ToolFallback:      "Starting that for you now!",
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.LiveModel == "" {
		c.LiveModel = d.LiveModel
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = d.InputSampleRate
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HighPainThreshold <= 0 {
		c.HighPainThreshold = d.HighPainThreshold
	}
	for _, f := range []struct{ dst *string; def string }{
		{&c.Title, d.Title},
		{&c.Greeting, d.Greeting},
		{&c.HighPainAlert, d.HighPainAlert},
		{&c.MicError, d.MicError},
		{&c.DeviceError, d.DeviceError},
		{&c.ConnectionLost, d.ConnectionLost},
		{&c.ConnectionError, d.ConnectionError},
		{&c.ToolFallback, d.ToolFallback},
	} {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}
	return c
}

// Deps are the collaborators. Catalog is required. Agent is needed for chat;
// Live, Capture and Output for voice. Everything else is optional.
type Deps struct {
	Catalog     *catalog.Catalog
	Agent       llm.Client
	Live        llm.LiveConnector
	Capture     Capturer
	Output      OutputOpener
	Notifier    Notifier
	Store       Store
	Transcriber Transcriber
	Recorder    Recorder
	Logger      *slog.Logger
	Now         func() time.Time
}

type Controller struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	now      func() time.Time
	notifier Notifier
	router   *tools.Router

	transcript Transcript
	watchdog   watchdog

	mu        sync.Mutex
	lifecycle Lifecycle
	mode      Mode
	lastError string
	cursor    float64
	voice     *voiceSession
	voiceGen  uint64
	chatID    string
	turnEpoch uint64
}

func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("new controller: catalog is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	c := &Controller{
		cfg:       cfg.withDefaults(),
		deps:      deps,
		logger:    deps.Logger,
		now:       deps.Now,
		notifier:  deps.Notifier,
		lifecycle: Idle,
		mode:      ModeChat,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	c.router = tools.NewRouter(deps.Catalog, tools.OpenerFunc(c.openExercise), deps.Logger)
	return c, nil
}

func (c *Controller) Catalog() *catalog.Catalog { return c.deps.Catalog }

func (c *Controller) Transcript() []Turn { return c.transcript.Turns() }

func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() SessionState {
	st := SessionState{
		Lifecycle:      c.lifecycle,
		Mode:           c.mode,
		PlaybackCursor: c.cursor,
		LastError:      c.lastError,
	}
	if c.voice != nil {
		st.SessionID = c.voice.id
	} else {
		st.SessionID = c.chatID
	}
	return st
}

// Open starts the coach conversation, greeting the user when there is no
// history yet.
func (c *Controller) Open() {
	c.mu.Lock()
	startChat := c.chatID == ""
	if startChat {
		c.chatID = newSessionID(ModeChat, c.now())
	}
	chatID := c.chatID
	c.mu.Unlock()

	if startChat {
		c.storeCreate(chatID, ModeChat)
	}
	if c.transcript.Len() == 0 {
		c.appendTurn(RoleAgent, c.cfg.Greeting)
	}
}

// Reset dismisses the conversation and opens a fresh one. In-flight chat
// turns are discarded.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.lifecycle != Idle {
		c.mu.Unlock()
		return ErrVoiceActive
	}
	c.turnEpoch++
	chatID := c.chatID
	c.chatID = ""
	c.lastError = ""
	c.mu.Unlock()

	if chatID != "" {
		c.storeEnd(chatID, storage.EndReset, "")
	}
	c.transcript.clear()
	c.logger.Info("conversation reset")
	c.Open()
	return nil
}

// Nudge appends an agent turn on behalf of an external trigger.
func (c *Controller) Nudge(text string) Turn {
	return c.appendTurn(RoleAgent, text)
}

// ReportPain posts the high-pain alert when score reaches the threshold.
func (c *Controller) ReportPain(score int) bool {
	if score < c.cfg.HighPainThreshold {
		return false
	}
	c.logger.Info("high pain reported", "score", score)
	c.notifier.Notify(c.cfg.Title, c.cfg.HighPainAlert)
	c.Nudge(c.cfg.HighPainAlert)
	return true
}

func (c *Controller) appendTurn(role, text string) Turn {
	turn := c.transcript.Append(role, text, c.now())
	c.notifier.TurnAppended(turn)
	return turn
}

// transitionLocked moves the lifecycle and reports the new snapshot. Invalid
// transitions are refused.
func (c *Controller) transitionLocked(to Lifecycle, mode Mode) (SessionState, bool) {
	if !canTransition(c.lifecycle, to) {
		c.logger.Warn("invalid session transition", "from", c.lifecycle, "to", to)
		return c.stateLocked(), false
	}
	c.logger.Info("session transition", "from", c.lifecycle, "to", to, "mode", mode)
	c.lifecycle = to
	c.mode = mode
	return c.stateLocked(), true
}

func (c *Controller) openExercise(_ context.Context, ex catalog.Exercise) error {
	c.notifier.ExerciseOpened(ex)
	return nil
}

// dispatch runs one agent tool call and records it. The result always goes
// back to the agent.
func (c *Controller) dispatch(ctx context.Context, sessionID string, call llm.ToolCall) tools.Result {
	res, err := c.router.Dispatch(ctx, tools.Invocation{ID: call.ID, Name: call.Name, Args: call.Args})
	if err != nil {
		c.logger.Warn("tool dispatch failed", "session_id", sessionID, "name", call.Name, "id", call.ID, "error", err)
	}

	if c.deps.Store != nil {
		args, mErr := json.Marshal(call.Args)
		if mErr != nil {
			args = []byte("{}")
		}
		inv := storage.ToolInvocation{
			SessionID: sessionID,
			CallID:    call.ID,
			Name:      call.Name,
			Arguments: string(args),
			Result:    res.Text,
			OK:        res.OK,
			At:        c.now(),
		}
		if err := c.deps.Store.RecordToolInvocation(inv); err != nil {
			c.logger.Warn("record tool invocation failed", "session_id", sessionID, "error", err)
		}
	}
	return res
}

func (c *Controller) storeCreate(id string, mode Mode) {
	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.CreateSession(id, string(mode), c.now()); err != nil {
		c.logger.Warn("create session record failed", "session_id", id, "error", err)
	}
}

func (c *Controller) storeEnd(id, endState, errText string) {
	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.EndSession(id, c.now(), endState, errText); err != nil {
		c.logger.Warn("end session record failed", "session_id", id, "error", err)
	}
}

func newSessionID(mode Mode, at time.Time) string {
	return fmt.Sprintf("%s-%s", mode, at.UTC().Format("20060102T150405.000000"))
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string)           {}
func (nopNotifier) TurnAppended(Turn)               {}
func (nopNotifier) StateChanged(SessionState)       {}
func (nopNotifier) ExerciseOpened(catalog.Exercise) {}
