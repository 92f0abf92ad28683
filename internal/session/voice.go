package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gback-app/coach-engine/internal/audio"
	"github.com/gback-app/coach-engine/internal/llm"
	"github.com/gback-app/coach-engine/internal/pcm"
	"github.com/gback-app/coach-engine/internal/storage"
	"github.com/gback-app/coach-engine/internal/transcribe"
)

// voiceSession holds the resources of one streaming session. Fields other
// than id, gen, ctx, cancel, uplink and ready are guarded by Controller.mu.
type voiceSession struct {
	id     string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	uplink *uplink

	ready     chan struct{}
	readyOnce sync.Once

	done      bool
	err       error
	endState  string
	capturing bool
	scheduler *audio.Scheduler
	handle    llm.LiveSession
	tap       io.WriteCloser
	recording bool
	seen      map[string]struct{}
}

func (vs *voiceSession) signal() {
	vs.readyOnce.Do(func() { close(vs.ready) })
}

// StartVoice opens a streaming voice session and blocks until the transport
// confirms it or the attempt fails. StopVoice may be called concurrently to
// abort the attempt, in which case ErrVoiceStopped is returned. If ctx ends
// first the attempt is aborted as well.
func (c *Controller) StartVoice(ctx context.Context) error {
	if c.deps.Live == nil || c.deps.Capture == nil || c.deps.Output == nil {
		return fmt.Errorf("start voice: %w: voice is not configured", ErrTransport)
	}

	c.mu.Lock()
	if c.lifecycle != Idle {
		c.mu.Unlock()
		return ErrVoiceActive
	}
	c.voiceGen++
	sessCtx, cancel := context.WithCancel(context.Background())
	vs := &voiceSession{
		id:     newSessionID(ModeVoice, c.now()),
		gen:    c.voiceGen,
		ctx:    sessCtx,
		cancel: cancel,
		uplink: newUplink(),
		ready:  make(chan struct{}),
		seen:   make(map[string]struct{}),
	}
	c.voice = vs
	c.cursor = 0
	c.lastError = ""
	st, _ := c.transitionLocked(Connecting, ModeVoice)
	c.mu.Unlock()

	c.notifier.StateChanged(st)
	c.storeCreate(vs.id, ModeVoice)
	c.watchdog.Arm(c.cfg.ConnectTimeout, func() {
		c.fail(vs, fmt.Errorf("%w: session did not open within %s", ErrTransport, c.cfg.ConnectTimeout), c.cfg.ConnectionLost)
	})

	go c.connect(vs)

	select {
	case <-vs.ready:
	case <-ctx.Done():
		_ = c.stop(vs)
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case vs.err != nil:
		return vs.err
	case vs.done:
		return ErrVoiceStopped
	}
	return nil
}

// connect acquires the output device, the microphone and the live session,
// in that order. Each step checks that the session was not torn down while
// it was suspended and releases what it acquired if it was.
func (c *Controller) connect(vs *voiceSession) {
	out, err := c.deps.Output()
	if err != nil {
		c.fail(vs, fmt.Errorf("open audio output: %w", err), c.cfg.DeviceError)
		return
	}
	scheduler := audio.NewScheduler(out)
	if !c.attach(vs, func() { vs.scheduler = scheduler }) {
		c.closeQuietly("audio output", scheduler.Close)
		return
	}

	// Claim the capture before starting it so a concurrent teardown stops
	// an open that is still waiting on the device.
	if !c.attach(vs, func() { vs.capturing = true }) {
		return
	}
	err = c.deps.Capture.Start(vs.ctx,
		func(f audio.Frame) { c.onFrame(vs, f) },
		func(err error) { c.fail(vs, err, c.cfg.DeviceError) },
	)
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		c.fail(vs, err, c.cfg.MicError)
		return
	case errors.Is(err, audio.ErrCaptureStopped):
		return
	case err != nil:
		c.fail(vs, err, c.cfg.DeviceError)
		return
	}
	if !c.current(vs) {
		c.closeQuietly("capture", c.deps.Capture.Stop)
		return
	}

	c.startTap(vs)
	go vs.uplink.run(func(err error) {
		c.fail(vs, fmt.Errorf("%w: send audio: %v", ErrTransport, err), c.cfg.ConnectionLost)
	})

	handle, err := c.deps.Live.Connect(vs.ctx, llm.LiveConfig{
		Model:             c.cfg.LiveModel,
		SystemInstruction: voiceInstruction(c.cfg.Language, c.deps.Catalog),
		Voice:             c.cfg.Voice,
		Tools:             c.router.Specs(),
		InputSampleRate:   c.cfg.InputSampleRate,
	}, c.callbacks(vs))
	if err != nil {
		c.fail(vs, fmt.Errorf("%w: connect live session: %v", ErrTransport, err), c.cfg.ConnectionLost)
		return
	}
	if !c.attach(vs, func() { vs.handle = handle }) {
		c.closeQuietly("live session", handle.Close)
		return
	}
	vs.uplink.attach(handle)
}

// startTap tees captured audio into the transcriber and the recorder. Both
// are optional and failures only cost the extra output.
func (c *Controller) startTap(vs *voiceSession) {
	var dst io.WriteCloser
	if c.deps.Transcriber != nil {
		w, err := c.deps.Transcriber.Start(vs.ctx, c.cfg.InputSampleRate, func(u transcribe.Utterance) {
			c.onUtterance(vs, u)
		})
		if err != nil {
			c.logger.Warn("transcriber unavailable", "session_id", vs.id, "error", err)
		} else {
			dst = w
		}
	}

	recording := false
	if c.deps.Recorder != nil {
		if err := c.deps.Recorder.StartSession(vs.id); err != nil {
			c.logger.Warn("recording unavailable", "session_id", vs.id, "error", err)
		} else {
			recording = true
			var inner io.Writer = io.Discard
			if dst != nil {
				inner = dst
			}
			dst = tapWriter{Writer: c.deps.Recorder.Writer(inner), closer: dst}
		}
	}
	if dst == nil {
		return
	}

	if !c.attach(vs, func() { vs.tap = dst; vs.recording = recording }) {
		c.closeQuietly("transcriber", dst.Close)
		if recording {
			c.endRecording(vs.id)
		}
	}
}

func (c *Controller) callbacks(vs *voiceSession) llm.LiveCallbacks {
	return llm.LiveCallbacks{
		OnOpen:     func() { c.onOpen(vs) },
		OnAudio:    func(chunk []byte, rate int) { c.onAudio(vs, chunk, rate) },
		OnToolCall: func(call llm.ToolCall) { c.onToolCall(vs, call) },
		OnTranscript: func(role, text string) {
			if c.current(vs) && strings.TrimSpace(text) != "" {
				c.appendTurn(RoleAgent, strings.TrimSpace(text))
			}
		},
		OnClose: func(reason string) {
			c.fail(vs, fmt.Errorf("%w: session closed: %s", ErrTransport, reason), c.cfg.ConnectionLost)
		},
		OnError: func(err error) {
			c.fail(vs, fmt.Errorf("%w: %v", ErrTransport, err), c.cfg.ConnectionError)
		},
	}
}

func (c *Controller) onOpen(vs *voiceSession) {
	c.mu.Lock()
	if c.voice != vs || vs.done || c.lifecycle != Connecting {
		c.mu.Unlock()
		return
	}
	st, _ := c.transitionLocked(Connected, ModeVoice)
	c.mu.Unlock()

	c.watchdog.Disarm()
	vs.uplink.markOpen()
	c.notifier.StateChanged(st)
	vs.signal()
}

func (c *Controller) onFrame(vs *voiceSession, f audio.Frame) {
	chunk := pcm.EncodePCM16(f.Samples)
	vs.uplink.push(chunk)

	c.mu.Lock()
	tap := vs.tap
	if vs.done {
		tap = nil
	}
	c.mu.Unlock()
	if tap != nil {
		if _, err := tap.Write(chunk); err != nil {
			c.logger.Warn("audio tap write failed", "session_id", vs.id, "error", err)
		}
	}
}

// onAudio schedules one inbound chunk. Malformed chunks are dropped.
func (c *Controller) onAudio(vs *voiceSession, chunk []byte, rate int) {
	samples, err := pcm.DecodePCM16(chunk)
	if err != nil {
		c.logger.Warn("dropping inbound audio chunk", "session_id", vs.id, "bytes", len(chunk), "error", err)
		return
	}

	c.mu.Lock()
	scheduler := vs.scheduler
	if c.voice != vs || vs.done {
		scheduler = nil
	}
	c.mu.Unlock()
	if scheduler == nil {
		return
	}

	if _, err := scheduler.Enqueue(samples, rate); err != nil {
		c.logger.Warn("dropping inbound audio chunk", "session_id", vs.id, "error", err)
		return
	}

	c.mu.Lock()
	if c.voice == vs {
		c.cursor = scheduler.Cursor()
	}
	c.mu.Unlock()
}

// onToolCall dispatches each invocation id at most once per session.
func (c *Controller) onToolCall(vs *voiceSession, call llm.ToolCall) {
	c.mu.Lock()
	if c.voice != vs || vs.done {
		c.mu.Unlock()
		return
	}
	if call.ID != "" {
		if _, dup := vs.seen[call.ID]; dup {
			c.mu.Unlock()
			c.logger.Warn("ignoring repeated tool call", "session_id", vs.id, "id", call.ID, "name", call.Name)
			return
		}
		vs.seen[call.ID] = struct{}{}
	}
	handle := vs.handle
	c.mu.Unlock()

	result := c.dispatch(vs.ctx, vs.id, call)
	if handle == nil {
		c.logger.Warn("tool result has no session to return to", "session_id", vs.id, "name", call.Name)
		return
	}
	if err := handle.SendToolResult(result.ToolResult()); err != nil {
		c.fail(vs, fmt.Errorf("%w: send tool result: %v", ErrTransport, err), c.cfg.ConnectionLost)
	}
}

func (c *Controller) onUtterance(vs *voiceSession, u transcribe.Utterance) {
	if !c.current(vs) {
		return
	}
	c.appendTurn(RoleUser, u.Text)
}

// StopVoice ends the voice session, including one that is still connecting.
// It returns once every resource has been released.
func (c *Controller) StopVoice() error {
	c.mu.Lock()
	vs := c.voice
	c.mu.Unlock()
	if vs == nil {
		return ErrNoVoiceSession
	}
	return c.stop(vs)
}

func (c *Controller) stop(vs *voiceSession) error {
	c.mu.Lock()
	if c.voice != vs || vs.done {
		c.mu.Unlock()
		return ErrNoVoiceSession
	}
	vs.done = true
	vs.endState = storage.EndStopped
	st, _ := c.transitionLocked(Closing, ModeVoice)
	c.mu.Unlock()

	c.notifier.StateChanged(st)
	c.release(vs)
	return nil
}

// fail moves the session to errored, tells the user, and releases it. Only
// the first failure of a session counts.
func (c *Controller) fail(vs *voiceSession, err error, userMsg string) {
	c.mu.Lock()
	if c.voice != vs || vs.done {
		c.mu.Unlock()
		return
	}
	vs.done = true
	vs.err = err
	vs.endState = storage.EndErrored
	c.lastError = userMsg
	st, _ := c.transitionLocked(Errored, ModeChat)
	c.mu.Unlock()

	c.logger.Error("voice session failed", "session_id", vs.id, "error", err)
	c.notifier.StateChanged(st)
	c.notifier.Notify(c.cfg.Title, userMsg)
	c.release(vs)
}

// release runs every teardown step even when earlier ones fail, then
// returns the controller to idle chat.
func (c *Controller) release(vs *voiceSession) {
	c.watchdog.Disarm()

	c.mu.Lock()
	capturing := vs.capturing
	scheduler := vs.scheduler
	handle := vs.handle
	tap := vs.tap
	recording := vs.recording
	c.mu.Unlock()

	if capturing {
		c.closeQuietly("capture", c.deps.Capture.Stop)
	}
	vs.uplink.close()
	if handle != nil {
		c.closeQuietly("live session", handle.Close)
	}
	if tap != nil {
		c.closeQuietly("transcriber", tap.Close)
	}
	if recording {
		c.endRecording(vs.id)
	}
	if scheduler != nil {
		c.closeQuietly("audio output", scheduler.Close)
	}
	vs.cancel()

	c.mu.Lock()
	errText := ""
	if vs.err != nil {
		errText = vs.err.Error()
	}
	endState := vs.endState
	var st SessionState
	changed := false
	if c.voice == vs {
		st, changed = c.transitionLocked(Idle, ModeChat)
		c.voice = nil
		st = c.stateLocked()
	}
	c.mu.Unlock()

	c.storeEnd(vs.id, endState, errText)
	if changed {
		c.notifier.StateChanged(st)
	}
	vs.signal()
}

// attach records a freshly acquired resource unless the session has
// already been torn down.
func (c *Controller) attach(vs *voiceSession, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vs.done {
		return false
	}
	fn()
	return true
}

func (c *Controller) current(vs *voiceSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice == vs && !vs.done
}

func (c *Controller) closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		c.logger.Warn("teardown step failed", "resource", what, "error", err)
	}
}

func (c *Controller) endRecording(sessionID string) {
	path, err := c.deps.Recorder.EndSession()
	if err != nil {
		c.logger.Warn("finish recording failed", "session_id", sessionID, "error", err)
		return
	}
	if path != "" {
		c.logger.Info("voice session recorded", "session_id", sessionID, "path", path)
	}
}

// tapWriter closes the transcriber behind the recorder's tee.
type tapWriter struct {
	io.Writer
	closer io.Closer
}

func (t tapWriter) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
