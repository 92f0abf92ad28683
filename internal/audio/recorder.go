package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gback-app/coach-engine/internal/pcm"
)

const (
	wavHeaderSize = 44
	pcmChannels   = 1
	pcmBitDepth   = 16
)

// Recorder keeps an optional WAV copy of the microphone stream of each voice
// session. Audio is appended to <dir>/<session>.wav behind a placeholder
// header whose sizes are patched when the session ends.
type Recorder struct {
	dir string

	mu         sync.Mutex
	file       *os.File
	path       string
	written    int
	sampleRate int
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = filepath.Join("data", "recordings")
	}
	return &Recorder{dir: dir, sampleRate: pcm.InputSampleRate}
}

// SetSampleRate sets the rate written into headers. It applies to the
// session in progress as well.
func (r *Recorder) SetSampleRate(sampleRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sampleRate > 0 {
		r.sampleRate = sampleRate
	}
}

// StartSession begins a recording. An unfinished previous recording is
// discarded.
func (r *Recorder) StartSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create recording directory: %w", err)
	}
	r.discardLocked()

	path := filepath.Join(r.dir, sessionID+".wav")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open recording %s: %w", path, err)
	}
	if _, err := f.Write(make([]byte, wavHeaderSize)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("reserve wav header: %w", err)
	}

	r.file = f
	r.path = path
	r.written = 0
	return nil
}

// EndSession finalizes the header and returns the path of the WAV, or ""
// when no session was recording.
func (r *Recorder) EndSession() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return "", nil
	}
	f, path, size := r.file, r.path, r.written
	r.file, r.path, r.written = nil, "", 0

	header, err := pcm.WAVHeader(size, r.sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		_ = f.Close()
		return "", fmt.Errorf("build wav header: %w", err)
	}
	if _, err := f.WriteAt(header, 0); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write wav header: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close recording: %w", err)
	}
	return path, nil
}

// Writer returns a writer that forwards to dst and records a copy of every
// byte dst accepted.
func (r *Recorder) Writer(dst io.Writer) io.Writer {
	return &teeWriter{recorder: r, dst: dst}
}

// WriteFrame records a frame as little-endian PCM16.
func (r *Recorder) WriteFrame(f Frame) error {
	return r.append(pcm.EncodePCM16(f.Samples))
}

func (r *Recorder) append(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	n, err := r.file.Write(data)
	r.written += n
	if err != nil {
		return fmt.Errorf("append recording: %w", err)
	}
	return nil
}

func (r *Recorder) discardLocked() {
	if r.file == nil {
		return
	}
	_ = r.file.Close()
	_ = os.Remove(r.path)
	r.file, r.path, r.written = nil, "", 0
}

type teeWriter struct {
	recorder *Recorder
	dst      io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.recorder.append(p[:n]); err != nil {
		return n, err
	}
	return n, nil
}
