package session

import (
	"context"
	"io"
	"time"

	"github.com/gback-app/coach-engine/internal/audio"
	"github.com/gback-app/coach-engine/internal/catalog"
	"github.com/gback-app/coach-engine/internal/storage"
	"github.com/gback-app/coach-engine/internal/transcribe"
)

// Notifier is the UI surface. The controller calls it outside its own locks.
type Notifier interface {
	Notify(title, message string)
	TurnAppended(turn Turn)
	StateChanged(state SessionState)
	ExerciseOpened(ex catalog.Exercise)
}

type Store interface {
	CreateSession(id, mode string, startedAt time.Time) error
	EndSession(id string, endedAt time.Time, endState, errText string) error
	RecordToolInvocation(inv storage.ToolInvocation) error
}

// Capturer is the microphone. onError reports a device that died after
// Start succeeded. Stop must not return while an open is still pending.
type Capturer interface {
	Start(ctx context.Context, onFrame func(audio.Frame), onError func(error)) error
	Stop() error
}

// OutputOpener acquires the playback device for one voice session.
type OutputOpener func() (audio.Output, error)

type Transcriber interface {
	Start(ctx context.Context, sampleRate int, onUtterance func(transcribe.Utterance)) (io.WriteCloser, error)
}

type Recorder interface {
	StartSession(sessionID string) error
	EndSession() (string, error)
	Writer(dst io.Writer) io.Writer
}
