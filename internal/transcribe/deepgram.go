package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

var ErrConnect = errors.New("deepgram connect failed")

type DeepgramOptions struct {
	Model    string
	Language string
}

// Deepgram opens one live transcription stream per voice session.
type Deepgram struct {
	apiKey string
	opts   DeepgramOptions
	logger *slog.Logger
}

func NewDeepgram(apiKey string, opts DeepgramOptions, logger *slog.Logger) *Deepgram {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deepgram{apiKey: apiKey, opts: opts, logger: logger}
}

// Start connects and returns a writer for little-endian PCM16 mono audio.
// Closing the writer flushes any pending words as a final utterance.
func (d *Deepgram) Start(ctx context.Context, sampleRate int, onUtterance func(Utterance)) (io.WriteCloser, error) {
	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:       d.opts.Model,
		Language:    d.opts.Language,
		Punctuate:   true,
		SmartFormat: true,
		Encoding:    "linear16",
		SampleRate:  sampleRate,
		Channels:    1,
	}

	cb := newCallback(onUtterance, d.logger, time.Now)
	dg, err := client.NewWSUsingCallback(ctx, d.apiKey, cOptions, tOptions, cb)
	if err != nil {
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return nil, ErrConnect
	}

	return &stream{conn: dg, cb: cb}, nil
}

type liveConn interface {
	Write(p []byte) (int, error)
	Stop()
}

type stream struct {
	conn liveConn
	cb   *callback
	once sync.Once
}

func (s *stream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.conn.Stop()
		s.cb.flush()
	})
	return nil
}

// callback implements the Deepgram live message callback.
type callback struct {
	buffer      *UtteranceBuffer
	onUtterance func(Utterance)
	logger      *slog.Logger
	now         func() time.Time
}

func newCallback(onUtterance func(Utterance), logger *slog.Logger, now func() time.Time) *callback {
	return &callback{buffer: NewUtteranceBuffer(), onUtterance: onUtterance, logger: logger, now: now}
}

func (c *callback) Message(mr *api.MessageResponse) error {
	if !mr.IsFinal || len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	words := make([]Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, Word{PunctuatedWord: w.PunctuatedWord, Start: w.Start, End: w.End})
	}
	if len(words) == 0 {
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			words = append(words, Word{PunctuatedWord: text})
		}
	}
	c.buffer.AddWords(words)

	if mr.SpeechFinal {
		c.flush()
	}
	return nil
}

func (c *callback) flush() {
	u, ok := JoinWords(c.buffer.Flush(), c.now().UTC())
	if !ok || c.onUtterance == nil {
		return
	}
	c.onUtterance(u)
}

func (c *callback) Open(*api.OpenResponse) error {
	c.logger.Info("connected to deepgram")
	return nil
}

func (c *callback) Metadata(*api.MetadataResponse) error { return nil }

func (c *callback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(*api.UtteranceEndResponse) error {
	c.flush()
	return nil
}

func (c *callback) Close(*api.CloseResponse) error {
	c.logger.Info("disconnected from deepgram")
	return nil
}

func (c *callback) Error(er *api.ErrorResponse) error {
	c.logger.Warn("deepgram error", "code", er.ErrCode, "description", er.Description)
	return nil
}

func (c *callback) UnhandledEvent([]byte) error { return nil }
