package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const (
	DefaultLiveModel  = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultLiveVoice  = "Zephyr"
	defaultOutputRate = 24000
)

type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             string
	Tools             []ToolSpec
	InputSampleRate   int
}

// LiveCallbacks receive events from a streaming session. They are invoked
// from the session's receive goroutine, one at a time and in arrival order.
type LiveCallbacks struct {
	OnOpen       func()
	OnAudio      func(pcm16 []byte, sampleRate int)
	OnToolCall   func(call ToolCall)
	OnTranscript func(role, text string)
	OnClose      func(reason string)
	OnError      func(err error)
}

type LiveSession interface {
	SendAudio(pcm16 []byte) error
	SendToolResult(result ToolResult) error
	Close() error
}

type LiveConnector interface {
	Connect(ctx context.Context, cfg LiveConfig, cb LiveCallbacks) (LiveSession, error)
}

// GeminiLive connects to the Gemini Live API.
type GeminiLive struct {
	client *genai.Client
	logger *slog.Logger
}

func NewGeminiLive(apiKey string, logger *slog.Logger, opts ...Option) (*GeminiLive, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newGenAI(apiKey, o.baseURL)
	if err != nil {
		return nil, err
	}
	return &GeminiLive{client: client, logger: logger}, nil
}

func (g *GeminiLive) Connect(ctx context.Context, cfg LiveConfig, cb LiveCallbacks) (LiveSession, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultLiveModel
	}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultLiveVoice
	}
	rate := cfg.InputSampleRate
	if rate <= 0 {
		rate = 16000
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		Tools:                    geminiTools(cfg.Tools),
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemInstruction != "" {
		connectCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}

	session, err := g.client.Live.Connect(ctx, model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("connect gemini live: %w", err)
	}

	s := &geminiLiveSession{
		session:  session,
		mimeType: "audio/pcm;rate=" + strconv.Itoa(rate),
		cb:       cb,
		logger:   g.logger,
	}
	go s.receive()
	return s, nil
}

type geminiLiveSession struct {
	session  *genai.Session
	mimeType string
	cb       LiveCallbacks
	logger   *slog.Logger

	sendMu sync.Mutex

	closeOnce sync.Once
	mu        sync.Mutex
	closing   bool
}

func (s *geminiLiveSession) SendAudio(pcm16 []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm16, MIMEType: s.mimeType},
	})
	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *geminiLiveSession) SendToolResult(result ToolResult) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{geminiFunctionResponse(result)},
	})
	if err != nil {
		return fmt.Errorf("send tool response: %w", err)
	}
	return nil
}

// Close ends the session. The receive goroutine reports OnClose once.
func (s *geminiLiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		err = s.session.Close()
	})
	return err
}

func (s *geminiLiveSession) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *geminiLiveSession) receive() {
	var transcript strings.Builder
	for {
		msg, err := s.session.Receive()
		if err != nil {
			if s.isClosing() {
				s.emitClose("closed by client")
				return
			}
			s.emitError(fmt.Errorf("receive: %w", err))
			s.emitClose(err.Error())
			return
		}
		if msg == nil {
			continue
		}

		if msg.SetupComplete != nil && s.cb.OnOpen != nil {
			s.cb.OnOpen()
		}

		if content := msg.ServerContent; content != nil {
			if content.ModelTurn != nil {
				for _, part := range content.ModelTurn.Parts {
					if part == nil || part.InlineData == nil || s.cb.OnAudio == nil {
						continue
					}
					s.cb.OnAudio(part.InlineData.Data, sampleRateFromMIME(part.InlineData.MIMEType))
				}
			}
			if content.OutputTranscription != nil {
				transcript.WriteString(content.OutputTranscription.Text)
			}
			if content.Interrupted {
				transcript.Reset()
			}
			if content.TurnComplete {
				if text := strings.TrimSpace(transcript.String()); text != "" && s.cb.OnTranscript != nil {
					s.cb.OnTranscript(RoleAssistant, text)
				}
				transcript.Reset()
			}
		}

		if msg.ToolCall != nil && s.cb.OnToolCall != nil {
			for _, fc := range msg.ToolCall.FunctionCalls {
				if fc == nil {
					continue
				}
				s.cb.OnToolCall(ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
			}
		}

		if msg.GoAway != nil {
			s.logger.Warn("live session going away")
		}
	}
}

func (s *geminiLiveSession) emitError(err error) {
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func (s *geminiLiveSession) emitClose(reason string) {
	if s.cb.OnClose != nil {
		s.cb.OnClose(reason)
	}
}

// sampleRateFromMIME reads the rate parameter of an audio/pcm MIME type.
func sampleRateFromMIME(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return defaultOutputRate
}

var _ LiveSession = (*geminiLiveSession)(nil)
