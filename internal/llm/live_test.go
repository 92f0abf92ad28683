package llm

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSampleRateFromMIME(t *testing.T) {
	tests := map[string]int{
		"audio/pcm;rate=24000":           24000,
		"audio/pcm; rate=16000":          16000,
		"audio/pcm":                      24000,
		"audio/pcm;rate=bogus":           24000,
		"audio/L16;codec=pcm;rate=48000": 48000,
	}
	for mime, want := range tests {
		if got := sampleRateFromMIME(mime); got != want {
			t.Errorf("sampleRateFromMIME(%q) = %d, want %d", mime, got, want)
		}
	}
}

type liveRecorder struct {
	mu          sync.Mutex
	opened      int
	audio       [][]byte
	rates       []int
	calls       []ToolCall
	transcripts []string
	closed      []string
	errs        []error
}

func (r *liveRecorder) callbacks() LiveCallbacks {
	return LiveCallbacks{
		OnOpen: func() { r.mu.Lock(); r.opened++; r.mu.Unlock() },
		OnAudio: func(b []byte, rate int) {
			r.mu.Lock()
			r.audio = append(r.audio, b)
			r.rates = append(r.rates, rate)
			r.mu.Unlock()
		},
		OnToolCall:   func(c ToolCall) { r.mu.Lock(); r.calls = append(r.calls, c); r.mu.Unlock() },
		OnTranscript: func(role, text string) { r.mu.Lock(); r.transcripts = append(r.transcripts, role+":"+text); r.mu.Unlock() },
		OnClose:      func(reason string) { r.mu.Lock(); r.closed = append(r.closed, reason); r.mu.Unlock() },
		OnError:      func(err error) { r.mu.Lock(); r.errs = append(r.errs, err); r.mu.Unlock() },
	}
}

func (r *liveRecorder) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		ok := cond()
		r.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for live callbacks")
}

func TestGeminiLiveSessionFlow(t *testing.T) {
	upgrader := websocket.Upgrader{}
	fromClient := make(chan map[string]any, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var setup map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		fromClient <- setup

		audio := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})
		for _, msg := range []map[string]any{
			{"setupComplete": map[string]any{}},
			{"serverContent": map[string]any{"modelTurn": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": audio}},
			}}}},
			{"toolCall": map[string]any{"functionCalls": []any{
				map[string]any{"id": "fc1", "name": "startExercise", "args": map[string]any{"exerciseId": "cat_cow"}},
			}}},
			{"serverContent": map[string]any{"outputTranscription": map[string]any{"text": "Let's "}}},
			{"serverContent": map[string]any{"outputTranscription": map[string]any{"text": "stretch."}, "turnComplete": true}},
		} {
			if err := conn.WriteJSON(msg); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			fromClient <- msg
		}
	}))
	defer server.Close()

	live, err := NewGeminiLive("test-key", nil, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGeminiLive failed: %v", err)
	}

	rec := &liveRecorder{}
	session, err := live.Connect(context.Background(), LiveConfig{
		SystemInstruction: "be brief",
		Tools:             []ToolSpec{startExerciseSpec()},
		InputSampleRate:   16000,
	}, rec.callbacks())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	setup := <-fromClient
	if _, ok := setup["setup"]; !ok {
		t.Fatalf("expected setup message first, got %v", setup)
	}

	rec.waitFor(t, func() bool { return len(rec.transcripts) == 1 })

	rec.mu.Lock()
	if rec.opened != 1 {
		t.Fatalf("expected one open, got %d", rec.opened)
	}
	if len(rec.audio) != 1 || len(rec.audio[0]) != 4 || rec.rates[0] != 24000 {
		t.Fatalf("unexpected audio callbacks: %v %v", rec.audio, rec.rates)
	}
	if len(rec.calls) != 1 || rec.calls[0].ID != "fc1" || rec.calls[0].Args["exerciseId"] != "cat_cow" {
		t.Fatalf("unexpected tool calls: %#v", rec.calls)
	}
	if rec.transcripts[0] != "assistant:Let's stretch." {
		t.Fatalf("unexpected transcript %q", rec.transcripts[0])
	}
	rec.mu.Unlock()

	if err := session.SendAudio([]byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}
	if msg := <-fromClient; msg["realtimeInput"] == nil {
		t.Fatalf("expected realtimeInput, got %v", msg)
	}

	if err := session.SendToolResult(ToolResult{CallID: "fc1", Name: "startExercise", Content: "Success."}); err != nil {
		t.Fatalf("SendToolResult failed: %v", err)
	}
	if msg := <-fromClient; msg["toolResponse"] == nil {
		t.Fatalf("expected toolResponse, got %v", msg)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	rec.waitFor(t, func() bool { return len(rec.closed) == 1 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 0 {
		t.Fatalf("expected no errors after client close, got %v", rec.errs)
	}
}
