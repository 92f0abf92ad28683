package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gback-app/coach-engine/internal/llm"
)

func TestSendTurnStartsExerciseThroughTool(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.replies = []agentReply{
		{resp: llm.Response{ToolCalls: []llm.ToolCall{{
			ID:   "call-1",
			Name: "startExercise",
			Args: map[string]any{"exerciseId": "cat_cow"},
		}}}},
		{resp: llm.Response{Text: "Cat-Cow is ready for you."}},
	}

	turn, err := f.ctrl.SendTurn(context.Background(), "start the cat-cow stretch")
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if turn.Role != RoleAgent || turn.Text != "Cat-Cow is ready for you." {
		t.Fatalf("unexpected reply turn: %+v", turn)
	}

	if opened := f.notifier.openedIDs(); len(opened) != 1 || opened[0] != "cat_cow" {
		t.Fatalf("expected cat_cow opened once, got %v", opened)
	}

	if f.agent.callCount() != 2 {
		t.Fatalf("expected two agent requests, got %d", f.agent.callCount())
	}
	followUp := f.agent.calls[1]
	result := followUp[len(followUp)-1]
	if result.Role != llm.RoleTool || result.ToolResult == nil {
		t.Fatalf("expected tool result as last message, got %+v", result)
	}
	if result.ToolResult.CallID != "call-1" {
		t.Fatalf("tool result call id = %q", result.ToolResult.CallID)
	}
	if result.ToolResult.Content != "Success. I have opened the Cat-Cow Stretch exercise for the user." {
		t.Fatalf("tool result content = %q", result.ToolResult.Content)
	}
	call := followUp[len(followUp)-2]
	if call.Role != llm.RoleAssistant || len(call.ToolCalls) != 1 {
		t.Fatalf("expected assistant tool call before result, got %+v", call)
	}

	turns := f.ctrl.Transcript()
	if len(turns) != 2 || turns[0].Role != RoleUser || turns[1].Role != RoleAgent {
		t.Fatalf("unexpected transcript: %+v", turns)
	}

	if len(f.store.invocations) != 1 || !f.store.invocations[0].OK {
		t.Fatalf("expected one successful invocation recorded, got %+v", f.store.invocations)
	}
	if !strings.Contains(f.store.invocations[0].Arguments, `"exerciseId":"cat_cow"`) {
		t.Fatalf("recorded arguments = %s", f.store.invocations[0].Arguments)
	}
}

func TestSendTurnPlainReply(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.replies = []agentReply{{resp: llm.Response{Text: "Try to keep your core engaged."}}}

	turn, err := f.ctrl.SendTurn(context.Background(), "any tips?")
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if turn.Text != "Try to keep your core engaged." {
		t.Fatalf("reply = %q", turn.Text)
	}
	if len(f.notifier.openedIDs()) != 0 {
		t.Fatal("plain reply must not open an exercise")
	}

	tools := f.agent.tools[0]
	if len(tools) != 1 || tools[0].Name != "startExercise" {
		t.Fatalf("expected startExercise declared, got %+v", tools)
	}
}

func TestSendTurnHistoryStartsWithSystemAndUser(t *testing.T) {
	f := newFixture(t, nil)
	f.ctrl.Open()
	f.agent.replies = []agentReply{{resp: llm.Response{Text: "ok"}}}

	if _, err := f.ctrl.SendTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	msgs := f.agent.calls[0]
	if len(msgs) != 2 {
		t.Fatalf("expected system + user, got %d messages", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[0].Content, "Cat-Cow Stretch (ID: cat_cow)") {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Content, "Language: English") {
		t.Fatalf("system message should name the language: %q", msgs[0].Content)
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", msgs[1])
	}
}

func TestSendTurnFailureAppendsConnectionLost(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.replies = []agentReply{{err: errors.New("dial tcp: refused")}}

	turn, err := f.ctrl.SendTurn(context.Background(), "hi")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if turn.Text != "Connection lost." {
		t.Fatalf("expected connection-lost turn, got %q", turn.Text)
	}
	if n := len(f.ctrl.Transcript()); n != 2 {
		t.Fatalf("expected user and error turns, got %d", n)
	}
}

func TestSendTurnUsesFirstOfSeveralToolCalls(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.replies = []agentReply{
		{resp: llm.Response{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: "startExercise", Args: map[string]any{"exerciseId": "bird_dog"}},
			{ID: "b", Name: "startExercise", Args: map[string]any{"exerciseId": "child_pose"}},
		}}},
		{resp: llm.Response{Text: "Bird-Dog it is."}},
	}

	if _, err := f.ctrl.SendTurn(context.Background(), "two please"); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if opened := f.notifier.openedIDs(); len(opened) != 1 || opened[0] != "bird_dog" {
		t.Fatalf("expected only the first call acted on, got %v", opened)
	}
}

func TestSendTurnFallsBackWhenConfirmationEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.replies = []agentReply{
		{resp: llm.Response{ToolCalls: []llm.ToolCall{{Name: "startExercise", Args: map[string]any{"exerciseId": "pelvic_tilt"}}}}},
		{err: llm.ErrEmptyResponse},
	}

	turn, err := f.ctrl.SendTurn(context.Background(), "pelvic tilt")
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if turn.Text != "Starting that for you now!" {
		t.Fatalf("expected fallback text, got %q", turn.Text)
	}
}

func TestSendTurnUnknownExerciseStillConfirms(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.replies = []agentReply{
		{resp: llm.Response{ToolCalls: []llm.ToolCall{{ID: "x", Name: "startExercise", Args: map[string]any{"exerciseId": "bogus"}}}}},
		{resp: llm.Response{Text: "I could not find that one."}},
	}

	turn, err := f.ctrl.SendTurn(context.Background(), "bogus")
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if turn.Text != "I could not find that one." {
		t.Fatalf("reply = %q", turn.Text)
	}
	if len(f.notifier.openedIDs()) != 0 {
		t.Fatal("unknown id must not open anything")
	}
	followUp := f.agent.calls[1]
	if got := followUp[len(followUp)-1].ToolResult.Content; got != "Error. Exercise ID bogus not found." {
		t.Fatalf("tool result = %q", got)
	}
}

func TestSendTurnRejectsEmptyText(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.ctrl.SendTurn(context.Background(), "   "); !errors.Is(err, ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn, got %v", err)
	}
	if f.agent.callCount() != 0 {
		t.Fatal("empty turn must not reach the agent")
	}
}

func TestCancelTurnDiscardsLateReply(t *testing.T) {
	f := newFixture(t, nil)
	f.agent.gate = make(chan struct{})
	f.agent.entered = make(chan struct{}, 1)
	f.agent.replies = []agentReply{{resp: llm.Response{Text: "too late"}}}

	errCh := make(chan error, 1)
	go func() {
		_, err := f.ctrl.SendTurn(context.Background(), "hello")
		errCh <- err
	}()

	<-f.agent.entered
	f.ctrl.CancelTurn()
	close(f.agent.gate)

	if err := <-errCh; !errors.Is(err, ErrTurnCancelled) {
		t.Fatalf("expected ErrTurnCancelled, got %v", err)
	}
	for _, turn := range f.ctrl.Transcript() {
		if turn.Text == "too late" {
			t.Fatal("cancelled reply must not be appended")
		}
	}
}
