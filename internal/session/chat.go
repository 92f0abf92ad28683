package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gback-app/coach-engine/internal/llm"
)

// SendTurn sends one user message to the turn-based agent and returns the
// agent turn appended in reply. A tool call in the reply is dispatched and
// confirmed through a second request. Agent failures append the
// connection-lost turn and return ErrTransport along with that turn.
func (c *Controller) SendTurn(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyTurn
	}

	c.mu.Lock()
	if c.mode == ModeVoice {
		c.mu.Unlock()
		return Turn{}, ErrVoiceActive
	}
	epoch := c.turnEpoch
	chatID := c.chatID
	c.mu.Unlock()

	c.appendTurn(RoleUser, text)

	if c.deps.Agent == nil {
		return c.turnFailed(errors.New("no chat agent configured"))
	}

	history := c.history()
	specs := c.router.Specs()

	resp, err := c.deps.Agent.Generate(ctx, history, specs)
	if c.cancelled(epoch) {
		return Turn{}, ErrTurnCancelled
	}
	if err != nil {
		return c.turnFailed(err)
	}

	reply := strings.TrimSpace(resp.Text)
	if len(resp.ToolCalls) > 0 {
		reply, err = c.confirmTool(ctx, chatID, history, specs, resp)
		if c.cancelled(epoch) {
			return Turn{}, ErrTurnCancelled
		}
		if err != nil {
			return c.turnFailed(err)
		}
	}

	return c.appendTurn(RoleAgent, reply), nil
}

// CancelTurn discards the reply of every turn currently in flight. The
// requests themselves keep running until the agent answers.
func (c *Controller) CancelTurn() {
	c.mu.Lock()
	c.turnEpoch++
	c.mu.Unlock()
	c.logger.Info("chat turn cancelled")
}

func (c *Controller) cancelled(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnEpoch != epoch
}

// confirmTool acts on the first tool call and asks the agent to confirm it
// to the user.
func (c *Controller) confirmTool(ctx context.Context, chatID string, history []llm.Message, specs []llm.ToolSpec, resp llm.Response) (string, error) {
	call := resp.ToolCalls[0]
	if extra := len(resp.ToolCalls) - 1; extra > 0 {
		ignored := make([]string, 0, extra)
		for _, tc := range resp.ToolCalls[1:] {
			ignored = append(ignored, tc.Name)
		}
		c.logger.Warn("agent returned several tool calls, acting on the first only",
			"used", call.Name, "ignored", ignored)
	}

	result := c.dispatch(ctx, chatID, call)
	toolResult := result.ToolResult()

	followUp := append(history,
		llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: []llm.ToolCall{call}},
		llm.Message{Role: llm.RoleTool, ToolResult: &toolResult},
	)

	confirm, err := c.deps.Agent.Generate(ctx, followUp, specs)
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		return c.cfg.ToolFallback, nil
	case err != nil:
		return "", fmt.Errorf("confirm tool %s: %w", call.Name, err)
	}
	if len(confirm.ToolCalls) > 0 {
		c.logger.Warn("ignoring tool calls in confirmation", "count", len(confirm.ToolCalls))
	}

	text := strings.TrimSpace(confirm.Text)
	if text == "" {
		text = c.cfg.ToolFallback
	}
	return text, nil
}

func (c *Controller) turnFailed(err error) (Turn, error) {
	c.logger.Warn("chat turn failed", "error", err)
	turn := c.appendTurn(RoleAgent, c.cfg.ConnectionLost)
	return turn, fmt.Errorf("%w: %v", ErrTransport, err)
}

// history is the request for the turn-based agent: the system instruction
// followed by the transcript. Agent turns before the first user turn are
// left out since providers expect the user to speak first.
func (c *Controller) history() []llm.Message {
	turns := c.transcript.Turns()
	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: chatInstruction(c.cfg.Language, c.deps.Catalog)})

	seenUser := false
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			seenUser = true
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: t.Text})
		case RoleAgent:
			if seenUser {
				msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: t.Text})
			}
		}
	}
	return msgs
}
