package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func newAnthropicClient(apiKey, model string, opts *clientOptions) (*anthropicClient, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.baseURL))
	}

	maxTokens := opts.maxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &anthropicClient{client: anthropic.NewClient(clientOpts...), model: model, maxTokens: maxTokens}, nil
}

func convertAnthropicMessages(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var systemBlocks []anthropic.TextBlockParam
	var chatMessages []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: m.Content})
		case RoleUser:
			chatMessages = append(chatMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Args, call.Name))
			}
			if len(blocks) > 0 {
				chatMessages = append(chatMessages, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			if m.ToolResult == nil {
				continue
			}
			chatMessages = append(chatMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolResult.CallID, m.ToolResult.Content, false),
			))
		}
	}

	return systemBlocks, chatMessages
}

func anthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters.properties(),
				Required:   t.Parameters.required(),
			},
		}})
	}
	return out
}

func (c *anthropicClient) Generate(ctx context.Context, messages []Message, tools []ToolSpec) (Response, error) {
	systemBlocks, chatMessages := convertAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    systemBlocks,
		Messages:  chatMessages,
	}
	if len(tools) > 0 {
		params.Tools = anthropicTools(tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic completion: %w", err)
	}

	var out Response
	var b strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			b.WriteString(block.Text)
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil {
				args = nil
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}

	out.Text = strings.TrimSpace(b.String())
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return Response{}, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return out, nil
}
