package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openaiClient struct {
	client *openai.Client
	model  string
}

func newOpenAIClient(apiKey, model string, opts *clientOptions) (*openaiClient, error) {
	config := openai.DefaultConfig(apiKey)
	if opts.baseURL != "" {
		config.BaseURL = opts.baseURL
	}
	return &openaiClient{client: openai.NewClientWithConfig(config), model: model}, nil
}

func convertOpenAIMessages(messages []Message) ([]openai.ChatCompletionMessage, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		for _, call := range m.ToolCalls {
			args, err := json.Marshal(call.Args)
			if err != nil {
				return nil, fmt.Errorf("encode tool arguments for %s: %w", call.Name, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:       call.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: call.Name, Arguments: string(args)},
			})
		}
		if m.Role == RoleTool {
			if m.ToolResult == nil {
				continue
			}
			msg.Content = m.ToolResult.Content
			msg.ToolCallID = m.ToolResult.CallID
			msg.Name = m.ToolResult.Name
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func openAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters.JSONSchema(),
			},
		})
	}
	return out
}

func (c *openaiClient) Generate(ctx context.Context, messages []Message, tools []ToolSpec) (Response, error) {
	msgs, err := convertOpenAIMessages(messages)
	if err != nil {
		return Response{}, err
	}

	req := openai.ChatCompletionRequest{Model: c.model, Messages: msgs}
	if len(tools) > 0 {
		req.Tools = openAITools(tools)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: no choices in response")
	}

	choice := resp.Choices[0].Message
	out := Response{Text: strings.TrimSpace(choice.Content)}
	for _, call := range choice.ToolCalls {
		// Undecodable arguments are passed on as nil so the tool router can
		// report them back to the agent.
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = nil
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Args: args})
	}

	if out.Text == "" && len(out.ToolCalls) == 0 {
		return Response{}, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return out, nil
}
