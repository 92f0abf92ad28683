// Package llm adapts the remote agent providers to one turn-based tool-calling
// interface and one streaming voice interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrEmptyResponse means the provider answered with neither text nor a tool
// call.
var ErrEmptyResponse = errors.New("empty response")

// Message is one entry of the history sent to a provider. Assistant messages
// may carry the tool calls they made; tool messages carry one result.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

// ToolSpec declares a function the agent may call. Parameters is an object
// schema.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  Schema
}

type Schema struct {
	Properties map[string]Property
	Required   []string
}

type Property struct {
	Type        string
	Description string
	Enum        []string
}

// JSONSchema renders the schema in the JSON Schema dialect shared by the
// OpenAI and Anthropic APIs.
func (s Schema) JSONSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": s.properties(),
		"required":   s.required(),
	}
}

func (s Schema) properties() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	return props
}

func (s Schema) required() []string {
	if s.Required == nil {
		return []string{}
	}
	return s.Required
}

type Response struct {
	Text      string
	ToolCalls []ToolCall
}

type Client interface {
	Generate(ctx context.Context, messages []Message, tools []ToolSpec) (Response, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int64
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens caps the response length for providers that require a cap.
func WithMaxTokens(n int64) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: 1024}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

func hasUserMessage(messages []Message) bool {
	for _, m := range messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}
