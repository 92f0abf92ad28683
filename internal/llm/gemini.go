package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	client, err := newGenAI(apiKey, opts.baseURL)
	if err != nil {
		return nil, err
	}
	return &geminiClient{client: client, model: model}, nil
}

func newGenAI(apiKey, baseURL string) (*genai.Client, error) {
	config := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		config.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func convertGeminiMessages(messages []Message) (*genai.Content, []*genai.Content) {
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args}})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			if m.ToolResult == nil {
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{
				FunctionResponse: geminiFunctionResponse(*m.ToolResult),
			}}})
		}
	}

	return systemInstruction, contents
}

func geminiFunctionResponse(r ToolResult) *genai.FunctionResponse {
	return &genai.FunctionResponse{
		ID:       r.CallID,
		Name:     r.Name,
		Response: map[string]any{"result": r.Content},
	}
}

func geminiTools(tools []ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiSchema(s Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = &genai.Schema{
			Type:        genai.Type(strings.ToUpper(p.Type)),
			Description: p.Description,
			Enum:        p.Enum,
		}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: s.Required}
}

func (c *geminiClient) Generate(ctx context.Context, messages []Message, tools []ToolSpec) (Response, error) {
	if !hasUserMessage(messages) {
		return Response{}, fmt.Errorf("gemini: no user message provided")
	}
	systemInstruction, contents := convertGeminiMessages(messages)

	config := &genai.GenerateContentConfig{SystemInstruction: systemInstruction, Tools: geminiTools(tools)}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini completion: %w", err)
	}

	var resp Response
	var text strings.Builder
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			switch {
			case part.FunctionCall != nil:
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			case part.Text != "" && !part.Thought:
				text.WriteString(part.Text)
			}
		}
	}
	resp.Text = strings.TrimSpace(text.String())

	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return Response{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return resp, nil
}
