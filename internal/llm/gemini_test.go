package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertGeminiMessages(t *testing.T) {
	systemInstruction, contents := convertGeminiMessages([]Message{
		{Role: RoleSystem, Content: "follow policy"},
		{Role: RoleUser, Content: "my back hurts"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "startExercise", Args: map[string]any{"exerciseId": "cat_cow"}}}},
		{Role: RoleTool, ToolResult: &ToolResult{CallID: "c1", Name: "startExercise", Content: "Success."}},
	})

	if systemInstruction == nil || systemInstruction.Parts[0].Text != "follow policy" {
		t.Fatalf("unexpected system instruction: %#v", systemInstruction)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 conversation messages, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "my back hurts" {
		t.Fatalf("unexpected first message: %#v", contents[0])
	}

	call := contents[1].Parts[0].FunctionCall
	if contents[1].Role != "model" || call == nil || call.Name != "startExercise" || call.Args["exerciseId"] != "cat_cow" {
		t.Fatalf("unexpected function call message: %#v", contents[1])
	}

	resp := contents[2].Parts[0].FunctionResponse
	if contents[2].Role != "user" || resp == nil || resp.Name != "startExercise" || resp.Response["result"] != "Success." {
		t.Fatalf("unexpected function response message: %#v", contents[2])
	}
}

func TestGeminiSchemaUppercasesTypes(t *testing.T) {
	schema := geminiSchema(startExerciseSpec().Parameters)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT, got %q", schema.Type)
	}
	prop := schema.Properties["exerciseId"]
	if prop == nil || prop.Type != "STRING" || len(prop.Enum) != 2 {
		t.Fatalf("unexpected property schema: %#v", prop)
	}
}

func TestGeminiGenerateReturnsFunctionCall(t *testing.T) {
	var sawTools bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tools []struct {
				FunctionDeclarations []struct {
					Name string `json:"name"`
				} `json:"functionDeclarations"`
			} `json:"tools"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		sawTools = len(req.Tools) == 1 && len(req.Tools[0].FunctionDeclarations) == 1 &&
			req.Tools[0].FunctionDeclarations[0].Name == "startExercise"

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role": "model",
					"parts": []map[string]any{{
						"functionCall": map[string]any{
							"name": "startExercise",
							"args": map[string]any{"exerciseId": "cat_cow"},
						},
					}},
				},
				"finishReason": "STOP",
			}},
		})
	}))
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	resp, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "my back hurts"}}, []ToolSpec{startExerciseSpec()})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !sawTools {
		t.Fatal("expected tool declaration in request")
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "startExercise" || resp.ToolCalls[0].Args["exerciseId"] != "cat_cow" {
		t.Fatalf("unexpected tool calls: %#v", resp.ToolCalls)
	}
}

func TestGeminiGenerateEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": ""}},
					"role":  "model",
				},
				"finishReason": "STOP",
			}},
		})
	}))
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	_, err = client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGeminiGenerateRequiresUserMessage(t *testing.T) {
	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: "http://127.0.0.1:0"})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}
	if _, err := client.Generate(context.Background(), []Message{{Role: RoleSystem, Content: "x"}}, nil); err == nil {
		t.Fatal("expected error without a user message")
	}
}
