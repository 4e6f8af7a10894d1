package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/axon/internal/agent"
	"github.com/haasonsaas/axon/pkg/models"
)

func TestLocalAdapter_Chat(t *testing.T) {
	var got localChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(localChatResponse{
			Message:         &localChatMessage{Role: "assistant", Content: "hello from llama"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 12,
			EvalCount:       7,
		})
	}))
	defer srv.Close()

	a := NewLocalAdapter(LocalConfig{BaseURL: srv.URL, DefaultModel: "llama3.1"})
	resp, err := a.Chat(context.Background(), &agent.ChatRequest{
		System:    "be brief",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "hi"}},
		MaxTokens: 128,
	})
	if err != nil {
		t.Fatalf("Chat error = %v", err)
	}
	if resp.Text != "hello from llama" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.StopReason != agent.StopEndTurn {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if got.Model != "llama3.1" || got.Stream {
		t.Errorf("request model/stream = %q/%v", got.Model, got.Stream)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("request messages = %+v", got.Messages)
	}
	if got.Options["num_predict"] != float64(128) {
		t.Errorf("num_predict = %v", got.Options["num_predict"])
	}
}

func TestLocalAdapter_ChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(localChatResponse{
			Message: &localChatMessage{
				Role: "assistant",
				ToolCalls: []localToolCall{
					{Function: localToolFunction{Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}},
					{Function: localToolFunction{Name: "shell"}},
				},
			},
			Done: true,
		})
	}))
	defer srv.Close()

	a := NewLocalAdapter(LocalConfig{BaseURL: srv.URL, DefaultModel: "llama3.1"})
	resp, err := a.Chat(context.Background(), &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "go"}},
		Tools:    []agent.ToolSchema{{Name: "echo", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	if err != nil {
		t.Fatalf("Chat error = %v", err)
	}
	if resp.StopReason != agent.StopToolUse {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	// Missing call IDs are synthesized, missing arguments normalized.
	if resp.ToolCalls[0].ID == "" || resp.ToolCalls[1].ID == "" {
		t.Error("tool call without a synthesized ID")
	}
	if resp.ToolCalls[0].ID == resp.ToolCalls[1].ID {
		t.Error("synthesized IDs collide")
	}
	if string(resp.ToolCalls[1].Input) != "{}" {
		t.Errorf("empty arguments = %q, want {}", resp.ToolCalls[1].Input)
	}
}

func TestLocalAdapter_ChatToolHistory(t *testing.T) {
	var got localChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(localChatResponse{
			Message: &localChatMessage{Role: "assistant", Content: "done"},
			Done:    true, DoneReason: "stop",
		})
	}))
	defer srv.Close()

	a := NewLocalAdapter(LocalConfig{BaseURL: srv.URL, DefaultModel: "llama3.1"})
	_, err := a.Chat(context.Background(), &agent.ChatRequest{
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "run it"},
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "echo", Input: json.RawMessage(`{"text":"x"}`)}}},
			{Role: models.RoleTool, Content: "x", Name: "echo", ToolCallID: "c1"},
		},
	})
	if err != nil {
		t.Fatalf("Chat error = %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("request messages = %+v", got.Messages)
	}
	assistant := got.Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Function.Name != "echo" {
		t.Errorf("assistant message = %+v", assistant)
	}
	toolMsg := got.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolName != "echo" || toolMsg.Content != "x" {
		t.Errorf("tool message = %+v", toolMsg)
	}
}

func TestLocalAdapter_ChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewLocalAdapter(LocalConfig{BaseURL: srv.URL, DefaultModel: "missing"})
	_, err := a.Chat(context.Background(), &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	var me *agent.ModelError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want ModelError", err)
	}
	if me.Kind != agent.ErrKindUnavailable || me.Status != http.StatusNotFound {
		t.Errorf("ModelError = %+v", me)
	}
}

func TestLocalAdapter_ChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(localChatResponse{Error: "rate limit exceeded"})
	}))
	defer srv.Close()

	a := NewLocalAdapter(LocalConfig{BaseURL: srv.URL, DefaultModel: "llama3.1"})
	_, err := a.Chat(context.Background(), &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	var me *agent.ModelError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want ModelError", err)
	}
	if me.Kind != agent.ErrKindRateLimited {
		t.Errorf("Kind = %q, want rate_limited", me.Kind)
	}
}

func TestLocalAdapter_ChatNoModel(t *testing.T) {
	a := NewLocalAdapter(LocalConfig{})
	_, err := a.Chat(context.Background(), &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Chat without a model succeeded")
	}
}

func TestLocalAdapter_ChatMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	a := NewLocalAdapter(LocalConfig{BaseURL: srv.URL, DefaultModel: "llama3.1"})
	_, err := a.Chat(context.Background(), &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	var me *agent.ModelError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want ModelError", err)
	}
	if me.Kind != agent.ErrKindMalformed {
		t.Errorf("Kind = %q, want malformed", me.Kind)
	}
}
