package providers

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/axon/internal/agent"
	"github.com/haasonsaas/axon/pkg/models"
)

func TestNewAnthropicAdapter_RequiresKey(t *testing.T) {
	if _, err := NewAnthropicAdapter(AnthropicConfig{}); err == nil {
		t.Fatal("adapter created without API key")
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "ignored here"},
		{Role: models.RoleUser, Content: "please check"},
		{Role: models.RoleAssistant, Content: "on it", ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "shell", Input: json.RawMessage(`{"command":"ls"}`)},
			{ID: "c2", Name: "echo"},
		}},
		{Role: models.RoleTool, Content: "file.txt", ToolCallID: "c1"},
		{Role: models.RoleTool, Content: "oops", ToolCallID: "c2", IsError: true},
		{Role: models.RoleAssistant, Content: "done"},
	}

	out, err := convertAnthropicMessages(msgs)
	if err != nil {
		t.Fatalf("convert error = %v", err)
	}
	// System skipped; the two tool results merge into one user message.
	if len(out) != 4 {
		t.Fatalf("converted %d messages, want 4", len(out))
	}
	if out[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("message 0 role = %q", out[0].Role)
	}
	if out[1].Role != anthropic.MessageParamRoleAssistant || len(out[1].Content) != 3 {
		t.Errorf("assistant message = role %q with %d blocks", out[1].Role, len(out[1].Content))
	}
	if out[2].Role != anthropic.MessageParamRoleUser || len(out[2].Content) != 2 {
		t.Errorf("tool result message = role %q with %d blocks", out[2].Role, len(out[2].Content))
	}
	if out[3].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("message 3 role = %q", out[3].Role)
	}
}

func TestConvertAnthropicMessages_TrailingToolResults(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "echo", Input: json.RawMessage(`{}`)}}},
		{Role: models.RoleTool, Content: "hi", ToolCallID: "c1"},
	}
	out, err := convertAnthropicMessages(msgs)
	if err != nil {
		t.Fatalf("convert error = %v", err)
	}
	if len(out) != 2 || out[1].Role != anthropic.MessageParamRoleUser {
		t.Fatalf("trailing tool result not flushed: %d messages", len(out))
	}
}

func TestConvertAnthropicMessages_BadToolInput(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "echo", Input: json.RawMessage(`{broken`)}}},
	}
	if _, err := convertAnthropicMessages(msgs); err == nil {
		t.Fatal("malformed tool input accepted")
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	tools, err := convertAnthropicTools([]agent.ToolSchema{{
		Name:        "echo",
		Description: "echoes text",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}})
	if err != nil {
		t.Fatalf("convert error = %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].OfTool.Name != "echo" {
		t.Errorf("tool name = %q", tools[0].OfTool.Name)
	}
	if got := tools[0].OfTool.Description.Value; got != "echoes text" {
		t.Errorf("description = %q", got)
	}
}

func TestAnthropicStopReason(t *testing.T) {
	tests := []struct {
		in   string
		want agent.StopReason
	}{
		{"end_turn", agent.StopEndTurn},
		{"max_tokens", agent.StopMaxTokens},
		{"tool_use", agent.StopToolUse},
		{"stop_sequence", agent.StopSequence},
		{"refusal", agent.StopOther},
	}
	for _, tt := range tests {
		if got := anthropicStopReason(tt.in); got != tt.want {
			t.Errorf("anthropicStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
