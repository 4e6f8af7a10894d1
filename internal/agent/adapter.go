package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/axon/pkg/models"
)

// ModelAdapter is the uniform request/response contract every model
// backend implements. Adapters translate the shared message shape to
// their provider wire format, classify provider failures into
// ModelError kinds, and retry transient failures internally.
type ModelAdapter interface {
	// Chat performs one completion call. It returns a *ModelError on
	// failure.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name identifies the backing provider ("anthropic", "openai", "local").
	Name() string

	// Models lists the models this adapter serves.
	Models() []Model
}

// ChatRequest is one completion request.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []models.Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float32
	Stop        []string
}

// ChatResponse is the normalized completion result.
type ChatResponse struct {
	Text       string
	ToolCalls  []models.ToolCall
	StopReason StopReason
	Usage      Usage
}

// StopReason is why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopToolUse   StopReason = "tool_use"
	StopSequence  StopReason = "stop"
	StopOther     StopReason = "other"
)

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ToolSchema is the provider-agnostic tool definition handed to a model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Model describes one servable model.
type Model struct {
	ID          string
	Name        string
	ContextSize int
}
