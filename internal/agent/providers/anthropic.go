// Package providers implements the model adapter backends: Anthropic's
// Messages API, OpenAI-compatible chat completions, and local
// OpenAI-style endpoints. Each adapter converts the shared message
// shape to its wire format, classifies failures into the common error
// taxonomy, and retries transient failures with exponential backoff.
package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/axon/internal/agent"
	"github.com/haasonsaas/axon/pkg/models"
)

// AnthropicConfig holds configuration for an AnthropicAdapter.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// MaxRetries sets retry attempts for transient failures. Default: 3
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff. Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when a request does not specify one.
	DefaultModel string
}

// AnthropicAdapter implements agent.ModelAdapter against Anthropic's
// Messages API. Safe for concurrent use.
type AnthropicAdapter struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewAnthropicAdapter creates an adapter, validating the configuration
// and applying defaults.
func NewAnthropicAdapter(config AnthropicConfig) (*AnthropicAdapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-5"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicAdapter{
		client:       anthropic.NewClient(options...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

func (a *AnthropicAdapter) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", ContextSize: 200000},
		{ID: "claude-opus-4-1", Name: "Claude Opus 4.1", ContextSize: 200000},
		{ID: "claude-3-5-haiku-latest", Name: "Claude 3.5 Haiku", ContextSize: 200000},
	}
}

// Chat performs one non-streaming Messages call, retrying transient
// failures with exponential backoff.
func (a *AnthropicAdapter) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	params, err := a.buildParams(req, model)
	if err != nil {
		return nil, &agent.ModelError{
			Kind:     agent.ErrKindMalformed,
			Provider: a.Name(),
			Model:    model,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	var msg *anthropic.Message
	for attempt := 0; ; attempt++ {
		msg, err = a.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		modelErr := a.wrapError(err, model)
		if !modelErr.IsRetryable() || attempt >= a.maxRetries {
			return nil, modelErr
		}
		backoff := a.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return a.convertResponse(msg, model)
}

func (a *AnthropicAdapter) buildParams(req *agent.ChatRequest, model string) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

// convertAnthropicMessages translates the shared message shape into
// Anthropic content blocks. System messages are skipped (they travel in
// params.System); runs of consecutive tool messages are merged into a
// single user message of tool_result blocks, preserving order.
func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(
				msg.ToolCallID,
				msg.Content,
				msg.IsError,
			))
			continue
		}

		flushResults()

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := jsonUnmarshalLenient(call.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	flushResults()

	return result, nil
}

func convertAnthropicTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := jsonUnmarshalLenient(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

func (a *AnthropicAdapter) convertResponse(msg *anthropic.Message, model string) (*agent.ChatResponse, error) {
	if msg == nil {
		return nil, &agent.ModelError{
			Kind:     agent.ErrKindMalformed,
			Provider: a.Name(),
			Model:    model,
			Message:  "empty response",
		}
	}

	var text strings.Builder
	var calls []models.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, models.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}

	return &agent.ChatResponse{
		Text:       text.String(),
		ToolCalls:  calls,
		StopReason: anthropicStopReason(string(msg.StopReason)),
		Usage: agent.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func anthropicStopReason(reason string) agent.StopReason {
	switch reason {
	case "end_turn":
		return agent.StopEndTurn
	case "max_tokens":
		return agent.StopMaxTokens
	case "tool_use":
		return agent.StopToolUse
	case "stop_sequence":
		return agent.StopSequence
	default:
		return agent.StopOther
	}
}

func (a *AnthropicAdapter) wrapError(err error, model string) *agent.ModelError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewModelError(a.Name(), model, apiErr.StatusCode, err)
	}
	return NewModelError(a.Name(), model, 0, err)
}
