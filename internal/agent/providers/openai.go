package providers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/axon/internal/agent"
	"github.com/haasonsaas/axon/pkg/models"
)

// OpenAIConfig holds configuration for an OpenAIAdapter.
type OpenAIConfig struct {
	// APIKey is the OpenAI API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL, for proxies and
	// OpenAI-compatible services.
	BaseURL string

	// MaxRetries sets retry attempts for transient failures. Default: 3
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff. Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when a request does not specify one.
	DefaultModel string
}

// OpenAIAdapter implements agent.ModelAdapter against the OpenAI chat
// completions API. Safe for concurrent use.
type OpenAIAdapter struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewOpenAIAdapter creates an adapter, validating the configuration and
// applying defaults.
func NewOpenAIAdapter(config OpenAIConfig) (*OpenAIAdapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return &OpenAIAdapter{
		client:       openai.NewClientWithConfig(clientConfig),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (a *OpenAIAdapter) Name() string {
	return "openai"
}

func (a *OpenAIAdapter) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
	}
}

// Chat performs one chat completion call, retrying transient failures
// with exponential backoff.
func (a *OpenAIAdapter) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertOpenAIMessages(req.System, req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = toOpenAITools(req.Tools)
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = a.client.CreateChatCompletion(ctx, apiReq)
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

	if len(resp.Choices) == 0 {
		return nil, &agent.ModelError{
			Kind:     agent.ErrKindMalformed,
			Provider: a.Name(),
			Model:    model,
			Message:  "response contained no choices",
		}
	}

	choice := resp.Choices[0]
	out := &agent.ChatResponse{
		Text:       choice.Message.Content,
		StopReason: openaiStopReason(choice.FinishReason),
		Usage: agent.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}
	return out, nil
}

// convertOpenAIMessages translates the shared message shape into chat
// completion messages. The system prompt becomes the leading system
// message; tool results travel as individual role=tool messages keyed
// by tool_call_id.
func convertOpenAIMessages(system string, messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				Name:       msg.Name,
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				args := string(call.Input)
				if args == "" {
					args = "{}"
				}
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			out = append(out, m)

		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})

		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
				Name:    msg.Name,
			})
		}
	}
	return out
}

func openaiStopReason(reason openai.FinishReason) agent.StopReason {
	switch reason {
	case openai.FinishReasonStop:
		return agent.StopSequence
	case openai.FinishReasonLength:
		return agent.StopMaxTokens
	case openai.FinishReasonToolCalls:
		return agent.StopToolUse
	default:
		return agent.StopOther
	}
}

func (a *OpenAIAdapter) wrapError(err error, model string) *agent.ModelError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewModelError(a.Name(), model, apiErr.HTTPStatusCode, err)
	}
	return NewModelError(a.Name(), model, 0, err)
}
