package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/axon/internal/agent"
	"github.com/haasonsaas/axon/pkg/models"
)

// LocalConfig configures the local adapter.
type LocalConfig struct {
	// BaseURL is the endpoint root. Default: http://localhost:11434
	BaseURL string

	// DefaultModel is used when a request does not specify one.
	DefaultModel string

	// Timeout bounds one HTTP round trip. Default: 2 minutes.
	Timeout time.Duration
}

// LocalAdapter implements agent.ModelAdapter against an Ollama-style
// local inference server using non-streaming /api/chat requests. Tool
// definitions reuse the OpenAI function format, which Ollama accepts.
type LocalAdapter struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

// NewLocalAdapter creates a local adapter.
func NewLocalAdapter(cfg LocalConfig) *LocalAdapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &LocalAdapter{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

func (a *LocalAdapter) Name() string {
	return "local"
}

func (a *LocalAdapter) Models() []agent.Model {
	if a.defaultModel == "" {
		return nil
	}
	return []agent.Model{{ID: a.defaultModel, Name: a.defaultModel}}
}

type localChatRequest struct {
	Model    string             `json:"model"`
	Messages []localChatMessage `json:"messages"`
	Tools    []openai.Tool      `json:"tools,omitempty"`
	Stream   bool               `json:"stream"`
	Options  map[string]any     `json:"options,omitempty"`
}

type localChatMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []localToolCall `json:"tool_calls,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
}

type localChatResponse struct {
	Message         *localChatMessage `json:"message"`
	Done            bool              `json:"done"`
	DoneReason      string            `json:"done_reason"`
	Error           string            `json:"error"`
	EvalCount       int               `json:"eval_count"`
	PromptEvalCount int               `json:"prompt_eval_count"`
}

type localToolCall struct {
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function localToolFunction `json:"function"`
}

type localToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Chat performs one non-streaming chat call against the local server.
func (a *LocalAdapter) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = a.defaultModel
	}
	if model == "" {
		return nil, NewModelError(a.Name(), "", 0, errors.New("model is required"))
	}

	payload := localChatRequest{
		Model:    model,
		Stream:   false,
		Messages: buildLocalMessages(req),
	}
	if len(req.Tools) > 0 {
		payload.Tools = toOpenAITools(req.Tools)
	}
	if req.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewModelError(a.Name(), model, 0, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, NewModelError(a.Name(), model, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, NewModelError(a.Name(), model, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		cause := fmt.Errorf("local status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		return nil, NewModelError(a.Name(), model, resp.StatusCode, cause)
	}

	var chatResp localChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &agent.ModelError{
			Kind:     agent.ErrKindMalformed,
			Provider: a.Name(),
			Model:    model,
			Message:  fmt.Sprintf("decode response: %v", err),
			Cause:    err,
		}
	}
	if chatResp.Error != "" {
		return nil, NewModelError(a.Name(), model, 0, errors.New(chatResp.Error))
	}
	if chatResp.Message == nil {
		return nil, &agent.ModelError{
			Kind:     agent.ErrKindMalformed,
			Provider: a.Name(),
			Model:    model,
			Message:  "response contained no message",
		}
	}

	out := &agent.ChatResponse{
		Text:       chatResp.Message.Content,
		StopReason: localStopReason(chatResp.DoneReason, len(chatResp.Message.ToolCalls) > 0),
		Usage: agent.Usage{
			InputTokens:  chatResp.PromptEvalCount,
			OutputTokens: chatResp.EvalCount,
		},
	}
	for _, tc := range chatResp.Message.ToolCalls {
		callID := strings.TrimSpace(tc.ID)
		if callID == "" {
			callID = uuid.NewString()
		}
		input := tc.Function.Arguments
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:    callID,
			Name:  strings.TrimSpace(tc.Function.Name),
			Input: input,
		})
	}
	return out, nil
}

func buildLocalMessages(req *agent.ChatRequest) []localChatMessage {
	messages := make([]localChatMessage, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, localChatMessage{Role: "system", Content: system})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleAssistant:
			m := localChatMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args := tc.Input
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				m.ToolCalls = append(m.ToolCalls, localToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: localToolFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			messages = append(messages, m)

		case models.RoleTool:
			messages = append(messages, localChatMessage{
				Role:     "tool",
				Content:  msg.Content,
				ToolName: msg.Name,
			})

		default:
			role := string(msg.Role)
			if role == "" {
				role = "user"
			}
			messages = append(messages, localChatMessage{Role: role, Content: msg.Content})
		}
	}
	return messages
}

func localStopReason(doneReason string, hasToolCalls bool) agent.StopReason {
	if hasToolCalls {
		return agent.StopToolUse
	}
	switch doneReason {
	case "stop":
		return agent.StopEndTurn
	case "length":
		return agent.StopMaxTokens
	default:
		return agent.StopOther
	}
}
