package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/axon/internal/approvals"
	"github.com/haasonsaas/axon/internal/observability"
	"github.com/haasonsaas/axon/internal/sessions"
	"github.com/haasonsaas/axon/pkg/models"
)

// DefaultMaxIterations bounds the model/tool cycle within one turn.
const DefaultMaxIterations = 10

// maxIterationsMessage is returned to the caller when a turn exhausts
// its iteration budget without the model producing a final answer.
const maxIterationsMessage = "Error: Maximum tool execution iterations reached"

// TranscriptAppender persists one message. Appends are best effort from
// the loop's perspective: a store failure is logged, never fatal to the
// turn.
type TranscriptAppender interface {
	Append(sessionID string, msg *models.Message) error
}

// ToolEventStore records tool calls and their results for audit.
type ToolEventStore interface {
	AddToolCall(ctx context.Context, sessionID string, call models.ToolCall) error
	AddToolResult(ctx context.Context, sessionID string, call models.ToolCall, result *models.ToolResult) error
}

// LoopConfig carries the loop's collaborators and limits. Zero values
// fall back to defaults; optional collaborators may be nil.
type LoopConfig struct {
	MaxIterations   int
	MaxTokens       int
	SystemPrompt    string
	ApprovalTimeout time.Duration

	Notifier   Notifier
	Transcript TranscriptAppender
	ToolEvents ToolEventStore
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

func sanitizeLoopConfig(cfg *LoopConfig) LoopConfig {
	out := LoopConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.MaxIterations <= 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	if out.ApprovalTimeout <= 0 {
		out.ApprovalTimeout = approvals.DefaultTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Loop drives one conversation turn: it alternates model calls and
// sequential tool executions until the model stops requesting tools or
// the iteration budget runs out.
type Loop struct {
	registry  *ToolRegistry
	approvals *approvals.Manager
	cfg       LoopConfig
}

// NewLoop creates a reasoning loop.
func NewLoop(registry *ToolRegistry, approvalMgr *approvals.Manager, cfg *LoopConfig) *Loop {
	return &Loop{
		registry:  registry,
		approvals: approvalMgr,
		cfg:       sanitizeLoopConfig(cfg),
	}
}

// Chat runs one turn for the given session. The user text is appended
// to the session history, the model is consulted with the tools the
// session type admits, and tool calls are executed one at a time in the
// order the model emitted them. Every message the turn produces is
// appended to the session context and persisted before the next model
// call, so a crash mid-turn loses at most the unacknowledged write.
func (l *Loop) Chat(ctx context.Context, adapter ModelAdapter, model string, sc *sessions.Context, userText string) (string, error) {
	if userText == "" {
		return "", ErrNoUserText
	}

	l.record(sc, models.Message{
		Role:      models.RoleUser,
		Content:   userText,
		Name:      sc.SenderName,
		Timestamp: time.Now().UTC(),
	})

	schemas := l.registry.SchemasFor(sc.Type)

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := l.callModel(ctx, adapter, model, sc, schemas)
		if err != nil {
			return "", err
		}

		if dup := duplicateCallID(resp.ToolCalls); dup != "" {
			return "", &ModelError{
				Kind:     ErrKindMalformed,
				Provider: adapter.Name(),
				Message:  fmt.Sprintf("duplicate tool call id %q in response", dup),
			}
		}

		if len(resp.ToolCalls) == 0 {
			l.record(sc, models.Message{
				Role:      models.RoleAssistant,
				Content:   resp.Text,
				Timestamp: time.Now().UTC(),
			})
			return resp.Text, nil
		}

		// Any text accompanying the tool calls stays on the record but
		// is not surfaced until the model produces its final answer.
		l.record(sc, models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
			Timestamp: time.Now().UTC(),
		})

		for _, call := range resp.ToolCalls {
			l.auditCall(ctx, sc.ID, call)
			result, err := l.runToolCall(ctx, sc, call)
			if err != nil {
				return "", err
			}
			l.auditResult(ctx, sc.ID, call, result)
			l.record(sc, models.Message{
				Role:       models.RoleTool,
				Content:    result.Text(),
				Name:       call.Name,
				ToolCallID: call.ID,
				IsError:    !result.Success,
				Timestamp:  time.Now().UTC(),
			})
		}
	}

	l.cfg.Logger.Warn("iteration budget exhausted",
		"session_id", sc.ID, "max_iterations", l.cfg.MaxIterations)
	l.record(sc, models.Message{
		Role:      models.RoleAssistant,
		Content:   maxIterationsMessage,
		Timestamp: time.Now().UTC(),
	})
	return maxIterationsMessage, nil
}

// callModel performs one adapter call with metrics.
func (l *Loop) callModel(ctx context.Context, adapter ModelAdapter, model string, sc *sessions.Context, schemas []ToolSchema) (*ChatResponse, error) {
	req := &ChatRequest{
		Model:     model,
		System:    l.cfg.SystemPrompt,
		Messages:  sc.Messages(),
		Tools:     schemas,
		MaxTokens: l.cfg.MaxTokens,
	}

	start := time.Now()
	resp, err := adapter.Chat(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		l.cfg.Metrics.ObserveModelRequest(adapter.Name(), req.Model, "error", elapsed)
		return nil, err
	}
	l.cfg.Metrics.ObserveModelRequest(adapter.Name(), req.Model, "success", elapsed)
	l.cfg.Metrics.ObserveTokens(adapter.Name(), req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

// runToolCall resolves one tool call to a ToolResult. Failures inside
// the tool become error results; only context cancellation aborts the
// turn with a non-nil error.
func (l *Loop) runToolCall(ctx context.Context, sc *sessions.Context, call models.ToolCall) (*models.ToolResult, error) {
	tool, ok := l.registry.Get(call.Name)
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name)), nil
	}

	policy := PolicyFor(tool)
	if !policy.Allows(sc.Type) {
		return errorResult(call.ID, fmt.Sprintf("tool %q is not permitted in this session", call.Name)), nil
	}

	if err := l.registry.ValidateInput(call.Name, call.Input); err != nil {
		return errorResult(call.ID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	if policy.RequiresApproval {
		result, aborted, err := l.awaitApproval(ctx, sc, call)
		if err != nil {
			return nil, err
		}
		if aborted {
			return result, nil
		}
	}

	return l.executeTool(ctx, tool, policy, sc, call), nil
}

// awaitApproval blocks the turn until the gated call is approved,
// denied, or times out. A denied or timed-out call yields an error
// result (aborted=true); context cancellation propagates as an error.
func (l *Loop) awaitApproval(ctx context.Context, sc *sessions.Context, call models.ToolCall) (*models.ToolResult, bool, error) {
	if l.cfg.Notifier == nil {
		return errorResult(call.ID, "approval required but no channel is available"), true, nil
	}

	rec := l.approvals.Create(approvals.Request{
		ToolName:   call.Name,
		Args:       call.Input,
		SessionKey: sc.ID,
	}, l.cfg.ApprovalTimeout)

	prompt := fmt.Sprintf("Approval required for tool %q (id %s). Arguments: %s",
		call.Name, rec.ID, string(call.Input))
	if err := l.cfg.Notifier.Send(ctx, sc.SenderID, prompt); err != nil {
		l.cfg.Logger.Warn("approval notification failed, waiting for timeout",
			"approval_id", rec.ID, "error", err)
	}

	decision, err := l.approvals.Wait(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	l.cfg.Metrics.ObserveApproval(call.Name, string(decision))

	switch decision {
	case approvals.DecisionApprove:
		return nil, false, nil
	case approvals.DecisionDeny:
		return errorResult(call.ID, fmt.Sprintf("tool execution denied by %s", rec.ResolvedBy())), true, nil
	default:
		return errorResult(call.ID, "approval timed out"), true, nil
	}
}

// executeTool runs the tool under its policy timeout with panic
// containment. A panic or error inside the tool never escapes the turn.
func (l *Loop) executeTool(ctx context.Context, tool Tool, policy *ToolPolicy, sc *sessions.Context, call models.ToolCall) (result *models.ToolResult) {
	execCtx, cancel := context.WithTimeout(ctx, policy.ExecutionTimeout())
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.cfg.Logger.Error("tool panicked",
				"tool", call.Name, "tool_call_id", call.ID, "panic", r)
			result = errorResult(call.ID, fmt.Sprintf("tool panicked: %v", r))
		}
		status := "success"
		if result == nil || !result.Success {
			status = "error"
		}
		l.cfg.Metrics.ObserveToolExecution(call.Name, status, time.Since(start))
	}()

	env := ToolEnv{
		Workspace:   sc.Workspace,
		SessionID:   sc.ID,
		SessionType: sc.Type,
	}
	res, err := tool.Execute(execCtx, call.Input, env)
	if err != nil {
		l.cfg.Logger.Warn("tool execution failed",
			"tool", call.Name, "tool_call_id", call.ID, "error", err)
		return errorResult(call.ID, err.Error())
	}
	if res == nil {
		return errorResult(call.ID, "tool returned no result")
	}
	res.ToolCallID = call.ID
	return res
}

// record appends a message to the session context and persists it.
func (l *Loop) record(sc *sessions.Context, msg models.Message) {
	sc.Append(msg)
	if l.cfg.Transcript == nil {
		return
	}
	if err := l.cfg.Transcript.Append(sc.ID, &msg); err != nil {
		l.cfg.Logger.Error("transcript append failed",
			"session_id", sc.ID, "role", msg.Role, "error", err)
	}
}

func (l *Loop) auditCall(ctx context.Context, sessionID string, call models.ToolCall) {
	if l.cfg.ToolEvents == nil {
		return
	}
	if err := l.cfg.ToolEvents.AddToolCall(ctx, sessionID, call); err != nil {
		l.cfg.Logger.Warn("audit tool call failed", "tool_call_id", call.ID, "error", err)
	}
}

func (l *Loop) auditResult(ctx context.Context, sessionID string, call models.ToolCall, result *models.ToolResult) {
	if l.cfg.ToolEvents == nil {
		return
	}
	if err := l.cfg.ToolEvents.AddToolResult(ctx, sessionID, call, result); err != nil {
		l.cfg.Logger.Warn("audit tool result failed", "tool_call_id", call.ID, "error", err)
	}
}

func errorResult(callID, msg string) *models.ToolResult {
	return &models.ToolResult{
		ToolCallID: callID,
		Success:    false,
		Error:      msg,
	}
}

func duplicateCallID(calls []models.ToolCall) string {
	seen := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		if _, ok := seen[c.ID]; ok {
			return c.ID
		}
		seen[c.ID] = struct{}{}
	}
	return ""
}
