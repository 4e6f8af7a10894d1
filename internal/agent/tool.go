package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/axon/pkg/models"
)

// Tool is the contract every executable tool implements.
type Tool interface {
	// Name is the unique registry key, also the name the model calls.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema is the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Policy returns the tool's execution policy. A nil policy means
	// the conservative default applies.
	Policy() *ToolPolicy

	// Execute runs the tool. A non-nil error is materialized as an
	// error ToolResult; it never aborts the turn.
	Execute(ctx context.Context, params json.RawMessage, env ToolEnv) (*models.ToolResult, error)
}

// ToolEnv carries per-session execution context into a tool.
type ToolEnv struct {
	Workspace   string
	SessionID   string
	SessionType models.SessionType
}

// ToolPolicy controls where and how a tool may run.
type ToolPolicy struct {
	// AllowedSessionTypes lists the session types the tool may run in.
	AllowedSessionTypes []models.SessionType

	// RequiresApproval gates each execution on a human decision.
	RequiresApproval bool

	// SandboxRequired marks tools that must not run on the host.
	SandboxRequired bool

	// MaxExecutionTime bounds one execution. Zero means the default.
	MaxExecutionTime time.Duration
}

// DefaultExecutionTimeout bounds tool executions with no explicit limit.
const DefaultExecutionTimeout = 30 * time.Second

// DefaultToolPolicy is the conservative policy applied to tools that do
// not declare one: MAIN sessions only, no approval gate, 30s limit.
func DefaultToolPolicy() *ToolPolicy {
	return &ToolPolicy{
		AllowedSessionTypes: []models.SessionType{models.SessionMain},
		RequiresApproval:    false,
		SandboxRequired:     false,
		MaxExecutionTime:    DefaultExecutionTimeout,
	}
}

// Allows reports whether the policy admits the given session type.
func (p *ToolPolicy) Allows(st models.SessionType) bool {
	for _, allowed := range p.AllowedSessionTypes {
		if allowed == st {
			return true
		}
	}
	return false
}

// ExecutionTimeout returns the effective per-execution time limit.
func (p *ToolPolicy) ExecutionTimeout() time.Duration {
	if p.MaxExecutionTime > 0 {
		return p.MaxExecutionTime
	}
	return DefaultExecutionTimeout
}
