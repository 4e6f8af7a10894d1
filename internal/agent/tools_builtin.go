package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/axon/pkg/models"
)

// EchoTool returns its input text. Useful for wiring checks and as the
// smallest possible tool example.
type EchoTool struct{}

func (t *EchoTool) Name() string        { return "echo" }
func (t *EchoTool) Description() string { return "Echo the provided text back verbatim." }

func (t *EchoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "Text to echo back"}
		},
		"required": ["text"]
	}`)
}

func (t *EchoTool) Policy() *ToolPolicy {
	return &ToolPolicy{
		AllowedSessionTypes: []models.SessionType{
			models.SessionMain, models.SessionDM, models.SessionGroup, models.SessionTopic,
		},
		MaxExecutionTime: 5 * time.Second,
	}
}

func (t *EchoTool) Execute(ctx context.Context, params json.RawMessage, env ToolEnv) (*models.ToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return &models.ToolResult{Success: true, Output: args.Text}, nil
}

// ShellTool runs a command on the host. It is restricted to MAIN
// sessions and every execution is gated on approval.
type ShellTool struct{}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace and return its combined output."
}

func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Command to run with sh -c"}
		},
		"required": ["command"]
	}`)
}

func (t *ShellTool) Policy() *ToolPolicy {
	return &ToolPolicy{
		AllowedSessionTypes: []models.SessionType{models.SessionMain},
		RequiresApproval:    true,
		MaxExecutionTime:    60 * time.Second,
	}
}

func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage, env ToolEnv) (*models.ToolResult, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if strings.TrimSpace(args.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", args.Command)
	if env.Workspace != "" {
		cmd.Dir = env.Workspace
	}
	out, err := cmd.CombinedOutput()
	result := &models.ToolResult{Output: string(out)}
	if err != nil {
		result.Error = err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			result.Error = strings.TrimSpace(string(out))
			if result.Error == "" {
				result.Error = err.Error()
			}
		}
		return result, nil
	}
	result.Success = true
	return result, nil
}

// PolicyOverride adjusts a registered tool's policy from configuration.
// Nil pointer fields keep the tool's own value.
type PolicyOverride struct {
	AllowedSessionTypes []models.SessionType
	RequiresApproval    *bool
	SandboxRequired     *bool
	MaxExecutionTime    time.Duration
}

// WithPolicyOverride wraps a tool so its policy reflects the override.
func WithPolicyOverride(tool Tool, o PolicyOverride) Tool {
	base := *PolicyFor(tool)
	if len(o.AllowedSessionTypes) > 0 {
		base.AllowedSessionTypes = o.AllowedSessionTypes
	}
	if o.RequiresApproval != nil {
		base.RequiresApproval = *o.RequiresApproval
	}
	if o.SandboxRequired != nil {
		base.SandboxRequired = *o.SandboxRequired
	}
	if o.MaxExecutionTime > 0 {
		base.MaxExecutionTime = o.MaxExecutionTime
	}
	return &overriddenTool{Tool: tool, policy: &base}
}

type overriddenTool struct {
	Tool
	policy *ToolPolicy
}

func (t *overriddenTool) Policy() *ToolPolicy {
	return t.policy
}
