package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging surface a session originates from.
type ChannelType string

const (
	ChannelCLI   ChannelType = "cli"
	ChannelAPI   ChannelType = "api"
	ChannelLocal ChannelType = "local"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// SessionType classifies a session for tool policy admission.
type SessionType string

const (
	SessionMain  SessionType = "MAIN"
	SessionDM    SessionType = "DM"
	SessionGroup SessionType = "GROUP"
	SessionTopic SessionType = "TOPIC"
)

// Message is the unified transcript record shared by the store, the
// session context, and the model adapters.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"arguments"`
}

// ToolResult represents the outcome of a single tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
}

// Text returns the content that should be surfaced back to the model:
// the output on success, the error message otherwise.
func (r *ToolResult) Text() string {
	if r.Success {
		return r.Output
	}
	return r.Error
}
