package agent

import (
	"errors"
	"fmt"
)

// ModelErrorKind classifies a model adapter failure.
type ModelErrorKind string

const (
	ErrKindAuth            ModelErrorKind = "auth"
	ErrKindRateLimited     ModelErrorKind = "rate_limited"
	ErrKindTimeout         ModelErrorKind = "timeout"
	ErrKindContextOverflow ModelErrorKind = "context_overflow"
	ErrKindUnavailable     ModelErrorKind = "unavailable"
	ErrKindMalformed       ModelErrorKind = "malformed"
)

// ModelError is the structured error every model adapter returns. The
// loop inspects Kind; callers unwrap Cause for the provider error.
type ModelError struct {
	Kind     ModelErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ModelError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s error", e.Provider, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure is transient. Adapters retry
// these internally with backoff; the loop itself never retries.
func (e *ModelError) IsRetryable() bool {
	switch e.Kind {
	case ErrKindRateLimited, ErrKindTimeout, ErrKindUnavailable:
		return true
	}
	return false
}

// AsModelError extracts a ModelError from an error chain.
func AsModelError(err error) (*ModelError, bool) {
	var me *ModelError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// Sentinel errors surfaced by the runtime and loop.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownModel    = errors.New("unknown model")
	ErrNoUserText      = errors.New("empty user text")
)

// ToolError wraps a failure inside a tool execution, keeping the tool
// name and call ID for logs and audit records.
type ToolError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s (%s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
