package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/haasonsaas/axon/internal/agent"
)

// Classify inspects an error and returns the matching ModelErrorKind.
// HTTP status codes, where known, take precedence over string patterns.
func Classify(err error) agent.ModelErrorKind {
	if err == nil {
		return agent.ErrKindUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.ErrKindTimeout
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline") {
		return agent.ErrKindTimeout
	}

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return agent.ErrKindRateLimited
	}

	if strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "invalid_api_key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") {
		return agent.ErrKindAuth
	}

	if strings.Contains(errStr, "context length") ||
		strings.Contains(errStr, "context_length") ||
		strings.Contains(errStr, "maximum context") ||
		strings.Contains(errStr, "prompt is too long") ||
		strings.Contains(errStr, "too many tokens") {
		return agent.ErrKindContextOverflow
	}

	if strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "invalid character") ||
		strings.Contains(errStr, "cannot unmarshal") ||
		strings.Contains(errStr, "malformed") {
		return agent.ErrKindMalformed
	}

	return agent.ErrKindUnavailable
}

// classifyStatus maps an HTTP status code to a ModelErrorKind. Zero is
// returned for statuses that need string classification instead.
func classifyStatus(status int) agent.ModelErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return agent.ErrKindAuth
	case status == http.StatusTooManyRequests:
		return agent.ErrKindRateLimited
	case status == http.StatusRequestTimeout:
		return agent.ErrKindTimeout
	case status == http.StatusNotFound:
		return agent.ErrKindUnavailable
	case status >= 500:
		return agent.ErrKindUnavailable
	default:
		return ""
	}
}

// NewModelError wraps a provider failure in the shared error type,
// classifying it by status code when available and by message otherwise.
func NewModelError(provider, model string, status int, cause error) *agent.ModelError {
	kind := classifyStatus(status)
	if kind == "" {
		kind = Classify(cause)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &agent.ModelError{
		Kind:     kind,
		Provider: provider,
		Model:    model,
		Status:   status,
		Message:  msg,
		Cause:    cause,
	}
}
