package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrorType categorizes agent failures for structured handling by the bot.
type ErrorType string

const (
	ErrAuth      ErrorType = "auth_error"   // 401/403, bad API key
	ErrNotFound  ErrorType = "not_found"    // 404, unknown case or model
	ErrRateLimit ErrorType = "rate_limit"   // 429, quota exhausted
	ErrServer    ErrorType = "server_error" // 5xx, model or search backend down
	ErrTimeout   ErrorType = "timeout"      // context deadline exceeded
	ErrCanceled  ErrorType = "canceled"     // client went away
)

// AgentError wraps an agent failure with a classification and a message
// that can be shown to the user as a bot reply.
type AgentError struct {
	Type      ErrorType
	Message   string
	RawError  string
	Retryable bool
}

func (e *AgentError) Error() string { return e.RawError }

// ClassifyError inspects err and returns a typed AgentError.
func ClassifyError(err error) *AgentError {
	raw := err.Error()

	switch {
	case errors.Is(err, context.Canceled):
		return &AgentError{
			Type: ErrCanceled, Retryable: true,
			Message:  "The request was cancelled. Please send your message again.",
			RawError: raw,
		}
	case errors.Is(err, context.DeadlineExceeded), containsAny(raw, "deadline exceeded", "timeout"):
		return &AgentError{
			Type: ErrTimeout, Retryable: true,
			Message:  "The assistant took too long to respond. Please try again.",
			RawError: raw,
		}
	case containsAny(raw, "429", "rate limit", "resource_exhausted", "quota"):
		return &AgentError{
			Type: ErrRateLimit, Retryable: true,
			Message:  "The assistant is busy right now. Please try again in a minute.",
			RawError: raw,
		}
	case containsAny(raw, "401", "403", "unauthorized", "permission_denied", "api key"):
		return &AgentError{
			Type: ErrAuth, Retryable: false,
			Message:  "The assistant is not configured correctly. Please contact support.",
			RawError: raw,
		}
	case containsAny(raw, "404", "not found"):
		return &AgentError{
			Type: ErrNotFound, Retryable: false,
			Message:  "I couldn't find what you asked for. Please check the case number.",
			RawError: raw,
		}
	default:
		return &AgentError{
			Type: ErrServer, Retryable: true,
			Message:  "I apologize, but I'm having trouble processing your request. Please try again.",
			RawError: raw,
		}
	}
}

func containsAny(s string, patterns ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
