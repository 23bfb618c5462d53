package pipeline

import "strings"

// ErrorType classifies a terminal step failure as worth retrying later or
// needing intervention.
type ErrorType string

const (
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypePermanent ErrorType = "permanent"
)

// Classification is the retry hint attached to a failed research step.
type Classification struct {
	Type      ErrorType
	Retryable bool
}

// Classify decides whether a failure is likely to succeed on a later retry
// of the whole workflow. The decision is substring matching on the error
// message, kept in this one function so it can be replaced with structured
// error codes without touching the orchestrator.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Type: ErrorTypePermanent, Retryable: false}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "fetch"),
		strings.Contains(msg, "expired token"),
		strings.Contains(msg, "token expired"):
		return Classification{Type: ErrorTypeTransient, Retryable: true}

	case strings.Contains(msg, "invalid token"),
		strings.Contains(msg, "invalid payload"):
		return Classification{Type: ErrorTypePermanent, Retryable: false}

	default:
		return Classification{Type: ErrorTypePermanent, Retryable: false}
	}
}
