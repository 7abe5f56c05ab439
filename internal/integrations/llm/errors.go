package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind groups provider failures for the escalation classifier. None of
// them are fixed by a larger token budget.
type ErrorKind string

const (
	ErrorTransport      ErrorKind = "transport"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorRateLimit      ErrorKind = "rate_limit"
	ErrorPolicyFilter   ErrorKind = "policy_filter"
	ErrorUnknown        ErrorKind = "unknown"
)

type CompletionError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a completion error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorRateLimit
	case status >= 500:
		return ErrorTransport
	default:
		return ErrorUnknown
	}
}

func transportError(provider string, err error) *CompletionError {
	return &CompletionError{Kind: ErrorTransport, Provider: provider, Err: err}
}
