package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError is a classified failure from a model provider API call.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Provider, msg, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient: rate limits, server
// errors, timeouts, and connection trouble. Auth and validation failures
// are permanent.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500 && e.StatusCode <= 599:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	}

	msg := strings.ToLower(e.Error())
	for _, marker := range []string{
		"rate_limit", "too many requests",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
		"internal server error", "bad gateway", "service unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
