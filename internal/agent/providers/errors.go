package providers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/anvilworks/anvil/internal/retry"
)

// ProviderError carries structured context about a failed provider call.
type ProviderError struct {
	// Provider is the provider name ("anthropic", "openai", ...).
	Provider string

	// Model is the model the request targeted, when known.
	Model string

	// StatusCode is the HTTP status, when the failure was an HTTP error.
	StatusCode int

	// Code is the provider-specific error code, when available.
	Code string

	// Message is the provider-supplied message, when available.
	Message string

	// Cause is the underlying error.
	Cause error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable classifies the failure. Status codes are authoritative when
// present; otherwise the stringified error is classified by substring.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode > 0 {
		switch {
		case e.StatusCode == http.StatusTooManyRequests:
			return true
		case e.StatusCode >= 500:
			return true
		case e.StatusCode >= 400:
			return false
		}
	}
	return retry.Classify(e) == retry.ClassTransient
}

// NewProviderError wraps an error with provider context.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Cause: cause}
}

// WithStatus attaches an HTTP status code.
func (e *ProviderError) WithStatus(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// WithCode attaches a provider error code.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	return e
}

// WithMessage attaches a provider message.
func (e *ProviderError) WithMessage(message string) *ProviderError {
	e.Message = message
	return e
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether a provider call error is worth retrying.
// Non-provider errors fall back to substring classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		return pe.Retryable()
	}
	return retry.Classify(err) == retry.ClassTransient
}

// IsPermanent is the inverse of IsRetryable for non-nil errors.
func IsPermanent(err error) bool {
	return err != nil && !IsRetryable(err)
}
