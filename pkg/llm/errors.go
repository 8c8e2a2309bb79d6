package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorClass buckets provider failures for retry and user messaging.
type ErrorClass string

const (
	ClassNone      ErrorClass = ""
	ClassRateLimit ErrorClass = "rate_limit"
	ClassTransient ErrorClass = "transient"
	ClassInvalid   ErrorClass = "invalid"
	ClassCanceled  ErrorClass = "canceled"
	ClassUnknown   ErrorClass = "unknown"
)

// Retryable reports whether a call failing with this class may be attempted again.
func (c ErrorClass) Retryable() bool {
	return c == ClassRateLimit || c == ClassTransient
}

// ProviderError carries the HTTP status of a failed provider call.
// Providers wrap their SDK errors into it so classification stays provider-agnostic.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by a provider call to its ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return classifyStatus(pe.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassUnknown
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ClassRateLimit
	case code == http.StatusRequestTimeout, code >= 500:
		return ClassTransient
	case code >= 400:
		return ClassInvalid
	case code == 0:
		// no response at all, the connection dropped
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// UserMessage is the sentence shown to users when a call ultimately fails.
func (c ErrorClass) UserMessage() string {
	switch c {
	case ClassRateLimit:
		return "The analysis service is receiving too many requests or its quota is exhausted. Please try again in a few minutes."
	case ClassTransient:
		return "The analysis service is temporarily unavailable. Please try again shortly."
	case ClassCanceled:
		return "The request was canceled before the analysis completed."
	case ClassInvalid:
		return "The analysis service rejected the request. Please rephrase your question."
	default:
		return "An unexpected error occurred during the analysis. Please try again."
	}
}

// ExecutionError reports a sandbox run that ended in a non-successful state.
type ExecutionError struct {
	Status  string
	Message string
}

func (e *ExecutionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("code execution ended with status %s", e.Status)
	}
	return fmt.Sprintf("code execution ended with status %s: %s", e.Status, e.Message)
}
