// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a backend failure so the orchestrator can apply
// kind-specific retry and failover policy without parsing messages.
type ErrorKind string

const (
	// ErrKindUnavailable indicates the provider is down or overloaded.
	ErrKindUnavailable ErrorKind = "provider_unavailable"

	// ErrKindRateLimited indicates a rate limit was hit.
	ErrKindRateLimited ErrorKind = "rate_limit_exceeded"

	// ErrKindInvalidRequest indicates the request itself is malformed.
	ErrKindInvalidRequest ErrorKind = "invalid_request"

	// ErrKindAuthFailed indicates the credential was rejected.
	ErrKindAuthFailed ErrorKind = "authentication_failed"

	// ErrKindModelNotFound indicates the requested model does not exist.
	ErrKindModelNotFound ErrorKind = "model_not_found"

	// ErrKindContentFiltered indicates the content was rejected by safety
	// filtering. Retrying the same content would repeat the rejection.
	ErrKindContentFiltered ErrorKind = "content_filtered"

	// ErrKindTimeout indicates the attempt exceeded its deadline.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindUnknown is the conservative default for unclassified failures.
	ErrKindUnknown ErrorKind = "unknown"
)

// BackendError is the typed error shared by adapters and the orchestrator.
// Adapters are responsible for translating raw transport errors into this
// taxonomy; callers never see an underlying library error directly.
type BackendError struct {
	// Backend is the identifier of the backend that produced the error.
	Backend string `json:"backend"`

	// Kind is the taxonomy classification.
	Kind ErrorKind `json:"kind"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// StatusCode is the HTTP status code, if applicable.
	StatusCode int `json:"status_code,omitempty"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Backend, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same backend may be retried for this kind.
// Unknown errors are retried once per backend; the orchestrator enforces
// that budget, this only reports kind-level retryability.
func (e *BackendError) Retryable() bool {
	switch e.Kind {
	case ErrKindTimeout, ErrKindRateLimited, ErrKindUnavailable, ErrKindUnknown:
		return true
	default:
		return false
	}
}

// NewBackendError creates a BackendError for the given backend and kind.
func NewBackendError(backend string, kind ErrorKind, message string) *BackendError {
	return &BackendError{Backend: backend, Kind: kind, Message: message}
}

// WrapBackendError classifies an arbitrary error against the taxonomy.
// Context deadline expiry maps to timeout; everything unclassified is
// unknown. Existing BackendErrors pass through with the backend id filled
// in when missing.
func WrapBackendError(backend string, err error) *BackendError {
	if err == nil {
		return nil
	}

	var be *BackendError
	if errors.As(err, &be) {
		if be.Backend == "" {
			be.Backend = backend
		}
		return be
	}

	kind := ErrKindUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrKindTimeout
	} else if errors.Is(err, context.Canceled) {
		kind = ErrKindTimeout
	}

	return &BackendError{
		Backend: backend,
		Kind:    kind,
		Message: err.Error(),
		Cause:   err,
	}
}

// ErrorKindOf extracts the taxonomy kind from any error.
func ErrorKindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindUnknown
}
