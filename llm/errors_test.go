// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBackendErrorMessage(t *testing.T) {
	err := &BackendError{Backend: "anthropic-primary", Kind: ErrKindRateLimited, Message: "slow down", StatusCode: 429}
	for _, want := range []string{"anthropic-primary", "rate_limit_exceeded", "429", "slow down"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error() = %q, missing %q", err.Error(), want)
		}
	}
}

func TestBackendErrorRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{ErrKindTimeout, true},
		{ErrKindRateLimited, true},
		{ErrKindUnavailable, true},
		{ErrKindUnknown, true},
		{ErrKindInvalidRequest, false},
		{ErrKindAuthFailed, false},
		{ErrKindModelNotFound, false},
		{ErrKindContentFiltered, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewBackendError("a", tt.kind, "x")
			if got := err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapBackendErrorPassesThroughTyped(t *testing.T) {
	orig := NewBackendError("", ErrKindModelNotFound, "no such model")
	wrapped := WrapBackendError("openai-primary", fmt.Errorf("completing: %w", orig))

	if wrapped.Kind != ErrKindModelNotFound {
		t.Errorf("Kind = %s, want %s", wrapped.Kind, ErrKindModelNotFound)
	}
	if wrapped.Backend != "openai-primary" {
		t.Errorf("Backend = %q, want openai-primary (filled in)", wrapped.Backend)
	}
}

func TestWrapBackendErrorClassifiesContext(t *testing.T) {
	if got := WrapBackendError("a", context.DeadlineExceeded).Kind; got != ErrKindTimeout {
		t.Errorf("deadline exceeded mapped to %s, want %s", got, ErrKindTimeout)
	}
	if got := WrapBackendError("a", context.Canceled).Kind; got != ErrKindTimeout {
		t.Errorf("cancellation mapped to %s, want %s", got, ErrKindTimeout)
	}
	if got := WrapBackendError("a", errors.New("boom")).Kind; got != ErrKindUnknown {
		t.Errorf("plain error mapped to %s, want %s", got, ErrKindUnknown)
	}
	if WrapBackendError("a", nil) != nil {
		t.Error("WrapBackendError(nil) should be nil")
	}
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	wrapped := WrapBackendError("a", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error does not unwrap to cause")
	}
}

func TestErrorKindOf(t *testing.T) {
	if got := ErrorKindOf(NewBackendError("a", ErrKindContentFiltered, "x")); got != ErrKindContentFiltered {
		t.Errorf("ErrorKindOf = %s, want %s", got, ErrKindContentFiltered)
	}
	if got := ErrorKindOf(fmt.Errorf("outer: %w", NewBackendError("a", ErrKindAuthFailed, "x"))); got != ErrKindAuthFailed {
		t.Errorf("ErrorKindOf through wrapping = %s, want %s", got, ErrKindAuthFailed)
	}
	if got := ErrorKindOf(errors.New("boom")); got != ErrKindUnknown {
		t.Errorf("ErrorKindOf(plain) = %s, want %s", got, ErrKindUnknown)
	}
}
