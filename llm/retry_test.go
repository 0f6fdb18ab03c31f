// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
		RetryIf:        DefaultRetryable,
	}
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", NewBackendError("a", ErrKindTimeout, "deadline"), true},
		{"rate limited", NewBackendError("a", ErrKindRateLimited, "slow down"), true},
		{"unavailable", NewBackendError("a", ErrKindUnavailable, "down"), true},
		{"unknown", errors.New("mystery"), true},
		{"invalid request", NewBackendError("a", ErrKindInvalidRequest, "bad"), false},
		{"auth failed", NewBackendError("a", ErrKindAuthFailed, "denied"), false},
		{"model not found", NewBackendError("a", ErrKindModelNotFound, "gone"), false},
		{"content filtered", NewBackendError("a", ErrKindContentFiltered, "blocked"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.want {
				t.Errorf("DefaultRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewBackendError("a", ErrKindUnavailable, "warming up")
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("result = %q, want done", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoffExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(2), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewBackendError("a", ErrKindRateLimited, "still limited")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
	if ErrorKindOf(err) != ErrKindRateLimited {
		t.Errorf("error kind = %s, want %s", ErrorKindOf(err), ErrKindRateLimited)
	}
}

func TestRetryWithBackoffStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewBackendError("a", ErrKindInvalidRequest, "malformed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on invalid request)", calls)
	}
}

func TestRetryWithBackoffRetriesUnknownExactlyOnce(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("unclassified")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (unknown retried once)", calls)
	}
}

func TestRetryWithBackoffHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetryConfig(3)
	cfg.InitialBackoff = time.Second

	calls := 0
	_, err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewBackendError("a", ErrKindUnavailable, "down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancelled during backoff)", calls)
	}
}
