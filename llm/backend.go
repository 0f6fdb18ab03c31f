// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
)

// Backend is the adapter contract every completion service implements.
// Implementations must be safe for concurrent use; each adapter owns its own
// credential and client handle, no state is shared between adapters.
//
// Retries are layered outside these calls by the orchestrator: one Complete
// invocation is exactly one network round trip.
type Backend interface {
	// Name returns the unique identifier for this backend instance.
	// Used for routing, logging and metrics.
	// Example: "anthropic-primary", "openai-backup"
	Name() string

	// Initialize authenticates and populates the live model list. It fails
	// with an authentication_failed BackendError if the credential is
	// rejected. Called once before the backend serves traffic.
	Initialize(ctx context.Context) error

	// Dispose releases resources held by the adapter.
	Dispose() error

	// Complete executes one buffered completion round trip. Failures carry
	// timeout, rate_limit_exceeded, model_not_found or unknown kinds.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStream executes one streamed completion. The handler receives
	// partial responses in order; the returned Response is the single
	// terminal element with aggregated content and final usage. A handler
	// error or context cancellation must release the underlying connection.
	CompleteStream(ctx context.Context, req Request, handler StreamHandler) (*Response, error)

	// HealthProbe performs one minimal round trip. The health tracker calls
	// it on a fixed interval, independent of request traffic.
	HealthProbe(ctx context.Context) error

	// Supports reports whether this backend handles the task category.
	Supports(task TaskCategory) bool

	// Models lists the models available on this backend.
	Models() []string

	// EstimateCost returns the estimated cost in USD for the request,
	// computed from prompt length heuristics and the configured cost
	// table. It performs no I/O.
	EstimateCost(req Request) float64
}

// EstimateTokens approximates the token count of a prompt. Four characters
// per token tracks English text closely enough for cost estimation.
func EstimateTokens(text string) int {
	return len(text) / 4
}
