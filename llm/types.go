// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a unified orchestration layer over external LLM
// completion backends. It defines the backend adapter contract, the
// per-backend capacity queue and health tracker, the pluggable routing
// strategies, and the orchestrator that ties them together.
package llm

import (
	"time"

	"github.com/google/uuid"
)

// TaskCategory classifies what kind of completion is requested. The router
// only matches it against backend capability sets; the tag itself is opaque.
type TaskCategory string

// Task categories produced by the upstream capability services.
const (
	TaskQuestionGeneration TaskCategory = "question_generation"
	TaskGrading            TaskCategory = "grading"
	TaskTutoring           TaskCategory = "tutoring"
	TaskAssessment         TaskCategory = "assessment"
	TaskIEPDrafting        TaskCategory = "iep_drafting"
	TaskFocusSummary       TaskCategory = "focus_summary"
)

// Request is the unified completion request. It is immutable once created;
// the orchestrator and adapters never mutate a caller's Request.
type Request struct {
	// ID uniquely identifies this call. Every Response carries it back.
	ID string `json:"id"`

	// Task is the requested task category, matched against backend
	// capability sets during eligibility filtering.
	Task TaskCategory `json:"task"`

	// Prompt is the user's input text. Opaque to the orchestration layer.
	Prompt string `json:"prompt"`

	// Context carries free-form key/value context for adapter
	// system-prompt construction. Opaque to the router.
	Context map[string]string `json:"context,omitempty"`

	// Options holds per-call generation and execution parameters.
	Options RequestOptions `json:"options"`

	// Metadata identifies the caller and carries advisory routing hints.
	Metadata RequestMetadata `json:"metadata"`
}

// RequestOptions holds per-call generation parameters and execution overrides.
type RequestOptions struct {
	// Model overrides the backend's default model when non-empty.
	Model string `json:"model,omitempty"`

	// MaxTokens limits response length. 0 uses the backend default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Negative means unset.
	Temperature float64 `json:"temperature,omitempty"`

	// TopP is the nucleus sampling threshold. 0 means unset.
	TopP float64 `json:"top_p,omitempty"`

	// StopSequences are strings that cause generation to stop.
	StopSequences []string `json:"stop_sequences,omitempty"`

	// Stream requests incremental delivery via GenerateStream.
	Stream bool `json:"stream,omitempty"`

	// MaxRetries overrides the backend's retry budget when non-nil.
	MaxRetries *int `json:"max_retries,omitempty"`

	// Timeout overrides the backend's request timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequestMetadata identifies the caller and carries tags the adapters use for
// system-prompt construction. Priority is advisory only; the capacity queue
// stays FIFO.
type RequestMetadata struct {
	CallerID  string `json:"caller_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Grade     string `json:"grade,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

// NewRequest creates a Request with a fresh unique identifier.
func NewRequest(task TaskCategory, prompt string) Request {
	return Request{
		ID:     uuid.NewString(),
		Task:   task,
		Prompt: prompt,
		Options: RequestOptions{
			Temperature: -1,
		},
	}
}

// Response is the result of a completion. A streamed call yields zero or more
// partial Responses through a StreamHandler (Content holding only the
// incremental text, Usage zeroed) followed by exactly one terminal Response
// with the full aggregated content and final usage.
type Response struct {
	// ID uniquely identifies this response.
	ID string `json:"id"`

	// RequestID is the id of the originating Request.
	RequestID string `json:"request_id"`

	// Backend is the identifier of the backend that served the call.
	Backend string `json:"backend"`

	// Model is the model actually used (may differ from the requested one).
	Model string `json:"model"`

	// Content is the generated text. For partials, only the increment.
	Content string `json:"content"`

	// Usage holds token counts and the computed monetary cost.
	Usage Usage `json:"usage"`

	// Metadata holds latency, completion time and stop reason.
	Metadata ResponseMetadata `json:"metadata"`
}

// Usage tracks token consumption and cost for one response.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	// Latency is the time the serving attempt took.
	Latency time.Duration `json:"latency"`

	// CompletedAt is when the terminal response was assembled.
	CompletedAt time.Time `json:"completed_at"`

	// Cached is always false here; response caching is out of scope but the
	// field is part of the wire contract consumed upstream.
	Cached bool `json:"cached"`

	// FinishReason indicates why generation stopped.
	// Common values: "stop", "max_tokens", "content_filter".
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamHandler receives partial responses during a streamed completion.
// Returning an error aborts the stream and releases the connection.
type StreamHandler func(partial *Response) error

// HealthStatus is the derived health state of a backend.
type HealthStatus string

const (
	// HealthStatusHealthy means the backend is fully operational.
	HealthStatusHealthy HealthStatus = "healthy"

	// HealthStatusDegraded means the backend works but with elevated errors.
	HealthStatusDegraded HealthStatus = "degraded"

	// HealthStatusUnhealthy means the backend is excluded from routing.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthRecord is a read-only snapshot of a backend's health bookkeeping.
// One record exists per registered backend.
type HealthRecord struct {
	Backend             string        `json:"backend"`
	Status              HealthStatus  `json:"status"`
	LastProbe           time.Time     `json:"last_probe"`
	LastProbeLatency    time.Duration `json:"last_probe_latency"`
	ConsecutiveFailures int           `json:"consecutive_failures,omitempty"`
	ErrorRate           float64       `json:"error_rate"`
	Availability        float64       `json:"availability"`
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	AvgLatency          time.Duration `json:"avg_latency"`
	TokensProcessed     int64         `json:"tokens_processed"`
	TotalCostUSD        float64       `json:"total_cost_usd"`
	LastError           string        `json:"last_error,omitempty"`
}
