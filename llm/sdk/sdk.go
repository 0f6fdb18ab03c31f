// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package sdk provides a fluent builder for custom LLM backends, the escape
// hatch for model servers no built-in adapter covers (local inference hosts,
// district-hosted gateways, vendor previews).
//
// Quick Start:
//
//	backend := sdk.NewBackendBuilder("district-gateway").
//	    WithModel("gateway-model-v1").
//	    WithAuth(sdk.NewAPIKeyAuth(apiKey)).
//	    WithTasks(llm.TaskTutoring, llm.TaskGrading).
//	    WithCompleteFunc(myCompleteFunc).
//	    Build()
//
// For richer behavior implement llm.Backend directly.
package sdk

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"brightclass/platform/llm"
)

// CompleteFunc is the custom completion logic, one network round trip.
type CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

// StreamFunc is the custom streaming logic. Implementations deliver partials
// through the handler and return the aggregated terminal response.
type StreamFunc func(ctx context.Context, req llm.Request, handler llm.StreamHandler) (*llm.Response, error)

// ProbeFunc is the custom health probe logic.
type ProbeFunc func(ctx context.Context) error

// BackendBuilder provides a fluent interface for building custom backends.
type BackendBuilder struct {
	name         string
	model        string
	models       []string
	endpoint     string
	tasks        []llm.TaskCategory
	costTable    map[string]llm.ModelCost
	auth         AuthProvider
	logger       *log.Logger
	httpClient   *http.Client
	timeout      time.Duration
	completeFunc CompleteFunc
	streamFunc   StreamFunc
	probeFunc    ProbeFunc
}

// NewBackendBuilder creates a builder for a custom backend with the given
// name.
func NewBackendBuilder(name string) *BackendBuilder {
	return &BackendBuilder{
		name:       name,
		logger:     log.New(os.Stdout, fmt.Sprintf("[LLM_%s] ", name), log.LstdFlags),
		timeout:    30 * time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithModel sets the default model.
func (b *BackendBuilder) WithModel(model string) *BackendBuilder {
	b.model = model
	if len(b.models) == 0 {
		b.models = []string{model}
	}
	return b
}

// WithModels sets the full model list.
func (b *BackendBuilder) WithModels(models ...string) *BackendBuilder {
	b.models = models
	return b
}

// WithEndpoint sets the API endpoint.
func (b *BackendBuilder) WithEndpoint(endpoint string) *BackendBuilder {
	b.endpoint = endpoint
	return b
}

// WithTasks sets the task categories the backend serves. A backend with no
// tasks serves every category.
func (b *BackendBuilder) WithTasks(tasks ...llm.TaskCategory) *BackendBuilder {
	b.tasks = tasks
	return b
}

// WithCostTable sets per-model pricing for cost estimation.
func (b *BackendBuilder) WithCostTable(table map[string]llm.ModelCost) *BackendBuilder {
	b.costTable = table
	return b
}

// WithAuth sets the authentication provider.
func (b *BackendBuilder) WithAuth(auth AuthProvider) *BackendBuilder {
	b.auth = auth
	return b
}

// WithLogger sets a custom logger.
func (b *BackendBuilder) WithLogger(logger *log.Logger) *BackendBuilder {
	b.logger = logger
	return b
}

// WithHTTPClient sets a custom HTTP client.
func (b *BackendBuilder) WithHTTPClient(client *http.Client) *BackendBuilder {
	b.httpClient = client
	return b
}

// WithTimeout sets the request timeout.
func (b *BackendBuilder) WithTimeout(timeout time.Duration) *BackendBuilder {
	b.timeout = timeout
	b.httpClient.Timeout = timeout
	return b
}

// WithCompleteFunc sets the completion logic, the core of the backend.
func (b *BackendBuilder) WithCompleteFunc(fn CompleteFunc) *BackendBuilder {
	b.completeFunc = fn
	return b
}

// WithStreamFunc sets the streaming logic. Backends without one reject
// streamed requests.
func (b *BackendBuilder) WithStreamFunc(fn StreamFunc) *BackendBuilder {
	b.streamFunc = fn
	return b
}

// WithProbeFunc sets the health probe logic. Without one, probes issue a
// one-token completion.
func (b *BackendBuilder) WithProbeFunc(fn ProbeFunc) *BackendBuilder {
	b.probeFunc = fn
	return b
}

// Build creates the backend.
func (b *BackendBuilder) Build() *CustomBackend {
	return &CustomBackend{
		name:         b.name,
		model:        b.model,
		models:       b.models,
		endpoint:     b.endpoint,
		tasks:        b.tasks,
		costTable:    b.costTable,
		auth:         b.auth,
		logger:       b.logger,
		httpClient:   b.httpClient,
		timeout:      b.timeout,
		completeFunc: b.completeFunc,
		streamFunc:   b.streamFunc,
		probeFunc:    b.probeFunc,
	}
}

// CustomBackend is a backend built with the SDK.
type CustomBackend struct {
	name         string
	model        string
	models       []string
	endpoint     string
	tasks        []llm.TaskCategory
	costTable    map[string]llm.ModelCost
	auth         AuthProvider
	logger       *log.Logger
	httpClient   *http.Client
	timeout      time.Duration
	completeFunc CompleteFunc
	streamFunc   StreamFunc
	probeFunc    ProbeFunc
}

// Name returns the backend name.
func (p *CustomBackend) Name() string {
	return p.name
}

// Initialize verifies the backend with one probe.
func (p *CustomBackend) Initialize(ctx context.Context) error {
	if p.completeFunc == nil {
		return fmt.Errorf("no completion function configured, use WithCompleteFunc()")
	}
	return p.HealthProbe(ctx)
}

// Dispose releases resources.
func (p *CustomBackend) Dispose() error {
	return nil
}

// Complete executes the custom completion logic with the default model
// applied.
func (p *CustomBackend) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if p.completeFunc == nil {
		return nil, llm.NewBackendError(p.name, llm.ErrKindUnavailable,
			"no completion function configured")
	}
	if req.Options.Model == "" {
		req.Options.Model = p.model
	}
	resp, err := p.completeFunc(ctx, req)
	if err != nil {
		return nil, llm.WrapBackendError(p.name, err)
	}
	return resp, nil
}

// CompleteStream executes the custom stream logic.
func (p *CustomBackend) CompleteStream(ctx context.Context, req llm.Request, handler llm.StreamHandler) (*llm.Response, error) {
	if p.streamFunc == nil {
		return nil, llm.NewBackendError(p.name, llm.ErrKindInvalidRequest,
			"backend does not support streaming")
	}
	if req.Options.Model == "" {
		req.Options.Model = p.model
	}
	resp, err := p.streamFunc(ctx, req, handler)
	if err != nil {
		return nil, llm.WrapBackendError(p.name, err)
	}
	return resp, nil
}

// HealthProbe runs the custom probe, falling back to a one-token completion.
func (p *CustomBackend) HealthProbe(ctx context.Context) error {
	if p.probeFunc != nil {
		return p.probeFunc(ctx)
	}

	req := llm.NewRequest("", "ping")
	req.Options.MaxTokens = 1
	_, err := p.Complete(ctx, req)
	return err
}

// Supports reports whether the backend serves the task category. Builders
// that configure no task list serve everything.
func (p *CustomBackend) Supports(task llm.TaskCategory) bool {
	if len(p.tasks) == 0 {
		return true
	}
	for _, t := range p.tasks {
		if t == task {
			return true
		}
	}
	return false
}

// Models lists the configured models.
func (p *CustomBackend) Models() []string {
	return p.models
}

// EstimateCost estimates the request cost from the configured cost table.
// Custom backends without pricing estimate zero.
func (p *CustomBackend) EstimateCost(req llm.Request) float64 {
	model := req.Options.Model
	if model == "" {
		model = p.model
	}
	cost, ok := p.costTable[model]
	if !ok {
		return 0
	}

	outputTokens := req.Options.MaxTokens
	if outputTokens <= 0 {
		outputTokens = 1024
	}
	return float64(llm.EstimateTokens(req.Prompt))/1000.0*cost.InputPer1K +
		float64(outputTokens)/1000.0*cost.OutputPer1K
}

// HTTPClient returns the HTTP client for completion functions that need it.
func (p *CustomBackend) HTTPClient() *http.Client {
	return p.httpClient
}

// Auth returns the authentication provider.
func (p *CustomBackend) Auth() AuthProvider {
	return p.auth
}

// Logger returns the backend logger.
func (p *CustomBackend) Logger() *log.Logger {
	return p.logger
}

// Endpoint returns the API endpoint.
func (p *CustomBackend) Endpoint() string {
	return p.endpoint
}

var _ llm.Backend = (*CustomBackend)(nil)
