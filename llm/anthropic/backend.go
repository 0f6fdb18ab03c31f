// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides an LLM backend adapter for Anthropic's Claude
// models, supporting both buffered and streaming completions over the
// Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"brightclass/platform/llm"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the Anthropic API version.
	DefaultAPIVersion = "2023-06-01"

	// DefaultMaxTokens is the default max tokens for completions.
	DefaultMaxTokens = 4096

	// DefaultTemperature applies when the request leaves temperature unset.
	DefaultTemperature = 0.7
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func init() {
	llm.RegisterFactory(llm.BackendTypeAnthropic, func(cfg llm.BackendConfig) (llm.Backend, error) {
		return New(cfg)
	})
}

// Backend implements llm.Backend for Anthropic Claude.
type Backend struct {
	name       string
	apiKey     string
	baseURL    string
	apiVersion string
	config     llm.BackendConfig
	client     HTTPClient

	mu          sync.RWMutex
	initialized bool
}

// New creates an Anthropic backend from the given configuration. The API
// key is validated against the live endpoint in Initialize, not here.
func New(cfg llm.BackendConfig) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Backend{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: DefaultAPIVersion,
		config:     cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the configured backend name.
func (b *Backend) Name() string {
	return b.name
}

// Initialize verifies credentials with a minimal round trip. A rejected key
// surfaces here as an authentication failure rather than on first traffic.
func (b *Backend) Initialize(ctx context.Context) error {
	if err := b.HealthProbe(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

// Dispose releases the backend. The HTTP client holds no resources that
// outlive its idle connections, so this only marks the adapter closed.
func (b *Backend) Dispose() error {
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
	return nil
}

// Supports reports whether the configured task list includes the category.
func (b *Backend) Supports(task llm.TaskCategory) bool {
	return b.config.SupportsTask(task)
}

// Models returns the configured model list.
func (b *Backend) Models() []string {
	return b.config.Models
}

// EstimateCost estimates the USD cost of the request against the configured
// cost table, assuming output roughly equal to the requested max tokens.
func (b *Backend) EstimateCost(req llm.Request) float64 {
	model := req.Options.Model
	if model == "" {
		model = b.config.DefaultModel
	}
	cost := b.config.CostFor(model)

	inputTokens := llm.EstimateTokens(req.Prompt)
	outputTokens := req.Options.MaxTokens
	if outputTokens <= 0 {
		outputTokens = DefaultMaxTokens
	}
	return float64(inputTokens)/1000.0*cost.InputPer1K + float64(outputTokens)/1000.0*cost.OutputPer1K
}

// HealthProbe issues a one-token completion against the live endpoint.
func (b *Backend) HealthProbe(ctx context.Context) error {
	apiReq := apiRequest{
		Model:     b.config.DefaultModel,
		MaxTokens: 1,
		Messages:  []apiMessage{{Role: "user", Content: "ping"}},
	}

	resp, body, err := b.post(ctx, apiReq)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return b.translateError(resp.StatusCode, body)
	}
	return nil
}

// Complete generates a buffered completion.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()

	apiReq := b.buildRequest(req, false)
	resp, body, err := b.post(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, b.translateError(resp.StatusCode, body)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown,
			fmt.Sprintf("failed to decode response: %v", err))
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.Response{
		ID:      apiResp.ID,
		Backend: b.name,
		Model:   apiResp.Model,
		Content: content.String(),
		Usage: llm.Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Metadata: llm.ResponseMetadata{
			Latency:      time.Since(start),
			CompletedAt:  time.Now(),
			FinishReason: apiResp.StopReason,
		},
	}, nil
}

// CompleteStream generates a streaming completion, delivering each text
// delta to the handler as a partial response and returning the aggregated
// terminal response.
func (b *Backend) CompleteStream(ctx context.Context, req llm.Request, handler llm.StreamHandler) (*llm.Response, error) {
	start := time.Now()

	apiReq := b.buildRequest(req, true)
	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, llm.WrapBackendError(b.name, err)
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, llm.WrapBackendError(b.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, b.translateError(resp.StatusCode, body)
	}

	return b.processStream(resp.Body, req, handler, start, apiReq.Model)
}

// processStream consumes the SSE event stream, forwarding text deltas and
// accumulating the terminal response.
func (b *Backend) processStream(body io.Reader, req llm.Request, handler llm.StreamHandler, start time.Time, model string) (*llm.Response, error) {
	scanner := bufio.NewScanner(body)
	var content strings.Builder
	var usage llm.Usage
	var stopReason, responseID, responseModel string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // skip malformed events
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				responseID = event.Message.ID
				responseModel = event.Message.Model
				if event.Message.Usage != nil {
					usage.InputTokens = event.Message.Usage.InputTokens
				}
			}

		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" {
				content.WriteString(event.Delta.Text)
				if handler != nil {
					partial := &llm.Response{
						ID:      responseID,
						Backend: b.name,
						Model:   responseModel,
						Content: event.Delta.Text,
					}
					if err := handler(partial); err != nil {
						return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown,
							fmt.Sprintf("stream handler error: %v", err))
					}
				}
			}

		case "message_delta":
			if event.Delta != nil {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, llm.WrapBackendError(b.name, fmt.Errorf("stream read error: %w", err))
	}

	if responseModel == "" {
		responseModel = model
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &llm.Response{
		ID:      responseID,
		Backend: b.name,
		Model:   responseModel,
		Content: content.String(),
		Usage:   usage,
		Metadata: llm.ResponseMetadata{
			Latency:      time.Since(start),
			CompletedAt:  time.Now(),
			FinishReason: stopReason,
		},
	}, nil
}

// buildRequest maps the generic request onto the Messages API shape.
func (b *Backend) buildRequest(req llm.Request, stream bool) apiRequest {
	model := req.Options.Model
	if model == "" {
		model = b.config.DefaultModel
	}

	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	apiReq := apiRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    stream,
		Messages:  []apiMessage{{Role: "user", Content: req.Prompt}},
	}

	// Temperature 0.0 is valid (deterministic); only negatives mean unset.
	temperature := req.Options.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}
	apiReq.Temperature = &temperature

	if req.Options.TopP > 0 {
		apiReq.TopP = &req.Options.TopP
	}
	if system := req.Context["system"]; system != "" {
		apiReq.System = system
	}
	if len(req.Options.StopSequences) > 0 {
		apiReq.StopSequences = req.Options.StopSequences
	}

	return apiReq
}

// post executes a non-streaming round trip, returning the raw body.
func (b *Backend) post(ctx context.Context, apiReq apiRequest) (*http.Response, []byte, error) {
	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, nil, llm.NewBackendError(b.name, llm.ErrKindInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, nil, llm.WrapBackendError(b.name, err)
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, nil, llm.WrapBackendError(b.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, llm.WrapBackendError(b.name, err)
	}
	return resp, body, nil
}

func (b *Backend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", b.apiVersion)
}

// translateError maps an API error body onto the shared taxonomy.
func (b *Backend) translateError(statusCode int, body []byte) *llm.BackendError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	kind := llm.ErrKindUnknown
	switch {
	case statusCode == http.StatusTooManyRequests || errResp.Error.Type == "rate_limit_error":
		kind = llm.ErrKindRateLimited
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || errResp.Error.Type == "authentication_error":
		kind = llm.ErrKindAuthFailed
	case statusCode == http.StatusNotFound || errResp.Error.Type == "not_found_error":
		kind = llm.ErrKindModelNotFound
	case statusCode == http.StatusBadRequest || errResp.Error.Type == "invalid_request_error":
		kind = llm.ErrKindInvalidRequest
	case statusCode == http.StatusServiceUnavailable || errResp.Error.Type == "overloaded_error":
		kind = llm.ErrKindUnavailable
	case statusCode >= 500:
		kind = llm.ErrKindUnavailable
	case statusCode == http.StatusRequestTimeout:
		kind = llm.ErrKindTimeout
	}

	berr := llm.NewBackendError(b.name, kind, message)
	berr.StatusCode = statusCode
	return berr
}

// Internal API types

type apiRequest struct {
	Model         string       `json:"model"`
	Messages      []apiMessage `json:"messages"`
	MaxTokens     int          `json:"max_tokens"`
	System        string       `json:"system,omitempty"`
	Temperature   *float64     `json:"temperature,omitempty"`
	TopP          *float64     `json:"top_p,omitempty"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	Stream        bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage *struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage,omitempty"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type       string `json:"type,omitempty"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

var _ llm.Backend = (*Backend)(nil)
