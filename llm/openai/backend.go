// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package openai provides an LLM backend adapter for OpenAI's chat models
// over the Chat Completions API.
package openai

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
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultMaxTokens is the default max tokens for completions.
	DefaultMaxTokens = 4096
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func init() {
	llm.RegisterFactory(llm.BackendTypeOpenAI, func(cfg llm.BackendConfig) (llm.Backend, error) {
		return New(cfg)
	})
}

// Backend implements llm.Backend for OpenAI chat models.
type Backend struct {
	name    string
	apiKey  string
	baseURL string
	config  llm.BackendConfig
	client  HTTPClient

	mu          sync.RWMutex
	initialized bool
}

// New creates an OpenAI backend from the given configuration.
func New(cfg llm.BackendConfig) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Backend{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the configured backend name.
func (b *Backend) Name() string {
	return b.name
}

// Initialize verifies credentials by listing models.
func (b *Backend) Initialize(ctx context.Context) error {
	if err := b.HealthProbe(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

// Dispose marks the adapter closed.
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
// cost table.
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

// HealthProbe hits the models endpoint, the cheapest authenticated call.
func (b *Backend) HealthProbe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/models", nil)
	if err != nil {
		return llm.WrapBackendError(b.name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return llm.WrapBackendError(b.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return b.translateError(resp.StatusCode, body)
	}
	return nil
}

// Complete generates a buffered completion.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()

	httpResp, body, err := b.post(ctx, b.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, b.translateError(httpResp.StatusCode, body)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown,
			fmt.Sprintf("failed to decode response: %v", err))
	}
	if len(apiResp.Choices) == 0 {
		return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown, "response contained no choices")
	}

	choice := apiResp.Choices[0]
	return &llm.Response{
		ID:      apiResp.ID,
		Backend: b.name,
		Model:   apiResp.Model,
		Content: choice.Message.Content,
		Usage: llm.Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
		Metadata: llm.ResponseMetadata{
			Latency:      time.Since(start),
			CompletedAt:  time.Now(),
			FinishReason: choice.FinishReason,
		},
	}, nil
}

// CompleteStream generates a streaming completion, forwarding content deltas
// to the handler and returning the aggregated terminal response.
func (b *Backend) CompleteStream(ctx context.Context, req llm.Request, handler llm.StreamHandler) (*llm.Response, error) {
	start := time.Now()

	apiReq := b.buildRequest(req, true)
	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
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

	return b.processStream(resp.Body, handler, start, apiReq.Model)
}

// processStream consumes the SSE stream. OpenAI terminates with a literal
// "data: [DONE]" sentinel; usage arrives on the final chunk when
// stream_options requests it.
func (b *Backend) processStream(body io.Reader, handler llm.StreamHandler, start time.Time, model string) (*llm.Response, error) {
	scanner := bufio.NewScanner(body)
	var content strings.Builder
	var usage llm.Usage
	var finishReason, responseID, responseModel string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // skip malformed events
		}

		if chunk.ID != "" {
			responseID = chunk.ID
		}
		if chunk.Model != "" {
			responseModel = chunk.Model
		}
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
			usage.TotalTokens = chunk.Usage.TotalTokens
		}

		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			if handler != nil {
				partial := &llm.Response{
					ID:      responseID,
					Backend: b.name,
					Model:   responseModel,
					Content: choice.Delta.Content,
				}
				if err := handler(partial); err != nil {
					return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown,
						fmt.Sprintf("stream handler error: %v", err))
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, llm.WrapBackendError(b.name, fmt.Errorf("stream read error: %w", err))
	}

	if responseModel == "" {
		responseModel = model
	}
	if usage.TotalTokens == 0 {
		usage.OutputTokens = llm.EstimateTokens(content.String())
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	return &llm.Response{
		ID:      responseID,
		Backend: b.name,
		Model:   responseModel,
		Content: content.String(),
		Usage:   usage,
		Metadata: llm.ResponseMetadata{
			Latency:      time.Since(start),
			CompletedAt:  time.Now(),
			FinishReason: finishReason,
		},
	}, nil
}

// buildRequest maps the generic request onto the Chat Completions shape.
func (b *Backend) buildRequest(req llm.Request, stream bool) apiRequest {
	model := req.Options.Model
	if model == "" {
		model = b.config.DefaultModel
	}

	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var messages []apiMessage
	if system := req.Context["system"]; system != "" {
		messages = append(messages, apiMessage{Role: "system", Content: system})
	}
	messages = append(messages, apiMessage{Role: "user", Content: req.Prompt})

	apiReq := apiRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    stream,
	}
	if stream {
		apiReq.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if req.Options.Temperature >= 0 {
		apiReq.Temperature = &req.Options.Temperature
	}
	if req.Options.TopP > 0 {
		apiReq.TopP = &req.Options.TopP
	}
	if len(req.Options.StopSequences) > 0 {
		apiReq.Stop = req.Options.StopSequences
	}
	return apiReq
}

func (b *Backend) post(ctx context.Context, apiReq apiRequest) (*http.Response, []byte, error) {
	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, nil, llm.NewBackendError(b.name, llm.ErrKindInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
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
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
}

// translateError maps an API error body onto the shared taxonomy.
func (b *Backend) translateError(statusCode int, body []byte) *llm.BackendError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	kind := llm.ErrKindUnknown
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = llm.ErrKindRateLimited
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = llm.ErrKindAuthFailed
	case errResp.Error.Code == "model_not_found":
		kind = llm.ErrKindModelNotFound
	case errResp.Error.Code == "content_filter" || errResp.Error.Code == "content_policy_violation":
		kind = llm.ErrKindContentFiltered
	case statusCode == http.StatusBadRequest || statusCode == http.StatusNotFound:
		kind = llm.ErrKindInvalidRequest
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
	Model         string         `json:"model"`
	Messages      []apiMessage   `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

var _ llm.Backend = (*Backend)(nil)
