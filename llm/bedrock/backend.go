// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package bedrock provides an LLM backend adapter for AWS Bedrock, invoking
// Anthropic models through the Bedrock runtime with SigV4 authentication.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"brightclass/platform/llm"
)

const (
	// anthropicVersion is the Bedrock-specific Anthropic API version.
	anthropicVersion = "bedrock-2023-05-31"

	// DefaultMaxTokens is the default max tokens for completions.
	DefaultMaxTokens = 4096
)

func init() {
	llm.RegisterFactory(llm.BackendTypeBedrock, func(cfg llm.BackendConfig) (llm.Backend, error) {
		return New(cfg)
	})
}

// Client is the subset of the Bedrock runtime used by the adapter
// (enables testing).
type Client interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// Backend implements llm.Backend for AWS Bedrock.
type Backend struct {
	name   string
	region string
	config llm.BackendConfig
	client Client
}

// New creates a Bedrock backend. The AWS client is built in Initialize so
// that credential resolution happens under the caller's context.
func New(cfg llm.BackendConfig) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return &Backend{
		name:   cfg.Name,
		region: region,
		config: cfg,
	}, nil
}

// NewWithClient creates a Bedrock backend with an injected client, used in
// tests.
func NewWithClient(cfg llm.BackendConfig, client Client) (*Backend, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	b.client = client
	return b, nil
}

// Name returns the configured backend name.
func (b *Backend) Name() string {
	return b.name
}

// Initialize resolves AWS credentials and builds the runtime client.
// Credential problems surface here as authentication failures.
func (b *Backend) Initialize(ctx context.Context) error {
	if b.client != nil {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.region))
	if err != nil {
		return llm.NewBackendError(b.name, llm.ErrKindAuthFailed,
			fmt.Sprintf("failed to load AWS config (region: %s): %v", b.region, err))
	}
	b.client = bedrockruntime.NewFromConfig(awsCfg)
	return nil
}

// Dispose releases the client handle.
func (b *Backend) Dispose() error {
	b.client = nil
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

// HealthProbe issues a one-token invocation against the default model.
func (b *Backend) HealthProbe(ctx context.Context) error {
	if b.client == nil {
		return llm.NewBackendError(b.name, llm.ErrKindUnavailable, "backend not initialized")
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        1,
		Messages:         []invokeMessage{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		return llm.WrapBackendError(b.name, err)
	}

	_, err = b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.config.DefaultModel),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return b.translateError(err)
	}
	return nil
}

// Complete generates a buffered completion via InvokeModel.
func (b *Backend) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if b.client == nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindUnavailable, "backend not initialized")
	}
	start := time.Now()

	model := req.Options.Model
	if model == "" {
		model = b.config.DefaultModel
	}

	body, err := json.Marshal(b.buildRequest(req))
	if err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, b.translateError(err)
	}

	var invokeResp invokeResponse
	if err := json.Unmarshal(output.Body, &invokeResp); err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown,
			fmt.Sprintf("failed to decode response: %v", err))
	}

	var content strings.Builder
	for _, block := range invokeResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.Response{
		ID:      invokeResp.ID,
		Backend: b.name,
		Model:   model,
		Content: content.String(),
		Usage: llm.Usage{
			InputTokens:  invokeResp.Usage.InputTokens,
			OutputTokens: invokeResp.Usage.OutputTokens,
			TotalTokens:  invokeResp.Usage.InputTokens + invokeResp.Usage.OutputTokens,
		},
		Metadata: llm.ResponseMetadata{
			Latency:      time.Since(start),
			CompletedAt:  time.Now(),
			FinishReason: invokeResp.StopReason,
		},
	}, nil
}

// CompleteStream generates a streaming completion via
// InvokeModelWithResponseStream, forwarding text deltas to the handler.
func (b *Backend) CompleteStream(ctx context.Context, req llm.Request, handler llm.StreamHandler) (*llm.Response, error) {
	if b.client == nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindUnavailable, "backend not initialized")
	}
	start := time.Now()

	model := req.Options.Model
	if model == "" {
		model = b.config.DefaultModel
	}

	body, err := json.Marshal(b.buildRequest(req))
	if err != nil {
		return nil, llm.NewBackendError(b.name, llm.ErrKindInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	output, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, b.translateError(err)
	}

	stream := output.GetStream()
	defer func() {
		_ = stream.Close()
	}()

	var content strings.Builder
	var usage llm.Usage
	var stopReason, responseID string

	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok || chunk.Value.Bytes == nil {
			continue
		}

		var se streamEvent
		if err := json.Unmarshal(chunk.Value.Bytes, &se); err != nil {
			continue
		}

		switch se.Type {
		case "message_start":
			if se.Message != nil {
				responseID = se.Message.ID
				if se.Message.Usage != nil {
					usage.InputTokens = se.Message.Usage.InputTokens
				}
			}

		case "content_block_delta":
			if se.Delta != nil && se.Delta.Type == "text_delta" {
				content.WriteString(se.Delta.Text)
				if handler != nil {
					partial := &llm.Response{
						ID:      responseID,
						Backend: b.name,
						Model:   model,
						Content: se.Delta.Text,
					}
					if err := handler(partial); err != nil {
						return nil, llm.NewBackendError(b.name, llm.ErrKindUnknown,
							fmt.Sprintf("stream handler error: %v", err))
					}
				}
			}

		case "message_delta":
			if se.Delta != nil {
				stopReason = se.Delta.StopReason
			}
			if se.Usage != nil {
				usage.OutputTokens = se.Usage.OutputTokens
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, b.translateError(err)
	}

	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &llm.Response{
		ID:      responseID,
		Backend: b.name,
		Model:   model,
		Content: content.String(),
		Usage:   usage,
		Metadata: llm.ResponseMetadata{
			Latency:      time.Since(start),
			CompletedAt:  time.Now(),
			FinishReason: stopReason,
		},
	}, nil
}

// buildRequest maps the generic request onto the Bedrock Anthropic shape.
func (b *Backend) buildRequest(req llm.Request) invokeRequest {
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	ir := invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         []invokeMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.Options.Temperature >= 0 {
		ir.Temperature = &req.Options.Temperature
	}
	if req.Options.TopP > 0 {
		ir.TopP = &req.Options.TopP
	}
	if system := req.Context["system"]; system != "" {
		ir.System = system
	}
	if len(req.Options.StopSequences) > 0 {
		ir.StopSequences = req.Options.StopSequences
	}
	return ir
}

// translateError maps AWS SDK errors onto the shared taxonomy by exception
// type name, the stable key the SDK exposes across service versions.
func (b *Backend) translateError(err error) *llm.BackendError {
	var throttled *types.ThrottlingException
	var notFound *types.ResourceNotFoundException
	var validation *types.ValidationException
	var accessDenied *types.AccessDeniedException
	var unavailable *types.ServiceUnavailableException
	var internal *types.InternalServerException

	kind := llm.ErrKindUnknown
	switch {
	case errors.As(err, &throttled):
		kind = llm.ErrKindRateLimited
	case errors.As(err, &notFound):
		kind = llm.ErrKindModelNotFound
	case errors.As(err, &validation):
		kind = llm.ErrKindInvalidRequest
	case errors.As(err, &accessDenied):
		kind = llm.ErrKindAuthFailed
	case errors.As(err, &unavailable), errors.As(err, &internal):
		kind = llm.ErrKindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		kind = llm.ErrKindTimeout
	}

	berr := llm.NewBackendError(b.name, kind, err.Error())
	berr.Cause = err
	return berr
}

// Internal API types for the Bedrock Anthropic message format.

type invokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Messages         []invokeMessage `json:"messages"`
	System           string          `json:"system,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	StopSequences    []string        `json:"stop_sequences,omitempty"`
}

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	ID         string `json:"id"`
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
