// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package bedrock

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightclass/platform/llm"
)

// fakeClient scripts InvokeModel responses.
type fakeClient struct {
	invokeFn func(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error)
	calls    int
}

func (f *fakeClient) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	return f.invokeFn(ctx, in)
}

func (f *fakeClient) InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	return nil, &types.ValidationException{Message: aws.String("streaming not scripted")}
}

func testConfig() llm.BackendConfig {
	return llm.BackendConfig{
		Name:         "bedrock-test",
		Type:         llm.BackendTypeBedrock,
		Enabled:      true,
		Region:       "us-east-1",
		DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Models:       []string{"anthropic.claude-3-5-sonnet-20241022-v2:0"},
		Tasks:        []llm.TaskCategory{llm.TaskAssessment, llm.TaskIEPDrafting},
		Timeout:      5 * time.Second,
	}
}

func TestFactoryRegistered(t *testing.T) {
	assert.True(t, llm.HasFactory(llm.BackendTypeBedrock))
}

func TestCompleteRequiresInitialize(t *testing.T) {
	backend, err := New(testConfig())
	require.NoError(t, err)

	_, err = backend.Complete(context.Background(), llm.NewRequest(llm.TaskAssessment, "x"))
	require.Error(t, err)
	assert.Equal(t, llm.ErrKindUnavailable, llm.ErrorKindOf(err))
}

func TestComplete(t *testing.T) {
	client := &fakeClient{
		invokeFn: func(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
			assert.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", aws.ToString(in.ModelId))

			var body invokeRequest
			require.NoError(t, json.Unmarshal(in.Body, &body))
			assert.Equal(t, anthropicVersion, body.AnthropicVersion)
			assert.Equal(t, DefaultMaxTokens, body.MaxTokens)
			require.Len(t, body.Messages, 1)
			assert.Equal(t, "Draft an accommodation plan", body.Messages[0].Content)
			// Default temperature stays unset on the wire for Bedrock.
			assert.Nil(t, body.Temperature)

			return &bedrockruntime.InvokeModelOutput{
				Body: []byte(`{
					"id": "msg_br_01",
					"stop_reason": "end_turn",
					"content": [{"type": "text", "text": "Plan: extended time on assessments."}],
					"usage": {"input_tokens": 15, "output_tokens": 11}
				}`),
			}, nil
		},
	}

	backend, err := NewWithClient(testConfig(), client)
	require.NoError(t, err)
	require.NoError(t, backend.Initialize(context.Background()))

	resp, err := backend.Complete(context.Background(), llm.NewRequest(llm.TaskIEPDrafting, "Draft an accommodation plan"))
	require.NoError(t, err)

	assert.Equal(t, "msg_br_01", resp.ID)
	assert.Equal(t, "bedrock-test", resp.Backend)
	assert.Equal(t, "Plan: extended time on assessments.", resp.Content)
	assert.Equal(t, 26, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.Metadata.FinishReason)
	assert.Equal(t, 1, client.calls)
}

func TestCompleteExplicitOptions(t *testing.T) {
	client := &fakeClient{
		invokeFn: func(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
			var body invokeRequest
			require.NoError(t, json.Unmarshal(in.Body, &body))
			require.NotNil(t, body.Temperature)
			assert.Equal(t, 0.0, *body.Temperature)
			assert.Equal(t, "score against the rubric", body.System)
			assert.Equal(t, []string{"END"}, body.StopSequences)
			return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"id": "msg_br_02", "content": [], "usage": {}}`)}, nil
		},
	}

	backend, err := NewWithClient(testConfig(), client)
	require.NoError(t, err)

	req := llm.NewRequest(llm.TaskAssessment, "score this")
	req.Options.Temperature = 0
	req.Options.StopSequences = []string{"END"}
	req.Context = map[string]string{"system": "score against the rubric"}

	_, err = backend.Complete(context.Background(), req)
	require.NoError(t, err)
}

func TestHealthProbe(t *testing.T) {
	client := &fakeClient{
		invokeFn: func(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
			var body invokeRequest
			require.NoError(t, json.Unmarshal(in.Body, &body))
			assert.Equal(t, 1, body.MaxTokens)
			return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"id": "ping", "content": [], "usage": {}}`)}, nil
		},
	}

	backend, err := NewWithClient(testConfig(), client)
	require.NoError(t, err)
	require.NoError(t, backend.HealthProbe(context.Background()))
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind llm.ErrorKind
	}{
		{"throttled", &types.ThrottlingException{Message: aws.String("too many requests")}, llm.ErrKindRateLimited},
		{"model missing", &types.ResourceNotFoundException{Message: aws.String("model not found")}, llm.ErrKindModelNotFound},
		{"validation", &types.ValidationException{Message: aws.String("bad input")}, llm.ErrKindInvalidRequest},
		{"access denied", &types.AccessDeniedException{Message: aws.String("not authorized")}, llm.ErrKindAuthFailed},
		{"unavailable", &types.ServiceUnavailableException{Message: aws.String("try later")}, llm.ErrKindUnavailable},
		{"internal", &types.InternalServerException{Message: aws.String("server error")}, llm.ErrKindUnavailable},
		{"deadline", context.DeadlineExceeded, llm.ErrKindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{
				invokeFn: func(ctx context.Context, in *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
					return nil, tt.err
				},
			}
			backend, err := NewWithClient(testConfig(), client)
			require.NoError(t, err)

			_, err = backend.Complete(context.Background(), llm.NewRequest(llm.TaskAssessment, "x"))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, llm.ErrorKindOf(err))
		})
	}
}
