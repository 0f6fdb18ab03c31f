// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightclass/platform/llm"
)

func TestStaticSecretsResolver(t *testing.T) {
	resolver := NewStaticSecretsResolver(map[string]string{
		"arn:aws:secretsmanager:us-east-1:123:secret:anthropic": "sk-ant-secret",
	})

	value, err := resolver.GetSecret(context.Background(), "arn:aws:secretsmanager:us-east-1:123:secret:anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-secret", value)

	_, err = resolver.GetSecret(context.Background(), "arn:aws:secretsmanager:us-east-1:123:secret:missing")
	require.Error(t, err)

	resolver.SetSecret("arn:later", "sk-later")
	value, err = resolver.GetSecret(context.Background(), "arn:later")
	require.NoError(t, err)
	assert.Equal(t, "sk-later", value)
}

func TestResolveAPIKeys(t *testing.T) {
	resolver := NewStaticSecretsResolver(map[string]string{
		"arn:anthropic": "sk-from-secrets",
	})

	configs := []llm.BackendConfig{
		{Name: "needs-secret", APIKeySecretARN: "arn:anthropic"},
		{Name: "inline-wins", APIKey: "sk-inline", APIKeySecretARN: "arn:anthropic"},
		{Name: "no-secret"},
	}

	require.NoError(t, ResolveAPIKeys(context.Background(), resolver, configs))

	assert.Equal(t, "sk-from-secrets", configs[0].APIKey)
	assert.Equal(t, "sk-inline", configs[1].APIKey, "inline key must not be overwritten")
	assert.Empty(t, configs[2].APIKey)
}

func TestResolveAPIKeysMissingSecret(t *testing.T) {
	resolver := NewStaticSecretsResolver(nil)
	configs := []llm.BackendConfig{
		{Name: "broken", APIKeySecretARN: "arn:missing"},
	}

	err := ResolveAPIKeys(context.Background(), resolver, configs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestMaskARN(t *testing.T) {
	assert.Equal(t, "***", maskARN("short"))
	assert.Equal(t, "...c:apikey", maskARN("arn:aws:secretsmanager:us-east-1:123:sec:apikey"))
}
