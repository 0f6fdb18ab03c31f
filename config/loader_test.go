// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightclass/platform/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoaderParsesFullConfig(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-from-env")

	path := writeConfig(t, `
version: "1.0"
routing:
  strategy: weighted
  failover_chain: [anthropic-primary, openai-backup]
  weight_overrides:
    openai-backup: 0.5
backends:
  anthropic-primary:
    type: anthropic
    enabled: true
    api_key: ${TEST_ANTHROPIC_KEY}
    default_model: claude-3-5-sonnet-20241022
    tasks: [grading, tutoring]
    weight: 70
  openai-backup:
    type: openai
    enabled: true
    api_key: sk-inline
    default_model: gpt-4o-mini
    tasks: [grading]
    weight: 30
  disabled-one:
    type: openai
    enabled: false
    tasks: [grading]
`)

	loader, err := NewLoader(path)
	require.NoError(t, err)

	routing := loader.Routing()
	assert.Equal(t, "weighted", routing.Strategy)
	assert.Equal(t, []string{"anthropic-primary", "openai-backup"}, routing.FailoverChain)
	assert.Equal(t, 0.5, routing.WeightOverrides["openai-backup"])

	backends := loader.Backends()
	require.Len(t, backends, 2, "disabled backends are filtered out")

	byName := make(map[string]llm.BackendConfig)
	for _, cfg := range backends {
		byName[cfg.Name] = cfg
	}
	assert.Equal(t, "sk-ant-from-env", byName["anthropic-primary"].APIKey)
	assert.Equal(t, llm.BackendTypeAnthropic, byName["anthropic-primary"].Type)
	assert.Equal(t, 70, byName["anthropic-primary"].Weight)
	assert.Equal(t, "sk-inline", byName["openai-backup"].APIKey)
}

func TestLoaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing version",
			"backends: {}",
			"version",
		},
		{
			"bad strategy",
			"version: \"1.0\"\nrouting:\n  strategy: fastest\n",
			"invalid routing strategy",
		},
		{
			"missing backend type",
			"version: \"1.0\"\nbackends:\n  a:\n    enabled: true\n",
			"must specify a type",
		},
		{
			"bad backend type",
			"version: \"1.0\"\nbackends:\n  a:\n    type: mainframe\n",
			"invalid type",
		},
		{
			"weight out of range",
			"version: \"1.0\"\nbackends:\n  a:\n    type: openai\n    weight: 150\n",
			"weight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EXPAND_SET", "value")
	os.Unsetenv("EXPAND_UNSET")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"braced", "key: ${EXPAND_SET}", "key: value"},
		{"bare", "key: $EXPAND_SET", "key: value"},
		{"unset to empty", "key: ${EXPAND_UNSET}", "key: "},
		{"default used", "key: ${EXPAND_UNSET:-fallback}", "key: fallback"},
		{"default ignored when set", "key: ${EXPAND_SET:-fallback}", "key: value"},
		{"no reference", "key: plain", "key: plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandEnvVars(tt.in))
		})
	}
}

func TestExampleConfigParses(t *testing.T) {
	loader, err := NewLoader(writeConfig(t, ExampleConfig()))
	require.NoError(t, err)
	assert.Equal(t, "cost_optimized", loader.Routing().Strategy)
	assert.NotEmpty(t, loader.Backends())
}
