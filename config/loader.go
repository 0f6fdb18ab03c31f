// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package config loads orchestrator configuration from YAML files, with
// environment variable expansion and AWS Secrets Manager resolution for
// API keys.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"brightclass/platform/llm"
)

// File is the root structure of a configuration file.
type File struct {
	Version  string                       `yaml:"version"`
	Routing  Routing                      `yaml:"routing,omitempty"`
	Backends map[string]llm.BackendConfig `yaml:"backends,omitempty"`
}

// Routing holds the orchestrator-level routing settings.
type Routing struct {
	Strategy        string             `yaml:"strategy,omitempty"`
	FailoverChain   []string           `yaml:"failover_chain,omitempty"`
	WeightOverrides map[string]float64 `yaml:"weight_overrides,omitempty"`
}

// Loader reads and parses a configuration file.
type Loader struct {
	filePath string
	file     *File
}

// NewLoader creates a loader and parses the file immediately.
func NewLoader(filePath string) (*Loader, error) {
	l := &Loader{filePath: filePath}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}

	expanded := ExpandEnvVars(string(data))

	var file File
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validate(&file); err != nil {
		return err
	}

	l.file = &file
	return nil
}

// Reload re-reads the configuration file.
func (l *Loader) Reload() error {
	return l.reload()
}

// Routing returns the routing section.
func (l *Loader) Routing() Routing {
	return l.file.Routing
}

// Backends returns the enabled backend configurations. The map key becomes
// the backend name when the config leaves Name empty.
func (l *Loader) Backends() []llm.BackendConfig {
	var out []llm.BackendConfig
	for name, cfg := range l.file.Backends {
		if !cfg.Enabled {
			continue
		}
		if cfg.Name == "" {
			cfg.Name = name
		}
		out = append(out, cfg)
	}
	return out
}

func validate(file *File) error {
	if file.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	if file.Routing.Strategy != "" && !llm.IsValidStrategyName(file.Routing.Strategy) {
		return fmt.Errorf("invalid routing strategy %q (valid: %v)",
			file.Routing.Strategy, llm.ValidStrategyNames)
	}

	for name, cfg := range file.Backends {
		switch cfg.Type {
		case llm.BackendTypeAnthropic, llm.BackendTypeOpenAI, llm.BackendTypeBedrock, llm.BackendTypeCustom:
		case "":
			return fmt.Errorf("backend %q must specify a type", name)
		default:
			return fmt.Errorf("backend %q has invalid type %q", name, cfg.Type)
		}
		if cfg.Weight < 0 || cfg.Weight > 100 {
			return fmt.Errorf("backend %q weight must be between 0 and 100", name)
		}
	}
	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnvVars expands environment variable references. Supports
// ${VAR_NAME}, $VAR_NAME and ${VAR_NAME:-default} syntax; undefined
// variables expand to the empty string.
func ExpandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// ExampleConfig returns a documented example configuration file.
func ExampleConfig() string {
	return `# BrightClass LLM orchestrator configuration
# Environment variables can be referenced with ${VAR_NAME} or ${VAR_NAME:-default}.

version: "1.0"

routing:
  strategy: cost_optimized
  failover_chain: [anthropic-primary, openai-backup, bedrock-fallback]

backends:
  anthropic-primary:
    type: anthropic
    enabled: true
    api_key: ${ANTHROPIC_API_KEY}
    default_model: claude-3-5-sonnet-20241022
    models: [claude-3-5-sonnet-20241022, claude-3-5-haiku-20241022]
    tasks: [question_generation, grading, tutoring, assessment, iep_drafting, focus_summary]
    requests_per_minute: 300
    max_concurrent: 8
    weight: 60
    cost_table:
      claude-3-5-sonnet-20241022: {input_per_1k: 0.003, output_per_1k: 0.015}
      claude-3-5-haiku-20241022: {input_per_1k: 0.0008, output_per_1k: 0.004}

  openai-backup:
    type: openai
    enabled: true
    api_key: ${OPENAI_API_KEY}
    default_model: gpt-4o-mini
    models: [gpt-4o, gpt-4o-mini]
    tasks: [question_generation, grading, tutoring, focus_summary]
    requests_per_minute: 500
    max_concurrent: 10
    weight: 30
    cost_table:
      gpt-4o: {input_per_1k: 0.0025, output_per_1k: 0.01}
      gpt-4o-mini: {input_per_1k: 0.00015, output_per_1k: 0.0006}

  bedrock-fallback:
    type: bedrock
    enabled: false
    region: ${AWS_REGION:-us-east-1}
    api_key_secret_arn: ${BEDROCK_SECRET_ARN}
    default_model: anthropic.claude-3-5-sonnet-20240620-v1:0
    tasks: [assessment, iep_drafting]
    requests_per_minute: 100
    weight: 10
`
}
