// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
	"time"
)

// BackendType identifies the adapter implementation behind a backend.
type BackendType string

// Standard backend types supported out of the box.
const (
	BackendTypeAnthropic BackendType = "anthropic"
	BackendTypeOpenAI    BackendType = "openai"
	BackendTypeBedrock   BackendType = "bedrock"
	BackendTypeCustom    BackendType = "custom"
)

// ModelCost is the per-model cost table entry, in USD per 1K tokens.
type ModelCost struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// BackendConfig describes one backend at registration time. Created from
// static configuration at startup and immutable for the process lifetime;
// hot-reload is out of scope.
type BackendConfig struct {
	// Name is the unique backend identifier.
	Name string `json:"name" yaml:"name"`

	// Type selects the adapter implementation.
	Type BackendType `json:"type" yaml:"type"`

	// Enabled gates whether the backend participates in routing.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// APIKey is the credential for the backend API. Bedrock leaves it
	// empty and relies on the ambient AWS credential chain.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// APIKeySecretARN names an AWS Secrets Manager secret holding the
	// credential, used instead of APIKey in production deployments.
	APIKeySecretARN string `json:"api_key_secret_arn,omitempty" yaml:"api_key_secret_arn,omitempty"`

	// Endpoint overrides the adapter's default API endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Region is the cloud region (Bedrock).
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// DefaultModel is used when a request does not override the model.
	DefaultModel string `json:"default_model" yaml:"default_model"`

	// Models lists all models this backend may serve.
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`

	// Tasks lists the task categories this backend supports.
	Tasks []TaskCategory `json:"tasks" yaml:"tasks"`

	// RequestsPerMinute is the rolling submission budget (0 = unlimited).
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`

	// TokensPerMinute is the advisory token budget (0 = unlimited).
	TokensPerMinute int `json:"tokens_per_minute,omitempty" yaml:"tokens_per_minute,omitempty"`

	// MaxConcurrent bounds in-flight calls against this backend.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// CostTable maps model name to its cost entry.
	CostTable map[string]ModelCost `json:"cost_table,omitempty" yaml:"cost_table,omitempty"`

	// Weight is the relative priority weight (0-100) for weighted routing.
	Weight int `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Timeout is the default per-request timeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRetries is the default retry budget per orchestrated call.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// ProbeInterval is how often the health tracker probes this backend.
	ProbeInterval time.Duration `json:"probe_interval,omitempty" yaml:"probe_interval,omitempty"`

	// ProbeTimeout bounds one health probe round trip.
	ProbeTimeout time.Duration `json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty"`
}

// Defaults applied by Validate when fields are zero.
const (
	DefaultMaxConcurrent = 8
	DefaultTimeout       = 60 * time.Second
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 10 * time.Second
)

// Validate checks a config for registration and fills defaults in place.
func (c *BackendConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("backend name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("backend %q: type is required", c.Name)
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("backend %q: at least one task category is required", c.Name)
	}
	if c.Weight < 0 || c.Weight > 100 {
		return fmt.Errorf("backend %q: weight %d outside range 0-100", c.Name, c.Weight)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("backend %q: max_concurrent cannot be negative", c.Name)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("backend %q: requests_per_minute cannot be negative", c.Name)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("backend %q: max_retries cannot be negative", c.Name)
	}

	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return nil
}

// SupportsTask reports whether the config lists the task category.
func (c *BackendConfig) SupportsTask(task TaskCategory) bool {
	for _, t := range c.Tasks {
		if t == task {
			return true
		}
	}
	return false
}

// CostFor returns the cost table entry for a model, falling back to the
// default model's entry, then to a zero entry.
func (c *BackendConfig) CostFor(model string) ModelCost {
	if cost, ok := c.CostTable[model]; ok {
		return cost
	}
	if cost, ok := c.CostTable[c.DefaultModel]; ok {
		return cost
	}
	return ModelCost{}
}
