// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"brightclass/platform/llm"
)

// SecretsResolver fetches API keys referenced by ARN in backend configs.
type SecretsResolver interface {
	GetSecret(ctx context.Context, secretARN string) (string, error)
}

// AWSSecretsResolver implements SecretsResolver using AWS Secrets Manager,
// with a short-lived in-process cache.
type AWSSecretsResolver struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// AWSSecretsResolverOptions holds options for creating an AWSSecretsResolver.
type AWSSecretsResolverOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsResolver creates a Secrets Manager backed resolver.
func NewAWSSecretsResolver(ctx context.Context, opts AWSSecretsResolverOptions) (*AWSSecretsResolver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS] ", log.LstdFlags)
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsResolver{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret value. JSON secrets use the "api_key" field;
// plain string secrets are returned as-is.
func (s *AWSSecretsResolver) GetSecret(ctx context.Context, secretARN string) (string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskARN(secretARN))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	value := *result.SecretString
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err == nil {
		if key, ok := fields["api_key"]; ok {
			value = key
		}
	}

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{
		value:     value,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return value, nil
}

// Invalidate removes a secret from the cache.
func (s *AWSSecretsResolver) Invalidate(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

// maskARN masks the secret ARN for logging (shows only last 8 characters).
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// StaticSecretsResolver serves secrets from an in-memory map, for tests and
// local development.
type StaticSecretsResolver struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewStaticSecretsResolver creates a resolver over a fixed secret map.
func NewStaticSecretsResolver(secrets map[string]string) *StaticSecretsResolver {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &StaticSecretsResolver{secrets: secrets}
}

// GetSecret retrieves a secret from the map.
func (s *StaticSecretsResolver) GetSecret(ctx context.Context, secretARN string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.secrets[secretARN]; ok {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found", maskARN(secretARN))
}

// SetSecret stores a secret.
func (s *StaticSecretsResolver) SetSecret(secretARN, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretARN] = value
}

// ResolveAPIKeys fills in APIKey for every backend config that references a
// secret ARN and has no inline key. Inline keys always win; they come from
// environment expansion and are already resolved.
func ResolveAPIKeys(ctx context.Context, resolver SecretsResolver, configs []llm.BackendConfig) error {
	for i := range configs {
		cfg := &configs[i]
		if cfg.APIKey != "" || cfg.APIKeySecretARN == "" {
			continue
		}
		key, err := resolver.GetSecret(ctx, cfg.APIKeySecretARN)
		if err != nil {
			return fmt.Errorf("resolving API key for backend %q: %w", cfg.Name, err)
		}
		cfg.APIKey = key
	}
	return nil
}

var (
	_ SecretsResolver = (*AWSSecretsResolver)(nil)
	_ SecretsResolver = (*StaticSecretsResolver)(nil)
)
