// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Storage persists backend configuration, health snapshots and per-request
// usage. The orchestrator itself never touches storage; callers wire a
// storage-backed observer and load configs at startup.
type Storage interface {
	SaveBackend(ctx context.Context, cfg *BackendConfig) error
	GetBackend(ctx context.Context, name string) (*BackendConfig, error)
	DeleteBackend(ctx context.Context, name string) error
	ListBackends(ctx context.Context) ([]string, error)
	SaveHealth(ctx context.Context, backendName string, record *HealthRecord) error
	RecordUsage(ctx context.Context, usage *UsageRecord) error
}

// UsageRecord is one persisted attempt row.
type UsageRecord struct {
	BackendName      string
	RequestID        string
	Task             string
	Model            string
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	EstimatedCostUSD float64
	LatencyMs        int64
	Status           string // "success" or an error kind
	ErrorMessage     string
}

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL-backed storage.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// SaveBackend upserts a backend configuration.
func (s *PostgresStorage) SaveBackend(ctx context.Context, cfg *BackendConfig) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}

	costJSON, err := json.Marshal(cfg.CostTable)
	if err != nil {
		return fmt.Errorf("failed to marshal cost table: %w", err)
	}
	tasksJSON, err := json.Marshal(cfg.Tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	modelsJSON, err := json.Marshal(cfg.Models)
	if err != nil {
		return fmt.Errorf("failed to marshal models: %w", err)
	}

	query := `
		INSERT INTO llm_backends (
			name, type, enabled, api_key_secret_arn, endpoint, region,
			default_model, models, tasks, requests_per_minute,
			tokens_per_minute, max_concurrent, cost_table, weight,
			timeout_seconds, max_retries
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			enabled = EXCLUDED.enabled,
			api_key_secret_arn = EXCLUDED.api_key_secret_arn,
			endpoint = EXCLUDED.endpoint,
			region = EXCLUDED.region,
			default_model = EXCLUDED.default_model,
			models = EXCLUDED.models,
			tasks = EXCLUDED.tasks,
			requests_per_minute = EXCLUDED.requests_per_minute,
			tokens_per_minute = EXCLUDED.tokens_per_minute,
			max_concurrent = EXCLUDED.max_concurrent,
			cost_table = EXCLUDED.cost_table,
			weight = EXCLUDED.weight,
			timeout_seconds = EXCLUDED.timeout_seconds,
			max_retries = EXCLUDED.max_retries,
			updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Type,
		cfg.Enabled,
		cfg.APIKeySecretARN,
		cfg.Endpoint,
		cfg.Region,
		cfg.DefaultModel,
		modelsJSON,
		tasksJSON,
		cfg.RequestsPerMinute,
		cfg.TokensPerMinute,
		cfg.MaxConcurrent,
		costJSON,
		cfg.Weight,
		int(cfg.Timeout/time.Second),
		cfg.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("failed to save backend: %w", err)
	}

	return nil
}

// GetBackend retrieves a backend configuration by name. The API key itself
// is never stored; only the secret ARN is persisted.
func (s *PostgresStorage) GetBackend(ctx context.Context, name string) (*BackendConfig, error) {
	query := `
		SELECT name, type, enabled, api_key_secret_arn, endpoint, region,
			   default_model, models, tasks, requests_per_minute,
			   tokens_per_minute, max_concurrent, cost_table, weight,
			   timeout_seconds, max_retries
		FROM llm_backends
		WHERE name = $1
	`

	var cfg BackendConfig
	var secretARN, endpoint, region, defaultModel sql.NullString
	var modelsJSON, tasksJSON, costJSON []byte
	var timeoutSeconds int

	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&cfg.Name,
		&cfg.Type,
		&cfg.Enabled,
		&secretARN,
		&endpoint,
		&region,
		&defaultModel,
		&modelsJSON,
		&tasksJSON,
		&cfg.RequestsPerMinute,
		&cfg.TokensPerMinute,
		&cfg.MaxConcurrent,
		&costJSON,
		&cfg.Weight,
		&timeoutSeconds,
		&cfg.MaxRetries,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("backend %q not found", name)
		}
		return nil, fmt.Errorf("failed to get backend: %w", err)
	}

	cfg.APIKeySecretARN = secretARN.String
	cfg.Endpoint = endpoint.String
	cfg.Region = region.String
	cfg.DefaultModel = defaultModel.String
	cfg.Timeout = time.Duration(timeoutSeconds) * time.Second

	if len(modelsJSON) > 0 {
		if err := json.Unmarshal(modelsJSON, &cfg.Models); err != nil {
			return nil, fmt.Errorf("failed to unmarshal models: %w", err)
		}
	}
	if len(tasksJSON) > 0 {
		if err := json.Unmarshal(tasksJSON, &cfg.Tasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
		}
	}
	cfg.CostTable = make(map[string]ModelCost)
	if len(costJSON) > 0 {
		if err := json.Unmarshal(costJSON, &cfg.CostTable); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cost table: %w", err)
		}
	}

	return &cfg, nil
}

// DeleteBackend removes a backend configuration.
func (s *PostgresStorage) DeleteBackend(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM llm_backends WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete backend: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("backend %q not found", name)
	}

	return nil
}

// ListBackends returns all configured backend names.
func (s *PostgresStorage) ListBackends(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM llm_backends ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan backend name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backends: %w", err)
	}

	return names, nil
}

// SaveHealth persists a health snapshot.
func (s *PostgresStorage) SaveHealth(ctx context.Context, backendName string, record *HealthRecord) error {
	query := `
		INSERT INTO llm_backend_health (
			backend_id, status, error_rate, availability,
			consecutive_failures, avg_latency_ms, last_error, last_checked_at
		)
		SELECT id, $2, $3, $4, $5, $6, $7, NOW()
		FROM llm_backends
		WHERE name = $1
		ON CONFLICT (backend_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_rate = EXCLUDED.error_rate,
			availability = EXCLUDED.availability,
			consecutive_failures = EXCLUDED.consecutive_failures,
			avg_latency_ms = EXCLUDED.avg_latency_ms,
			last_error = EXCLUDED.last_error,
			last_checked_at = NOW(),
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		backendName,
		string(record.Status),
		record.ErrorRate,
		record.Availability,
		record.ConsecutiveFailures,
		record.AvgLatency.Milliseconds(),
		record.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to save health: %w", err)
	}

	return nil
}

// RecordUsage records one attempt row.
func (s *PostgresStorage) RecordUsage(ctx context.Context, usage *UsageRecord) error {
	query := `
		INSERT INTO llm_backend_usage (
			backend_id, request_id, task, model,
			input_tokens, output_tokens, total_tokens,
			estimated_cost_usd, latency_ms, status, error_message
		)
		SELECT id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		FROM llm_backends
		WHERE name = $1
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.BackendName,
		usage.RequestID,
		usage.Task,
		usage.Model,
		usage.InputTokens,
		usage.OutputTokens,
		usage.TotalTokens,
		usage.EstimatedCostUSD,
		usage.LatencyMs,
		usage.Status,
		usage.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

// StorageObserver returns an Observer that persists every attempt through
// the given storage. Persistence errors are logged by the caller's storage
// implementation, never surfaced to request paths.
func StorageObserver(ctx context.Context, store Storage) Observer {
	return func(a Attempt) {
		rec := &UsageRecord{
			BackendName:      a.Backend,
			RequestID:        a.RequestID,
			Task:             string(a.Task),
			Model:            a.Model,
			InputTokens:      a.Usage.InputTokens,
			OutputTokens:     a.Usage.OutputTokens,
			TotalTokens:      a.Usage.TotalTokens,
			EstimatedCostUSD: a.Usage.CostUSD,
			LatencyMs:        a.Latency.Milliseconds(),
			Status:           "success",
		}
		if a.Err != nil {
			rec.Status = string(ErrorKindOf(a.Err))
			rec.ErrorMessage = a.Err.Error()
		}
		_ = store.RecordUsage(ctx, rec)
	}
}

var _ Storage = (*PostgresStorage)(nil)
