// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStorage(db), mock
}

func TestSaveBackendUpserts(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO llm_backends").
		WithArgs("anthropic-primary", "anthropic", true,
			"arn:aws:secretsmanager:us-east-1:123:secret:llm", "", "us-east-1",
			"claude-3-5-sonnet-20241022", sqlmock.AnyArg(), sqlmock.AnyArg(),
			60, 0, 8, sqlmock.AnyArg(), 50, 30, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &BackendConfig{
		Name:              "anthropic-primary",
		Type:              BackendTypeAnthropic,
		Enabled:           true,
		APIKeySecretARN:   "arn:aws:secretsmanager:us-east-1:123:secret:llm",
		Region:            "us-east-1",
		DefaultModel:      "claude-3-5-sonnet-20241022",
		Models:            []string{"claude-3-5-sonnet-20241022"},
		Tasks:             []TaskCategory{TaskGrading},
		RequestsPerMinute: 60,
		MaxConcurrent:     8,
		Weight:            50,
		Timeout:           30 * time.Second,
		MaxRetries:        2,
	}

	if err := store.SaveBackend(context.Background(), cfg); err != nil {
		t.Fatalf("SaveBackend: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBackendRejectsNil(t *testing.T) {
	store, _ := newMockStorage(t)
	if err := store.SaveBackend(context.Background(), nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestGetBackendRoundTrip(t *testing.T) {
	store, mock := newMockStorage(t)

	cols := []string{
		"name", "type", "enabled", "api_key_secret_arn", "endpoint", "region",
		"default_model", "models", "tasks", "requests_per_minute",
		"tokens_per_minute", "max_concurrent", "cost_table", "weight",
		"timeout_seconds", "max_retries",
	}
	mock.ExpectQuery("SELECT .+ FROM llm_backends").
		WithArgs("openai-primary").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"openai-primary", "openai", true, nil, nil, nil,
			"gpt-4o", []byte(`["gpt-4o","gpt-4o-mini"]`),
			[]byte(`["grading","tutoring"]`), 120,
			0, 16, []byte(`{"gpt-4o":{"input_per_1k":0.0025,"output_per_1k":0.01}}`), 50,
			45, 3,
		))

	cfg, err := store.GetBackend(context.Background(), "openai-primary")
	if err != nil {
		t.Fatalf("GetBackend: %v", err)
	}

	if cfg.Type != BackendTypeOpenAI {
		t.Errorf("Type = %s, want openai", cfg.Type)
	}
	if len(cfg.Models) != 2 {
		t.Errorf("Models = %v, want 2 entries", cfg.Models)
	}
	if !cfg.SupportsTask(TaskTutoring) {
		t.Error("expected tutoring task support")
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if got := cfg.CostFor("gpt-4o").InputPer1K; got != 0.0025 {
		t.Errorf("cost table input per 1k = %v, want 0.0025", got)
	}
}

func TestGetBackendNotFound(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT .+ FROM llm_backends").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := store.GetBackend(context.Background(), "missing"); err == nil {
		t.Error("expected not-found error")
	}
}

func TestDeleteBackendNotFound(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec("DELETE FROM llm_backends").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteBackend(context.Background(), "missing"); err == nil {
		t.Error("expected not-found error for zero affected rows")
	}
}

func TestListBackends(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT name FROM llm_backends").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("anthropic-primary").
			AddRow("openai-primary"))

	names, err := store.ListBackends(context.Background())
	if err != nil {
		t.Fatalf("ListBackends: %v", err)
	}
	if len(names) != 2 || names[0] != "anthropic-primary" {
		t.Errorf("ListBackends = %v", names)
	}
}

func TestRecordUsageWritesAttemptRow(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO llm_backend_usage").
		WithArgs("anthropic-primary", "req-1", "grading", "claude-3-5-sonnet-20241022",
			100, 50, 150, 0.001, int64(250), "success", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordUsage(context.Background(), &UsageRecord{
		BackendName:      "anthropic-primary",
		RequestID:        "req-1",
		Task:             "grading",
		Model:            "claude-3-5-sonnet-20241022",
		InputTokens:      100,
		OutputTokens:     50,
		TotalTokens:      150,
		EstimatedCostUSD: 0.001,
		LatencyMs:        250,
		Status:           "success",
	})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStorageObserverMapsAttempts(t *testing.T) {
	recorder := &recordingStorage{}
	observe := StorageObserver(context.Background(), recorder)

	observe(Attempt{
		RequestID: "req-ok",
		Backend:   "a",
		Model:     "fake-model",
		Task:      TaskGrading,
		Latency:   120 * time.Millisecond,
		Usage:     Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	})
	observe(Attempt{
		RequestID: "req-bad",
		Backend:   "a",
		Task:      TaskGrading,
		Err:       NewBackendError("a", ErrKindRateLimited, "throttled"),
	})

	if len(recorder.usage) != 2 {
		t.Fatalf("recorded %d rows, want 2", len(recorder.usage))
	}
	if recorder.usage[0].Status != "success" || recorder.usage[0].TotalTokens != 15 {
		t.Errorf("success row = %+v", recorder.usage[0])
	}
	if recorder.usage[1].Status != string(ErrKindRateLimited) {
		t.Errorf("failure status = %q, want %s", recorder.usage[1].Status, ErrKindRateLimited)
	}
	if recorder.usage[1].ErrorMessage == "" {
		t.Error("failure row missing error message")
	}
}

// recordingStorage captures usage rows in memory.
type recordingStorage struct {
	usage []UsageRecord
}

func (r *recordingStorage) SaveBackend(ctx context.Context, cfg *BackendConfig) error { return nil }
func (r *recordingStorage) GetBackend(ctx context.Context, name string) (*BackendConfig, error) {
	return nil, nil
}
func (r *recordingStorage) DeleteBackend(ctx context.Context, name string) error { return nil }
func (r *recordingStorage) ListBackends(ctx context.Context) ([]string, error)   { return nil, nil }
func (r *recordingStorage) SaveHealth(ctx context.Context, name string, rec *HealthRecord) error {
	return nil
}
func (r *recordingStorage) RecordUsage(ctx context.Context, usage *UsageRecord) error {
	r.usage = append(r.usage, *usage)
	return nil
}
