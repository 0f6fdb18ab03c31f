// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync/atomic"
	"time"
)

// fakeBackend is a scriptable Backend for tests in this package.
type fakeBackend struct {
	name  string
	tasks []TaskCategory
	cost  float64

	initErr    error
	probeErr   error
	completeFn func(ctx context.Context, req Request) (*Response, error)
	streamFn   func(ctx context.Context, req Request, handler StreamHandler) (*Response, error)

	completeCalls int64
	probeCalls    int64
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Initialize(ctx context.Context) error { return f.initErr }

func (f *fakeBackend) Dispose() error { return nil }

func (f *fakeBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	atomic.AddInt64(&f.completeCalls, 1)
	if f.completeFn != nil {
		return f.completeFn(ctx, req)
	}
	return &Response{
		ID:      "resp-" + f.name,
		Model:   "fake-model",
		Content: "ok",
		Usage:   Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		Metadata: ResponseMetadata{
			Latency:     time.Millisecond,
			CompletedAt: time.Now(),
		},
	}, nil
}

func (f *fakeBackend) CompleteStream(ctx context.Context, req Request, handler StreamHandler) (*Response, error) {
	if f.streamFn != nil {
		return f.streamFn(ctx, req, handler)
	}
	return f.Complete(ctx, req)
}

func (f *fakeBackend) HealthProbe(ctx context.Context) error {
	atomic.AddInt64(&f.probeCalls, 1)
	return f.probeErr
}

func (f *fakeBackend) Supports(task TaskCategory) bool {
	if len(f.tasks) == 0 {
		return true
	}
	for _, t := range f.tasks {
		if t == task {
			return true
		}
	}
	return false
}

func (f *fakeBackend) Models() []string { return []string{"fake-model"} }

func (f *fakeBackend) EstimateCost(req Request) float64 { return f.cost }

var _ Backend = (*fakeBackend)(nil)
