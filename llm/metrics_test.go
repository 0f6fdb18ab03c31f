// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe(Attempt{
		Backend: "a",
		Model:   "fake-model",
		Task:    TaskGrading,
		Latency: 200 * time.Millisecond,
		Usage:   Usage{InputTokens: 100, OutputTokens: 40, CostUSD: 0.002},
	})
	m.Observe(Attempt{
		Backend: "a",
		Task:    TaskGrading,
		Latency: 50 * time.Millisecond,
		Err:     NewBackendError("a", ErrKindRateLimited, "throttled"),
	})

	success := testutil.ToFloat64(m.attempts.WithLabelValues("a", "grading", "success"))
	if success != 1 {
		t.Errorf("success attempts = %v, want 1", success)
	}
	limited := testutil.ToFloat64(m.attempts.WithLabelValues("a", "grading", string(ErrKindRateLimited)))
	if limited != 1 {
		t.Errorf("rate-limited attempts = %v, want 1", limited)
	}

	in := testutil.ToFloat64(m.tokens.WithLabelValues("a", "input"))
	out := testutil.ToFloat64(m.tokens.WithLabelValues("a", "output"))
	if in != 100 || out != 40 {
		t.Errorf("tokens in/out = %v/%v, want 100/40", in, out)
	}

	cost := testutil.ToFloat64(m.cost.WithLabelValues("a", "fake-model"))
	if cost != 0.002 {
		t.Errorf("cost = %v, want 0.002", cost)
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	var first, second int
	obs := MultiObserver(
		func(Attempt) { first++ },
		nil,
		func(Attempt) { second++ },
	)

	obs(Attempt{Backend: "a"})
	obs(Attempt{Backend: "a"})

	if first != 2 || second != 2 {
		t.Errorf("fan-out counts = %d/%d, want 2/2", first, second)
	}
}
