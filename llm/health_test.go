// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHealthTrackerStartsHealthy(t *testing.T) {
	tracker := NewHealthTracker(newFakeBackend("a"))
	if got := tracker.Status(); got != HealthStatusHealthy {
		t.Errorf("initial status = %s, want %s", got, HealthStatusHealthy)
	}
}

func TestHealthTrackerProbeFailureIsImmediatelyUnhealthy(t *testing.T) {
	backend := newFakeBackend("a")
	backend.probeErr = errors.New("connection refused")
	tracker := NewHealthTracker(backend)

	if got := tracker.ProbeNow(context.Background()); got != HealthStatusUnhealthy {
		t.Errorf("status after failed probe = %s, want %s", got, HealthStatusUnhealthy)
	}

	rec := tracker.Snapshot()
	if rec.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", rec.ConsecutiveFailures)
	}
	if rec.LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestHealthTrackerThreeConsecutiveProbeFailures(t *testing.T) {
	backend := newFakeBackend("a")
	backend.probeErr = errors.New("timeout")
	tracker := NewHealthTracker(backend)

	for i := 0; i < 3; i++ {
		tracker.ProbeNow(context.Background())
	}

	rec := tracker.Snapshot()
	if rec.Status != HealthStatusUnhealthy {
		t.Errorf("status = %s, want %s", rec.Status, HealthStatusUnhealthy)
	}
	if rec.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", rec.ConsecutiveFailures)
	}
}

func TestHealthTrackerRecoveryPassesThroughDegraded(t *testing.T) {
	backend := newFakeBackend("a")
	backend.probeErr = errors.New("down")
	tracker := NewHealthTracker(backend)

	tracker.ProbeNow(context.Background())
	if tracker.Status() != HealthStatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", tracker.Status())
	}

	// First success never jumps straight back to healthy.
	backend.probeErr = nil
	if got := tracker.ProbeNow(context.Background()); got != HealthStatusDegraded {
		t.Errorf("status after first recovery probe = %s, want %s", got, HealthStatusDegraded)
	}

	// Second success with a clean error rate completes the recovery.
	if got := tracker.ProbeNow(context.Background()); got != HealthStatusHealthy {
		t.Errorf("status after second recovery probe = %s, want %s", got, HealthStatusHealthy)
	}
}

func TestHealthTrackerErrorRateGatesHealthy(t *testing.T) {
	backend := newFakeBackend("a")
	tracker := NewHealthTracker(backend)

	// 1 failure in 10 requests: 10% error rate, above the 5% gate.
	for i := 0; i < 9; i++ {
		tracker.RecordSuccess(time.Millisecond, Usage{TotalTokens: 10})
	}
	tracker.RecordFailure(errors.New("boom"))

	if got := tracker.ProbeNow(context.Background()); got != HealthStatusDegraded {
		t.Errorf("status with 10%% error rate = %s, want %s", got, HealthStatusDegraded)
	}

	// Dilute below 5% and the next probe restores healthy.
	for i := 0; i < 15; i++ {
		tracker.RecordSuccess(time.Millisecond, Usage{TotalTokens: 10})
	}
	if got := tracker.ProbeNow(context.Background()); got != HealthStatusHealthy {
		t.Errorf("status with diluted error rate = %s, want %s", got, HealthStatusHealthy)
	}
}

func TestHealthTrackerPassiveDegradeOnHighErrorRate(t *testing.T) {
	tracker := NewHealthTracker(newFakeBackend("a"))

	tracker.RecordSuccess(time.Millisecond, Usage{})
	tracker.RecordFailure(errors.New("err 1"))
	if tracker.Status() != HealthStatusDegraded {
		t.Errorf("status with 50%% error rate = %s, want %s", tracker.Status(), HealthStatusDegraded)
	}
}

func TestHealthTrackerCountersAccumulate(t *testing.T) {
	tracker := NewHealthTracker(newFakeBackend("a"))

	tracker.RecordSuccess(100*time.Millisecond, Usage{TotalTokens: 100, CostUSD: 0.01})
	tracker.RecordSuccess(200*time.Millisecond, Usage{TotalTokens: 50, CostUSD: 0.005})
	tracker.RecordFailure(errors.New("oops"))

	rec := tracker.Snapshot()
	if rec.TotalRequests != 3 || rec.SuccessfulRequests != 2 || rec.FailedRequests != 1 {
		t.Errorf("counters = %d/%d/%d, want 3/2/1",
			rec.TotalRequests, rec.SuccessfulRequests, rec.FailedRequests)
	}
	if rec.AvgLatency != 150*time.Millisecond {
		t.Errorf("AvgLatency = %s, want 150ms", rec.AvgLatency)
	}
	if rec.TokensProcessed != 150 {
		t.Errorf("TokensProcessed = %d, want 150", rec.TokensProcessed)
	}
	if diff := rec.TotalCostUSD - 0.015; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCostUSD = %f, want 0.015", rec.TotalCostUSD)
	}
}
