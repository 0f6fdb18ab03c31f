// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync"
	"time"
)

// Error-rate thresholds driving health transitions. Below the low threshold a
// successful probe restores healthy; above the high threshold the tracker
// forces degraded between probes.
const (
	lowErrorRateThreshold  = 0.05
	highErrorRateThreshold = 0.25
)

// HealthTracker keeps the rolling counters and derived status for one
// backend. It is the single writer for that backend's HealthRecord; the
// strategies and the orchestrator's eligibility filter read snapshots.
//
// Two independent signals drive the {healthy, degraded, unhealthy} machine:
// the periodic active probe and passive per-attempt observation. A failed
// probe sets unhealthy immediately. Recovery always passes through degraded:
// one successful probe after unhealthy upgrades only to degraded, and the
// final upgrade to healthy is gated on the rolling error rate, so a single
// lucky probe cannot mask a persistently flaky backend.
type HealthTracker struct {
	backend Backend

	mu     sync.Mutex
	record HealthRecord

	latencySum time.Duration
}

// NewHealthTracker creates a tracker for the given backend. The initial
// status is healthy so a freshly registered backend is routable before its
// first probe completes.
func NewHealthTracker(backend Backend) *HealthTracker {
	return &HealthTracker{
		backend: backend,
		record: HealthRecord{
			Backend: backend.Name(),
			Status:  HealthStatusHealthy,
		},
	}
}

// RecordSuccess observes one successful attempt.
func (t *HealthTracker) RecordSuccess(latency time.Duration, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record.TotalRequests++
	t.record.SuccessfulRequests++
	t.latencySum += latency
	t.record.AvgLatency = t.latencySum / time.Duration(t.record.SuccessfulRequests)
	t.record.TokensProcessed += int64(usage.TotalTokens)
	t.record.TotalCostUSD += usage.CostUSD

	t.recalculateLocked()
}

// RecordFailure observes one failed attempt.
func (t *HealthTracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record.TotalRequests++
	t.record.FailedRequests++
	if err != nil {
		t.record.LastError = err.Error()
	}

	t.recalculateLocked()

	// Passive signal: an elevated error rate forces degraded even between
	// probes. It never upgrades, and never overrides unhealthy.
	if t.record.Status == HealthStatusHealthy && t.record.ErrorRate > highErrorRateThreshold {
		t.record.Status = HealthStatusDegraded
	}
}

// recalculateLocked refreshes derived rates. Caller holds the lock.
func (t *HealthTracker) recalculateLocked() {
	if t.record.TotalRequests > 0 {
		t.record.ErrorRate = float64(t.record.FailedRequests) / float64(t.record.TotalRequests)
		t.record.Availability = float64(t.record.SuccessfulRequests) / float64(t.record.TotalRequests)
	}
}

// ProbeNow performs one active probe round trip and applies the result.
func (t *HealthTracker) ProbeNow(ctx context.Context) HealthStatus {
	start := time.Now()
	err := t.backend.HealthProbe(ctx)
	latency := time.Since(start)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.record.LastProbe = time.Now()
	t.record.LastProbeLatency = latency

	if err != nil {
		t.record.ConsecutiveFailures++
		t.record.Status = HealthStatusUnhealthy
		t.record.LastError = err.Error()
		return t.record.Status
	}

	t.record.ConsecutiveFailures = 0
	switch {
	case t.record.Status == HealthStatusUnhealthy:
		// First success after unhealthy: degraded only. The error-rate
		// gate below decides the final upgrade on a later probe.
		t.record.Status = HealthStatusDegraded
	case t.record.ErrorRate < lowErrorRateThreshold:
		t.record.Status = HealthStatusHealthy
	default:
		t.record.Status = HealthStatusDegraded
	}
	return t.record.Status
}

// Snapshot returns a read-only copy of the health record.
func (t *HealthTracker) Snapshot() HealthRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record
}

// Status returns the current derived status.
func (t *HealthTracker) Status() HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.Status
}
