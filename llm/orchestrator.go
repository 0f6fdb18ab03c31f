// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Attempt describes one execution attempt against one backend, successful or
// not. Observers receive it synchronously after the health record updates.
type Attempt struct {
	RequestID string
	Backend   string
	Model     string
	Task      TaskCategory
	Latency   time.Duration
	Usage     Usage
	Err       error
	Streamed  bool
	Timestamp time.Time
}

// Observer is invoked synchronously after every attempt. It replaces
// event-bus style emission: no listener registration order to reason about,
// one callback wired in at construction.
type Observer func(a Attempt)

// LimiterFactory builds the per-minute limiter for a backend at registration.
// The default uses the in-process token bucket; deployments with multiple
// replicas can supply a Redis-backed factory.
type LimiterFactory func(cfg *BackendConfig) MinuteLimiter

// backendEntry bundles everything the orchestrator owns per backend. The
// queue and tracker are the only shared-state boundaries; each is owned
// entirely by its entry.
type backendEntry struct {
	backend Backend
	config  *BackendConfig
	queue   *CapacityQueue
	tracker *HealthTracker
}

// Orchestrator is the public entry point of the routing layer. It owns the
// backend table keyed by identifier, constructed at startup; the table is
// passed by reference to every component that needs it, there is no global
// registry.
type Orchestrator struct {
	mu      sync.RWMutex
	entries map[string]*backendEntry
	order   []string // registration order, the universal tie-break

	strategy    Strategy
	failover    []string
	observer    Observer
	limiters    LimiterFactory
	logger      *log.Logger
	cancelProbe context.CancelFunc
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStrategy sets the active routing strategy. One strategy per
// orchestrator instance; the default is round-robin.
func WithStrategy(s Strategy) Option {
	return func(o *Orchestrator) {
		o.strategy = s
	}
}

// WithFailoverChain sets the ordered failover list walked after the primary
// pick exhausts its retries.
func WithFailoverChain(names []string) Option {
	return func(o *Orchestrator) {
		o.failover = names
	}
}

// WithObserver sets the attempt observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithLimiterFactory overrides how per-minute limiters are built.
func WithLimiterFactory(f LimiterFactory) Option {
	return func(o *Orchestrator) {
		o.limiters = f
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator creates an orchestrator with the given options.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		entries: make(map[string]*backendEntry),
		logger:  log.New(os.Stdout, "[ORCHESTRATOR] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.strategy == nil {
		o.strategy = NewRoundRobinStrategy()
	}
	if o.limiters == nil {
		o.limiters = func(cfg *BackendConfig) MinuteLimiter {
			if cfg.RequestsPerMinute <= 0 {
				return nil
			}
			return NewMinuteRateLimiter(cfg.RequestsPerMinute)
		}
	}
	return o
}

// Register adds a backend with its configuration, initializing the adapter.
// An authentication failure during Initialize fails registration.
func (o *Orchestrator) Register(ctx context.Context, backend Backend, cfg BackendConfig) error {
	if backend == nil {
		return fmt.Errorf("backend cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Name != backend.Name() {
		return fmt.Errorf("config name %q does not match backend name %q", cfg.Name, backend.Name())
	}

	if err := backend.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing backend %q: %w", cfg.Name, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.entries[cfg.Name]; exists {
		return fmt.Errorf("backend %q already registered", cfg.Name)
	}

	cfgCopy := cfg
	o.entries[cfg.Name] = &backendEntry{
		backend: backend,
		config:  &cfgCopy,
		queue:   NewCapacityQueue(cfgCopy.MaxConcurrent, o.limiters(&cfgCopy)),
		tracker: NewHealthTracker(backend),
	}
	o.order = append(o.order, cfg.Name)

	o.logger.Printf("Registered backend %s (type: %s, tasks: %v)", cfg.Name, cfg.Type, cfg.Tasks)
	return nil
}

// Deregister removes a backend, disposing the adapter. Its health record is
// destroyed with it.
func (o *Orchestrator) Deregister(name string) error {
	o.mu.Lock()
	entry, exists := o.entries[name]
	if !exists {
		o.mu.Unlock()
		return fmt.Errorf("backend %q not registered", name)
	}
	delete(o.entries, name)
	for i, n := range o.order {
		if n == name {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	if err := entry.backend.Dispose(); err != nil {
		o.logger.Printf("Warning: disposing backend %s: %v", name, err)
	}
	o.logger.Printf("Deregistered backend %s", name)
	return nil
}

// Backends returns the registered backend names in registration order.
func (o *Orchestrator) Backends() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, len(o.order))
	copy(names, o.order)
	return names
}

// Snapshot returns read-only health record copies for every backend, the
// boundary consumed by external monitoring collectors.
func (o *Orchestrator) Snapshot() map[string]HealthRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	records := make(map[string]HealthRecord, len(o.entries))
	for name, entry := range o.entries {
		records[name] = entry.tracker.Snapshot()
	}
	return records
}

// eligible returns candidates supporting the task whose health is not
// unhealthy, in registration order.
func (o *Orchestrator) eligible(task TaskCategory) []Candidate {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []Candidate
	for _, name := range o.order {
		entry := o.entries[name]
		if !entry.config.Enabled || !entry.config.SupportsTask(task) {
			continue
		}
		record := entry.tracker.Snapshot()
		if record.Status == HealthStatusUnhealthy {
			continue
		}
		out = append(out, Candidate{
			Backend: entry.backend,
			Config:  entry.config,
			Health:  record,
		})
	}
	return out
}

func (o *Orchestrator) entry(name string) *backendEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entries[name]
}

// GenerateCompletion executes one buffered completion: eligibility filter,
// strategy pick, capacity-queue submission wrapped in a timeout and a retry
// loop, then the ordered failover chain on exhaustion. Every attempt updates
// the backend's health record before the call returns or retries.
func (o *Orchestrator) GenerateCompletion(ctx context.Context, req Request) (*Response, error) {
	candidates := o.eligible(req.Task)
	if len(candidates) == 0 {
		return nil, NewBackendError("", ErrKindUnavailable,
			fmt.Sprintf("no backend available for task %q", req.Task))
	}

	primary := o.strategy.Select(candidates, req)
	if primary == nil {
		return nil, NewBackendError("", ErrKindUnavailable,
			fmt.Sprintf("strategy %s selected no backend for task %q", o.strategy.Name(), req.Task))
	}

	var lastErr error
	tried := make(map[string]bool)

	for _, name := range o.attemptChain(primary.Backend.Name(), req.Task) {
		if tried[name] {
			continue
		}
		tried[name] = true

		entry := o.entry(name)
		if entry == nil {
			continue
		}

		resp, err := o.executeWithRetry(ctx, entry, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryableAcrossBackends(err) {
			return nil, err
		}
		o.logger.Printf("Backend %s failed for request %s: %v", name, req.ID, err)
	}

	return nil, lastErr
}

// attemptChain returns the primary pick followed by the configured failover
// list, filtered to backends that support the task and are not unhealthy.
func (o *Orchestrator) attemptChain(primary string, task TaskCategory) []string {
	chain := []string{primary}
	for _, name := range o.failover {
		if name == primary {
			continue
		}
		entry := o.entry(name)
		if entry == nil || !entry.config.Enabled || !entry.config.SupportsTask(task) {
			continue
		}
		if entry.tracker.Status() == HealthStatusUnhealthy {
			continue
		}
		chain = append(chain, name)
	}
	return chain
}

// retryableAcrossBackends reports whether failover to another backend makes
// sense for this error. Caller mistakes and credential problems surface
// immediately; retrying them elsewhere cannot help.
func retryableAcrossBackends(err error) bool {
	switch ErrorKindOf(err) {
	case ErrKindInvalidRequest, ErrKindAuthFailed, ErrKindContentFiltered:
		return false
	default:
		return true
	}
}

// executeWithRetry runs the retry loop for one backend.
func (o *Orchestrator) executeWithRetry(ctx context.Context, entry *backendEntry, req Request) (*Response, error) {
	retries := entry.config.MaxRetries
	if req.Options.MaxRetries != nil {
		retries = *req.Options.MaxRetries
	}

	config := DefaultRetryConfig()
	config.MaxRetries = retries

	return RetryWithBackoff(ctx, config, func(ctx context.Context) (*Response, error) {
		return o.executeOnce(ctx, entry, req)
	})
}

// executeOnce performs exactly one attempt: queue admission, timeout-bounded
// adapter round trip, health bookkeeping, observer notification.
func (o *Orchestrator) executeOnce(ctx context.Context, entry *backendEntry, req Request) (*Response, error) {
	name := entry.backend.Name()

	if err := entry.queue.Acquire(ctx); err != nil {
		return nil, WrapBackendError(name, err)
	}
	defer entry.queue.Release()

	timeout := entry.config.Timeout
	if req.Options.Timeout > 0 {
		timeout = req.Options.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := entry.backend.Complete(attemptCtx, req)
	latency := time.Since(start)

	if err != nil {
		berr := WrapBackendError(name, err)
		if attemptCtx.Err() == context.DeadlineExceeded {
			berr.Kind = ErrKindTimeout
		}
		entry.tracker.RecordFailure(berr)
		o.notify(Attempt{
			RequestID: req.ID,
			Backend:   name,
			Task:      req.Task,
			Latency:   latency,
			Err:       berr,
			Timestamp: time.Now(),
		})
		return nil, berr
	}

	o.finalize(resp, entry, req, latency)
	entry.tracker.RecordSuccess(latency, resp.Usage)
	o.notify(Attempt{
		RequestID: req.ID,
		Backend:   name,
		Model:     resp.Model,
		Task:      req.Task,
		Latency:   latency,
		Usage:     resp.Usage,
		Timestamp: time.Now(),
	})
	return resp, nil
}

// finalize stamps orchestration-level response fields and computes cost from
// the configured cost table when the adapter left it zero.
func (o *Orchestrator) finalize(resp *Response, entry *backendEntry, req Request, latency time.Duration) {
	resp.RequestID = req.ID
	resp.Backend = entry.backend.Name()
	if resp.Metadata.Latency == 0 {
		resp.Metadata.Latency = latency
	}
	if resp.Metadata.CompletedAt.IsZero() {
		resp.Metadata.CompletedAt = time.Now()
	}
	if resp.Usage.CostUSD == 0 {
		cost := entry.config.CostFor(resp.Model)
		resp.Usage.CostUSD = float64(resp.Usage.InputTokens)/1000.0*cost.InputPer1K +
			float64(resp.Usage.OutputTokens)/1000.0*cost.OutputPer1K
	}
}

func (o *Orchestrator) notify(a Attempt) {
	if o.observer != nil {
		o.observer(a)
	}
}

// GenerateStream executes one streamed completion with the same eligibility,
// selection and failover steps as GenerateCompletion. Failover happens only
// while no partial has reached the caller: once content has started flowing,
// switching backends would corrupt the output, so a mid-stream failure is
// surfaced as an error instead.
func (o *Orchestrator) GenerateStream(ctx context.Context, req Request, handler StreamHandler) (*Response, error) {
	candidates := o.eligible(req.Task)
	if len(candidates) == 0 {
		return nil, NewBackendError("", ErrKindUnavailable,
			fmt.Sprintf("no backend available for task %q", req.Task))
	}

	primary := o.strategy.Select(candidates, req)
	if primary == nil {
		return nil, NewBackendError("", ErrKindUnavailable,
			fmt.Sprintf("strategy %s selected no backend for task %q", o.strategy.Name(), req.Task))
	}

	var lastErr error
	tried := make(map[string]bool)

	for _, name := range o.attemptChain(primary.Backend.Name(), req.Task) {
		if tried[name] {
			continue
		}
		tried[name] = true

		entry := o.entry(name)
		if entry == nil {
			continue
		}

		delivered := false
		wrapped := func(partial *Response) error {
			partial.RequestID = req.ID
			partial.Backend = name
			delivered = true
			return handler(partial)
		}

		resp, err := o.streamOnce(ctx, entry, req, wrapped)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if delivered || !retryableAcrossBackends(err) {
			return nil, err
		}
		o.logger.Printf("Backend %s stream failed before first chunk for request %s: %v", name, req.ID, err)
	}

	return nil, lastErr
}

// streamOnce performs one streamed attempt through the backend's queue.
func (o *Orchestrator) streamOnce(ctx context.Context, entry *backendEntry, req Request, handler StreamHandler) (*Response, error) {
	name := entry.backend.Name()

	if err := entry.queue.Acquire(ctx); err != nil {
		return nil, WrapBackendError(name, err)
	}
	defer entry.queue.Release()

	timeout := entry.config.Timeout
	if req.Options.Timeout > 0 {
		timeout = req.Options.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := entry.backend.CompleteStream(attemptCtx, req, handler)
	latency := time.Since(start)

	if err != nil {
		berr := WrapBackendError(name, err)
		if attemptCtx.Err() == context.DeadlineExceeded {
			berr.Kind = ErrKindTimeout
		}
		entry.tracker.RecordFailure(berr)
		o.notify(Attempt{
			RequestID: req.ID,
			Backend:   name,
			Task:      req.Task,
			Latency:   latency,
			Err:       berr,
			Streamed:  true,
			Timestamp: time.Now(),
		})
		return nil, berr
	}

	o.finalize(resp, entry, req, latency)
	entry.tracker.RecordSuccess(latency, resp.Usage)
	o.notify(Attempt{
		RequestID: req.ID,
		Backend:   name,
		Model:     resp.Model,
		Task:      req.Task,
		Latency:   latency,
		Usage:     resp.Usage,
		Streamed:  true,
		Timestamp: time.Now(),
	})
	return resp, nil
}

// StartHealthProbes launches one probe loop per backend on its configured
// interval. Probes run independently of request traffic and never block it.
func (o *Orchestrator) StartHealthProbes(ctx context.Context) {
	probeCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelProbe = cancel
	names := make([]string, len(o.order))
	copy(names, o.order)
	o.mu.Unlock()

	for _, name := range names {
		entry := o.entry(name)
		if entry == nil {
			continue
		}
		go o.probeLoop(probeCtx, entry)
	}
}

func (o *Orchestrator) probeLoop(ctx context.Context, entry *backendEntry) {
	ticker := time.NewTicker(entry.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, entry.config.ProbeTimeout)
			status := entry.tracker.ProbeNow(probeCtx)
			cancel()
			if status != HealthStatusHealthy {
				o.logger.Printf("Health probe: backend %s is %s", entry.backend.Name(), status)
			}
		}
	}
}

// ProbeAll runs one probe round across every backend immediately.
func (o *Orchestrator) ProbeAll(ctx context.Context) map[string]HealthStatus {
	o.mu.RLock()
	entries := make(map[string]*backendEntry, len(o.entries))
	for name, e := range o.entries {
		entries[name] = e
	}
	o.mu.RUnlock()

	results := make(map[string]HealthStatus, len(entries))
	for name, entry := range entries {
		probeCtx, cancel := context.WithTimeout(ctx, entry.config.ProbeTimeout)
		results[name] = entry.tracker.ProbeNow(probeCtx)
		cancel()
	}
	return results
}

// Close stops health probes and disposes every backend.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.cancelProbe != nil {
		o.cancelProbe()
		o.cancelProbe = nil
	}
	entries := make([]*backendEntry, 0, len(o.entries))
	for _, e := range o.entries {
		entries = append(entries, e)
	}
	o.entries = make(map[string]*backendEntry)
	o.order = nil
	o.mu.Unlock()

	for _, entry := range entries {
		if err := entry.backend.Dispose(); err != nil {
			o.logger.Printf("Warning: disposing backend %s: %v", entry.backend.Name(), err)
		}
	}
	return nil
}
