// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"database/sql"
	"log"
	"sync"

	"brightclass/platform/llm"
)

// CompletionEvent represents one LLM completion to be recorded, attributed
// to the caller (teacher or student account) and session that produced it.
type CompletionEvent struct {
	CallerID     string
	SessionID    string
	Task         string
	Backend      string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	LatencyMs    int64
	Status       string
}

// Recorder persists completion events to the database. Errors are logged
// but never block request paths.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a recorder with a database connection.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// RecordCompletion records one completion event.
func (r *Recorder) RecordCompletion(event CompletionEvent) error {
	costCents := CalculateCost(event.Model, event.InputTokens, event.OutputTokens)

	_, err := r.db.Exec(`
		INSERT INTO usage_events (
			caller_id, session_id, event_type, task, backend, model,
			input_tokens, output_tokens, total_tokens, cost_hundredths_cent,
			latency_ms, status
		) VALUES ($1, $2, 'llm_completion', $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, nullString(event.CallerID), nullString(event.SessionID), event.Task,
		event.Backend, event.Model, event.InputTokens, event.OutputTokens,
		event.TotalTokens, costCents, event.LatencyMs, event.Status)

	if err != nil {
		log.Printf("[USAGE] Failed to record completion: %v", err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CallerTotals aggregates spend for one caller.
type CallerTotals struct {
	Requests           int
	TotalTokens        int
	CostHundredthsCent int
}

// Tracker keeps in-memory per-caller spend totals, the source for budget
// checks during a school day. Reset it on the billing boundary.
type Tracker struct {
	mu     sync.RWMutex
	totals map[string]*CallerTotals
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{totals: make(map[string]*CallerTotals)}
}

// Add records one completion against a caller.
func (t *Tracker) Add(callerID, model string, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	totals, ok := t.totals[callerID]
	if !ok {
		totals = &CallerTotals{}
		t.totals[callerID] = totals
	}
	totals.Requests++
	totals.TotalTokens += inputTokens + outputTokens
	totals.CostHundredthsCent += CalculateCost(model, inputTokens, outputTokens)
}

// Totals returns a copy of the totals for a caller.
func (t *Tracker) Totals(callerID string) CallerTotals {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if totals, ok := t.totals[callerID]; ok {
		return *totals
	}
	return CallerTotals{}
}

// Reset clears all totals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = make(map[string]*CallerTotals)
}

// ObserverFor returns an llm.Observer that feeds successful attempts into
// the tracker. The caller identity travels in request metadata, which the
// orchestrator does not carry into attempts, so the adapter closes over a
// resolver mapping request IDs to callers.
func (t *Tracker) ObserverFor(callerOf func(requestID string) string) llm.Observer {
	return func(a llm.Attempt) {
		if a.Err != nil {
			return
		}
		callerID := callerOf(a.RequestID)
		if callerID == "" {
			return
		}
		t.Add(callerID, a.Model, a.Usage.InputTokens, a.Usage.OutputTokens)
	}
}
