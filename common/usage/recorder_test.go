// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightclass/platform/llm"
)

func TestRecordCompletion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 1000 input + 1000 output sonnet tokens cost 1800 hundredths of a cent.
	mock.ExpectExec("INSERT INTO usage_events").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "grading", "anthropic-primary",
			"claude-3-5-sonnet-20241022", 1000, 1000, 2000, 1800, int64(420), "success").
		WillReturnResult(sqlmock.NewResult(1, 1))

	recorder := NewRecorder(db)
	err = recorder.RecordCompletion(CompletionEvent{
		CallerID:     "teacher-42",
		SessionID:    "sess-7",
		Task:         "grading",
		Backend:      "anthropic-primary",
		Model:        "claude-3-5-sonnet-20241022",
		InputTokens:  1000,
		OutputTokens: 1000,
		TotalTokens:  2000,
		LatencyMs:    420,
		Status:       "success",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionSurfacesDBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO usage_events").
		WillReturnError(assert.AnError)

	recorder := NewRecorder(db)
	err = recorder.RecordCompletion(CompletionEvent{Task: "grading", Status: "success"})
	require.Error(t, err)
}

func TestTrackerAccumulatesPerCaller(t *testing.T) {
	tracker := NewTracker()

	tracker.Add("teacher-1", "claude-3-5-sonnet-20241022", 1000, 1000)
	tracker.Add("teacher-1", "claude-3-5-sonnet-20241022", 500, 500)
	tracker.Add("student-9", "gpt-4o-mini", 100, 100)

	t1 := tracker.Totals("teacher-1")
	assert.Equal(t, 2, t1.Requests)
	assert.Equal(t, 3000, t1.TotalTokens)
	assert.Equal(t, 1800+900, t1.CostHundredthsCent)

	s9 := tracker.Totals("student-9")
	assert.Equal(t, 1, s9.Requests)

	assert.Equal(t, CallerTotals{}, tracker.Totals("nobody"))

	tracker.Reset()
	assert.Equal(t, CallerTotals{}, tracker.Totals("teacher-1"))
}

func TestTrackerObserver(t *testing.T) {
	tracker := NewTracker()
	callers := map[string]string{"req-1": "teacher-1"}

	observe := tracker.ObserverFor(func(requestID string) string {
		return callers[requestID]
	})

	observe(llm.Attempt{
		RequestID: "req-1",
		Model:     "gpt-4o-mini",
		Usage:     llm.Usage{InputTokens: 100, OutputTokens: 50},
	})
	// Failed attempts and unknown callers are ignored.
	observe(llm.Attempt{
		RequestID: "req-1",
		Model:     "gpt-4o-mini",
		Err:       llm.NewBackendError("a", llm.ErrKindUnavailable, "down"),
	})
	observe(llm.Attempt{RequestID: "req-unknown", Model: "gpt-4o-mini"})

	totals := tracker.Totals("teacher-1")
	assert.Equal(t, 1, totals.Requests)
	assert.Equal(t, 150, totals.TotalTokens)
}
