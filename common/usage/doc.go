// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

/*
Package usage provides LLM spend metering for BrightClass.

# Overview

The usage package records completion events to PostgreSQL for billing and
reporting, and keeps in-memory per-caller totals for budget checks. Costs
are computed from a central per-model pricing table, stored as integer
hundredths of a cent to avoid floating point drift in billing sums.

# Recording

Create a recorder with a database connection:

	recorder := usage.NewRecorder(db)

	err := recorder.RecordCompletion(usage.CompletionEvent{
	    CallerID:     "teacher-4821",
	    SessionID:    "session-77",
	    Task:         "grading",
	    Backend:      "anthropic-primary",
	    Model:        "claude-3-5-sonnet-20241022",
	    InputTokens:  1200,
	    OutputTokens: 400,
	    TotalTokens:  1600,
	    LatencyMs:    910,
	    Status:       "success",
	})

For live budget tracking, attach a Tracker to the orchestrator as an
observer via ObserverFor.
*/
package usage
