// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for orchestrator traffic. Its
// Observe method satisfies the Observer signature, so wiring is one option:
//
//	m := llm.NewMetrics(prometheus.DefaultRegisterer)
//	orch := llm.NewOrchestrator(llm.WithObserver(m.Observe))
type Metrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors. Pass nil to skip
// registration, useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brightclass_llm_attempts_total",
				Help: "Total LLM backend attempts by backend, task and status",
			},
			[]string{"backend", "task", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brightclass_llm_attempt_duration_milliseconds",
				Help:    "Attempt duration in milliseconds",
				Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			},
			[]string{"backend", "task"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brightclass_llm_tokens_total",
				Help: "Total tokens processed by backend and direction",
			},
			[]string{"backend", "direction"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brightclass_llm_cost_usd_total",
				Help: "Accumulated estimated spend in USD by backend and model",
			},
			[]string{"backend", "model"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.attempts, m.latency, m.tokens, m.cost)
	}
	return m
}

// Observe records one attempt. Failed attempts carry the error kind as the
// status label; successes record "success" plus token and cost counters.
func (m *Metrics) Observe(a Attempt) {
	task := string(a.Task)

	if a.Err != nil {
		m.attempts.WithLabelValues(a.Backend, task, string(ErrorKindOf(a.Err))).Inc()
		m.latency.WithLabelValues(a.Backend, task).Observe(float64(a.Latency.Milliseconds()))
		return
	}

	m.attempts.WithLabelValues(a.Backend, task, "success").Inc()
	m.latency.WithLabelValues(a.Backend, task).Observe(float64(a.Latency.Milliseconds()))
	m.tokens.WithLabelValues(a.Backend, "input").Add(float64(a.Usage.InputTokens))
	m.tokens.WithLabelValues(a.Backend, "output").Add(float64(a.Usage.OutputTokens))
	if a.Usage.CostUSD > 0 {
		m.cost.WithLabelValues(a.Backend, a.Model).Add(a.Usage.CostUSD)
	}
}

// MultiObserver fans one attempt out to several observers in order.
func MultiObserver(observers ...Observer) Observer {
	return func(a Attempt) {
		for _, obs := range observers {
			if obs != nil {
				obs(a)
			}
		}
	}
}
