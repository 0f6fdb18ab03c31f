// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// StrategyName identifies a routing strategy.
type StrategyName string

const (
	// StrategyRoundRobin cycles through eligible backends in registration
	// order.
	StrategyRoundRobin StrategyName = "round_robin"

	// StrategyCostOptimized picks the lowest estimated cost.
	StrategyCostOptimized StrategyName = "cost_optimized"

	// StrategyPerformance picks the lowest observed latency.
	StrategyPerformance StrategyName = "performance"

	// StrategyWeighted draws proportionally to configured priority weights.
	StrategyWeighted StrategyName = "weighted"
)

// ValidStrategyNames contains all selectable strategy names.
var ValidStrategyNames = []StrategyName{
	StrategyRoundRobin,
	StrategyCostOptimized,
	StrategyPerformance,
	StrategyWeighted,
}

// IsValidStrategyName checks if a string names a known strategy.
func IsValidStrategyName(s string) bool {
	for _, valid := range ValidStrategyNames {
		if StrategyName(s) == valid {
			return true
		}
	}
	return false
}

// Candidate is one eligible backend presented to a strategy. Candidates are
// always ordered by registration order, which doubles as the tie-break.
type Candidate struct {
	Backend Backend
	Config  *BackendConfig
	Health  HealthRecord
}

// Strategy selects one backend from the eligible set. Implementations return
// nil (never panic or error) when the set is empty; the orchestrator
// interprets nil as "no provider available". One strategy instance is active
// per orchestrator, selected at construction, not per call.
type Strategy interface {
	Name() StrategyName
	Select(candidates []Candidate, req Request) *Candidate
}

// NewStrategy constructs the named strategy, defaulting to round-robin for
// unknown names.
func NewStrategy(name StrategyName) Strategy {
	switch name {
	case StrategyCostOptimized:
		return NewCostOptimizedStrategy()
	case StrategyPerformance:
		return NewPerformanceStrategy()
	case StrategyWeighted:
		return NewWeightedStrategy(nil)
	default:
		return NewRoundRobinStrategy()
	}
}

// RoundRobinStrategy cycles through eligible backends. One atomic counter is
// shared across calls, so N selections over K stable candidates distribute
// exactly evenly.
type RoundRobinStrategy struct {
	counter uint64
}

// NewRoundRobinStrategy creates a round-robin strategy.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// Name returns the strategy name.
func (s *RoundRobinStrategy) Name() StrategyName { return StrategyRoundRobin }

// Select returns the next candidate in rotation.
func (s *RoundRobinStrategy) Select(candidates []Candidate, _ Request) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	index := atomic.AddUint64(&s.counter, 1) - 1
	return &candidates[int(index)%len(candidates)]
}

// CostOptimizedStrategy picks the candidate with the lowest estimated cost
// for the request; ties break by registration order.
type CostOptimizedStrategy struct{}

// NewCostOptimizedStrategy creates a cost-optimized strategy.
func NewCostOptimizedStrategy() *CostOptimizedStrategy {
	return &CostOptimizedStrategy{}
}

// Name returns the strategy name.
func (s *CostOptimizedStrategy) Name() StrategyName { return StrategyCostOptimized }

// Select returns the cheapest candidate.
func (s *CostOptimizedStrategy) Select(candidates []Candidate, req Request) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := &candidates[0]
	bestCost := best.Backend.EstimateCost(req)
	for i := 1; i < len(candidates); i++ {
		cost := candidates[i].Backend.EstimateCost(req)
		if cost < bestCost {
			best = &candidates[i]
			bestCost = cost
		}
	}
	return best
}

// PerformanceStrategy picks the candidate with the lowest observed average
// latency. A candidate with no recorded latency yet is treated as better
// than any candidate with one, so never-tried backends get explored first.
// Ties break by registration order.
type PerformanceStrategy struct{}

// NewPerformanceStrategy creates a performance-based strategy.
func NewPerformanceStrategy() *PerformanceStrategy {
	return &PerformanceStrategy{}
}

// Name returns the strategy name.
func (s *PerformanceStrategy) Name() StrategyName { return StrategyPerformance }

// Select returns the fastest (or least proven) candidate.
func (s *PerformanceStrategy) Select(candidates []Candidate, _ Request) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		if betterLatency(c.Health, best.Health) {
			best = c
		}
	}
	return best
}

// betterLatency reports whether a beats b. Unmeasured beats measured;
// between two unmeasured candidates the earlier registration wins.
func betterLatency(a, b HealthRecord) bool {
	aMeasured := a.SuccessfulRequests > 0
	bMeasured := b.SuccessfulRequests > 0
	switch {
	case !aMeasured && bMeasured:
		return true
	case aMeasured && !bMeasured:
		return false
	case !aMeasured && !bMeasured:
		return false
	default:
		return a.AvgLatency < b.AvgLatency
	}
}

// WeightedStrategy draws one random number per call against the cumulative
// configured weights, optionally scaled by an external weight map.
type WeightedStrategy struct {
	overrides map[string]float64

	random *rand.Rand
	mu     sync.Mutex
}

// NewWeightedStrategy creates a weighted strategy. overrides maps backend
// name to a multiplier applied on top of the configured weight; missing
// entries multiply by 1.
func NewWeightedStrategy(overrides map[string]float64) *WeightedStrategy {
	return &WeightedStrategy{
		overrides: overrides,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the strategy name.
func (s *WeightedStrategy) Name() StrategyName { return StrategyWeighted }

// Select performs one cumulative-weight draw.
func (s *WeightedStrategy) Select(candidates []Candidate, _ Request) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	total := 0.0
	weights := make([]float64, len(candidates))
	for i := range candidates {
		weights[i] = s.effectiveWeight(&candidates[i])
		total += weights[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if total <= 0 {
		return &candidates[s.random.Intn(len(candidates))]
	}

	r := s.random.Float64() * total
	for i := range candidates {
		r -= weights[i]
		if r <= 0 {
			return &candidates[i]
		}
	}
	return &candidates[0]
}

func (s *WeightedStrategy) effectiveWeight(c *Candidate) float64 {
	w := float64(c.Config.Weight)
	if mult, ok := s.overrides[c.Backend.Name()]; ok {
		w *= mult
	}
	if w < 0 {
		w = 0
	}
	return w
}
