// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"container/list"
	"context"
	"sync"
)

// CapacityQueue is the per-backend admission gate. It bounds in-flight calls
// at the configured max-concurrent value and holds the rolling submission
// rate inside the requests-per-minute budget. Saturated submission blocks the
// caller until a slot frees; nothing is dropped or reordered.
//
// Admission is strictly FIFO. A plain channel semaphore does not guarantee
// wakeup order among blocked senders, so waiters are queued explicitly.
type CapacityQueue struct {
	limiter MinuteLimiter // nil means no per-minute budget

	mu       sync.Mutex
	capacity int
	inFlight int
	waiters  *list.List // of chan struct{}, closed on grant
}

// NewCapacityQueue creates a queue for one backend. maxConcurrent must be
// positive. limiter may be nil.
func NewCapacityQueue(maxConcurrent int, limiter MinuteLimiter) *CapacityQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &CapacityQueue{
		limiter:  limiter,
		capacity: maxConcurrent,
		waiters:  list.New(),
	}
}

// Acquire admits one call, blocking while the queue is saturated or the
// per-minute budget is exhausted. The caller must Release exactly once after
// the call finishes. Returns the context error if ctx ends while waiting.
func (q *CapacityQueue) Acquire(ctx context.Context) error {
	if err := q.acquireSlot(ctx); err != nil {
		return err
	}

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			q.Release()
			return err
		}
	}
	return nil
}

func (q *CapacityQueue) acquireSlot(ctx context.Context) error {
	q.mu.Lock()
	if q.inFlight < q.capacity && q.waiters.Len() == 0 {
		q.inFlight++
		q.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := q.waiters.PushBack(ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		select {
		case <-ready:
			// Granted concurrently with cancellation; hand the slot on.
			q.releaseLocked()
		default:
			q.waiters.Remove(elem)
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns a slot, waking the oldest waiter if any.
func (q *CapacityQueue) Release() {
	q.mu.Lock()
	q.releaseLocked()
	q.mu.Unlock()
}

func (q *CapacityQueue) releaseLocked() {
	if front := q.waiters.Front(); front != nil {
		q.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	if q.inFlight > 0 {
		q.inFlight--
	}
}

// InFlight returns the number of admitted calls currently executing.
func (q *CapacityQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Waiting returns the number of callers blocked on admission.
func (q *CapacityQueue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

// Capacity returns the configured max-concurrent bound.
func (q *CapacityQueue) Capacity() int {
	return q.capacity
}
