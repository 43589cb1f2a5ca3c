// Package dispatch implements the request dispatch path between caller
// goroutines and I/O workers.
// This file implements the bounded multi-producer/multi-consumer queue.
package dispatch

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity.
	// Push never blocks; backpressure is the caller's problem.
	ErrQueueFull = errors.New("dispatch: request queue full")

	// ErrQueueClosed is returned by Push after Close. No request is ever
	// silently dropped: items still queued at Close are handed back to the
	// closer for force-failing.
	ErrQueueClosed = errors.New("dispatch: request queue closed")
)

// Queue is a bounded MPMC queue of request handlers. Any number of caller
// goroutines push; any number of workers pop. Delivery is exactly-once per
// item: a popped handler is owned by exactly the worker that popped it.
//
// The body is a mutex-guarded ring buffer. Exactly-once delivery falls out
// of the mutual exclusion on head/count; no additional external locking is
// required by producers or consumers.
type Queue struct {
	mu     sync.Mutex
	items  []*RequestHandler
	head   int
	count  int
	closed bool
}

// NewQueue creates a queue with the given capacity. Capacity must be > 0.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic("dispatch: queue capacity must be positive")
	}
	return &Queue{items: make([]*RequestHandler, capacity)}
}

// Push appends h. Returns ErrQueueFull at capacity or ErrQueueClosed after
// Close. Never blocks.
func (q *Queue) Push(h *RequestHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.count == len(q.items) {
		return ErrQueueFull
	}
	q.items[(q.head+q.count)%len(q.items)] = h
	q.count++
	return nil
}

// Pop removes and returns the oldest handler. ok is false when the queue is
// empty (or closed and drained). Never blocks; consumers poll after a wake.
func (q *Queue) Pop() (h *RequestHandler, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}
	h = q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return h, true
}

// Close rejects further pushes and returns every handler still queued, in
// FIFO order, so the session can force-fail them instead of dropping them.
// Idempotent: later calls return nil.
func (q *Queue) Close() []*RequestHandler {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	remaining := make([]*RequestHandler, 0, q.count)
	for q.count > 0 {
		remaining = append(remaining, q.items[q.head])
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
		q.count--
	}
	return remaining
}

// Len returns the number of queued handlers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
