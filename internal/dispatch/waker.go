// Package dispatch implements the request dispatch path between caller
// goroutines and I/O workers.
// This file implements the cross-thread wake primitive bound to each
// worker's loop.
package dispatch

// Waker is a coalescing wake signal for one consumer loop. Producers call
// Signal after pushing work; the consumer selects on C and drains the
// shared queue when woken.
//
// Signals coalesce: any number of Signal calls while the consumer is busy
// collapse into a single pending wake. That is sufficient because a woken
// consumer drains the queue until empty, so one pending wake covers every
// item pushed before the drain finishes.
type Waker struct {
	ch chan struct{}
}

// NewWaker creates a waker with one pending-signal slot.
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Signal wakes the consumer. Never blocks; redundant signals are dropped.
func (w *Waker) Signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the consumer loop selects on.
func (w *Waker) C() <-chan struct{} {
	return w.ch
}
