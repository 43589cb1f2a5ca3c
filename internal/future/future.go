// Package future provides the one-shot completion primitive used to bridge
// asynchronous session-internal state changes to blocking caller-visible results.
package future

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ErrAlreadyResolved is returned when a producer attempts to resolve a
// future that has already been resolved. The first resolution always wins;
// a second attempt never overwrites it.
var ErrAlreadyResolved = errors.New("future: already resolved")

// Future is a one-shot result cell shared between one producer and any
// number of blocking waiters.
//
// Lifecycle:
//
//	pending ──Resolve──▶ resolved-ok
//	   └───────Fail────▶ resolved-error
//
// Resolution is one-shot: exactly one of Resolve or Fail takes effect, and
// every current and later waiter observes the same outcome. The broadcast is
// a closed channel, so waiters that arrive after resolution return
// immediately without touching any lock.
//
// Thread Safety:
// All methods are safe for concurrent use. Value and Err must only be
// consulted after the future is resolved (after Wait, a true WaitFor, or a
// receive from Done).
type Future struct {
	mu       sync.Mutex
	done     chan struct{}
	value    any
	err      error
	resolved atomic.Bool
}

// New creates a pending future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve completes the future successfully with value, waking all waiters.
// Returns ErrAlreadyResolved if the future was already resolved; the stored
// outcome is left untouched in that case.
func (f *Future) Resolve(value any) error {
	return f.complete(value, nil)
}

// Fail completes the future with an error, waking all waiters.
// Returns ErrAlreadyResolved if the future was already resolved.
func (f *Future) Fail(err error) error {
	return f.complete(nil, err)
}

func (f *Future) complete(value any, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved.Load() {
		return ErrAlreadyResolved
	}
	f.value = value
	f.err = err
	f.resolved.Store(true)
	close(f.done)
	return nil
}

// Wait blocks the calling goroutine until the future is resolved.
// Safe to call from any number of goroutines, before or after resolution.
func (f *Future) Wait() {
	<-f.done
}

// WaitFor blocks until the future is resolved or the timeout elapses.
// Returns true if resolution occurred within the bound. An already-resolved
// future always returns true, even with a zero or expired timeout.
func (f *Future) WaitFor(timeout time.Duration) bool {
	// Checked first: with both channels ready, select would pick randomly
	// and could report a resolved future as timed out.
	select {
	case <-f.done:
		return true
	default:
	}
	select {
	case <-f.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel that is closed when the future resolves.
// Useful for select-based integration.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the future has been resolved.
func (f *Future) Resolved() bool {
	return f.resolved.Load()
}

// Value returns the success value. Only meaningful after resolution.
func (f *Future) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Err returns the failure cause, or nil if the future resolved successfully.
// Only meaningful after resolution.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Result waits for resolution and returns the outcome.
func (f *Future) Result() (any, error) {
	f.Wait()
	return f.Value(), f.Err()
}
