// Package session implements the driver's session orchestrator.
// This file implements the caller-visible connect and close handles, which
// add session-ownership semantics on top of the plain completion future.
package session

import (
	"sync"
	"time"

	"github.com/dreamware/cassio/internal/future"
)

// ConnectFuture is the handle returned by Connect. It resolves with the
// session once it is ready, or with the connection error.
//
// Ownership: until Session() has been called, the future is responsible
// for the session it contains. A caller abandoning the handle without ever
// taking the session must call Shutdown, which synthesizes a close and
// blocks until the session has fully shut down — guaranteeing every
// created session is closed exactly once regardless of caller discipline.
type ConnectFuture struct {
	*future.Future

	mu      sync.Mutex
	session *Session
	taken   bool
}

// Session waits for resolution and returns the connected session, or the
// connection error. A successful return transfers shutdown responsibility
// to the caller.
func (f *ConnectFuture) Session() (*Session, error) {
	f.Wait()
	if err := f.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.taken = true
	s := f.session
	f.mu.Unlock()
	return s, nil
}

// Shutdown releases an abandoned handle. If the contained session was
// never taken via Session, it is closed and Shutdown blocks until the
// close has completed. Idempotent; a no-op after a successful Session
// call.
func (f *ConnectFuture) Shutdown() {
	f.mu.Lock()
	if f.taken || f.session == nil {
		f.mu.Unlock()
		return
	}
	f.taken = true
	s := f.session
	f.mu.Unlock()

	s.Close().Wait()
}

// CloseFuture is the handle returned by Close. Beyond resolving when the
// session reaches StateClosed, its wait operations join the session's
// internal goroutines before returning, so no asynchronous callback can
// touch the session after a successful wait. The session reference is
// nulled out after the first successful wait; later waits are no-ops.
type CloseFuture struct {
	*future.Future

	mu      sync.Mutex
	session *Session
}

// Wait blocks until the session is closed and its goroutines have exited.
func (f *CloseFuture) Wait() {
	f.Future.Wait()
	f.release()
}

// WaitFor blocks until the session is closed or the timeout elapses.
// On a true return the session's goroutines have been joined.
func (f *CloseFuture) WaitFor(timeout time.Duration) bool {
	if !f.Future.WaitFor(timeout) {
		return false
	}
	f.release()
	return true
}

func (f *CloseFuture) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		f.session.join()
		f.session = nil
	}
}
