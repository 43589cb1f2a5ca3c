// Package dispatch implements the request dispatch path between caller
// goroutines and I/O workers.
// This file defines requests and the per-request handler that travels
// through the shared queue.
package dispatch

import (
	"github.com/dreamware/cassio/internal/future"
)

// Kind distinguishes the operations that travel through the dispatch queue.
type Kind int

const (
	// KindExecute runs a statement.
	KindExecute Kind = iota

	// KindPrepare prepares a statement and yields a prepared-statement
	// handle as the future's value.
	KindPrepare
)

// Request is one client request. Statement is a Go string and therefore
// already an immutable copy; callers handing in byte buffers must not rely
// on them after constructing the Request.
type Request struct {
	Kind      Kind
	Statement string
}

// RequestHandler couples one request with its ordered candidate host list,
// retry cursor, and completion future.
//
// Ownership: the handler belongs to the dispatch queue from Push until a
// worker pops it, then to that worker until Complete resolves the future.
// Candidate iteration (NextCandidate) is therefore single-goroutine and
// needs no locking.
type RequestHandler struct {
	Request Request
	Future  *future.Future

	candidates []string
	next       int

	// onDone, if set, runs exactly once after the future resolves. The
	// session uses it to maintain its in-flight count for shutdown
	// draining.
	onDone func()
}

// NewRequestHandler builds a handler. The candidate slice is copied, so the
// caller's backing array may be reused.
func NewRequestHandler(req Request, candidates []string, fut *future.Future) *RequestHandler {
	cp := make([]string, len(candidates))
	copy(cp, candidates)
	return &RequestHandler{
		Request:    req,
		Future:     fut,
		candidates: cp,
	}
}

// SetOnDone registers a hook invoked once after the handler completes.
// Must be set before the handler is pushed onto the queue.
func (h *RequestHandler) SetOnDone(fn func()) { h.onDone = fn }

// NextCandidate advances the retry cursor and returns the next candidate
// address. ok is false once the list is exhausted.
func (h *RequestHandler) NextCandidate() (addr string, ok bool) {
	if h.next >= len(h.candidates) {
		return "", false
	}
	addr = h.candidates[h.next]
	h.next++
	return addr, true
}

// NumCandidates returns the length of the candidate list.
func (h *RequestHandler) NumCandidates() int { return len(h.candidates) }

// Complete resolves the handler's future exactly once and runs the onDone
// hook. A nil err resolves successfully with value; otherwise the future
// fails. Extra calls are no-ops (the future's one-shot semantics win).
func (h *RequestHandler) Complete(value any, err error) {
	var resolveErr error
	if err != nil {
		resolveErr = h.Future.Fail(err)
	} else {
		resolveErr = h.Future.Resolve(value)
	}
	if resolveErr == nil && h.onDone != nil {
		h.onDone()
	}
}
