// Package dispatch implements the multi-producer/multi-consumer request
// path between caller goroutines and I/O workers.
//
// # Shape
//
//	caller ──Push──▶ Queue (bounded ring) ◀──Pop── worker loop
//	   │                                        ▲
//	   └────────── Waker.Signal ──▶ Waker.C ────┘
//
// A caller builds a RequestHandler (request + ordered candidate hosts +
// completion future), pushes it onto the one shared Queue, and signals
// exactly one worker's Waker. Workers pop independently; the queue's mutex
// makes delivery exactly-once per item with no external locking.
//
// The waker is deliberately separate from the queue: the queue carries
// work, the waker carries readiness. Signals coalesce into a single pending
// wake, which is safe because a woken worker drains the queue until empty.
// A worker woken for an item another worker already popped simply finds the
// queue empty and goes back to sleep — wakes are hints, ownership is decided
// only by Pop.
//
// # Bounds and shutdown
//
// The queue is bounded and Push never blocks: at capacity it returns
// ErrQueueFull and the caller fails that request's future. On session
// shutdown the queue is closed; handlers still queued are returned to the
// closer and force-failed with the session-closing error rather than being
// dropped.
package dispatch
