// Package worker implements the session's I/O workers: the goroutines that
// own host connections and perform actual request I/O.
//
// Each worker runs one loop that multiplexes three inputs:
//
//   - the session's command mailbox (add/remove/up/down host, set
//     keyspace, ready barrier, close),
//   - the shared dispatch queue's waker,
//   - the close signal.
//
// The mailbox is unbounded and its producer side never blocks. The session
// loop fans commands out to every worker while the workers are
// simultaneously reporting events back to the session; a bounded command
// channel would let the two sides fill each other's buffers and deadlock.
//
// Every mutable structure — the per-host pools, the keyspace — is owned by
// the loop goroutine; the outside world only ever talks to a worker through
// the command mailbox and reads its reports through the Events interface.
// The session gives every worker a pool to every known host, so any worker
// can serve any request popped from the shared queue.
//
// Hosts are identified by address. A worker never holds a *host.Host: the
// registry stays the single owner of host objects, and a membership change
// reaching the worker late at worst wastes one dial or one candidate skip.
//
// The actual socket work lives behind Conn and ConnFactory. The worker
// sequences all calls on a Conn from its own goroutine, so implementations
// need no internal locking for the Execute/SetKeyspace/Close surface.
//
// Request processing: a popped handler's candidates are tried strictly in
// the order the load-balancing policy gave them. A candidate is skipped
// when this worker has no live pool for it; an Execute error moves on to
// the next candidate. An exhausted list fails the request with
// ErrNoHostsAvailable (or the last host's error, when one was actually
// tried) on the request's own future — never through session state.
package worker
