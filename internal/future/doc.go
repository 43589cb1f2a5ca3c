// Package future implements the completion primitive shared by the session,
// its I/O workers, and caller threads.
//
// A Future is a one-shot result cell: exactly one producer resolves it
// (successfully or with an error) and one or more consumers block on it.
// It is the only synchronization object that crosses from session internals
// to application code, so its guarantees are deliberately narrow:
//
//   - Resolution is one-shot and idempotent. A second Resolve or Fail is
//     reported as ErrAlreadyResolved and never overwrites the first outcome.
//   - The wake is a broadcast. Every goroutine blocked in Wait or WaitFor
//     is released by the single resolution, and goroutines that start
//     waiting after resolution return immediately.
//   - Resolving with no waiter present is safe; the outcome is retained
//     until someone asks for it.
//
// # Design
//
// The broadcast is a closed channel rather than a mutex/condition pair.
// Closing a channel is Go's native one-shot broadcast: it composes with
// select (see Done), makes bounded waits trivial (WaitFor), and establishes
// the happens-before edge that lets waiters read the stored value and error
// without re-acquiring the lock that guarded the write.
//
// Session-specific futures (the connect future that owns a not-yet-taken
// session, the close future that joins the session goroutine) are built on
// top of this type in the session package.
package future
