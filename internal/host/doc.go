// Package host implements cluster membership tracking: the Host type (one
// cluster node with its routing state and reconnection schedule) and the
// Registry (the session's authoritative address → Host map).
//
// # Ownership model
//
// The Registry owns every Host. Workers and load-balancing policies refer
// to hosts by address and receive membership changes as asynchronous
// commands; they never mutate the registry directly and never keep a *Host
// alive past a removal notification. All registry mutation happens on the
// session goroutine; reads may come from caller goroutines assembling
// candidate lists, which is why the map stays behind a RWMutex.
//
// # Generational mark/purge
//
// Topology refreshes are reconciled with a two-state generation mark:
//
//  1. The refresh begins: NextGeneration flips the registry's parity bit.
//  2. Every host reported by the refresh is (re-)inserted via
//     GetOrAdd(addr, true), stamping it with the new parity.
//  3. Purge evicts every host whose stamp disagrees — hosts the refresh
//     did not see.
//
// The alternating parity, rather than a "seen this pass" set, is what keeps
// overlapping partial refreshes safe: a host stamped by the previous pass
// still differs from the flipped parity and is correctly considered stale,
// while a host stamped during the current pass can never be evicted by it.
// Hosts no refresh has ever stamped (inserted during contact-point
// resolution) are stale to every non-initial purge; the parity bit's zero
// value carries no protection.
//
// Purge is suppressed entirely during the initial connection pass
// (Purge(true) evicts nothing): until the first complete topology snapshot
// has been applied, hosts may be discovered out of order and an eager purge
// would evict them spuriously.
//
// # Reconnection
//
// A host marked down carries a jittered exponential backoff schedule for
// its reconnection attempts. A critical failure (severe enough that waiting
// is pointless to the caller) bypasses the schedule: NextReconnectDelay
// returns zero and the session retries immediately. A host coming back up
// resets its schedule to the base delay.
package host
