// Package lb defines the load-balancing policy collaborator: given the
// session's current view of the cluster, a Policy produces the ordered
// candidate host list for one request.
//
// The session owns the topology; policies only mirror it. Membership and
// state changes arrive as OnHostAdded/Removed/Up/Down notifications
// (delivered from the session goroutine), while Candidates is called from
// arbitrary caller goroutines at dispatch time, so implementations guard
// their view with their own lock.
//
// Two implementations ship with the package:
//
//   - RoundRobin: equal-share rotation over the up hosts. The default.
//   - HostPool: delegates lead selection to hailocab/go-hostpool, which
//     remembers failures and parks flapping hosts behind its own retry
//     backoff.
//
// The ordering contract is deliberately weak: workers try candidates
// strictly in the given order and stop at the first host that accepts, so
// any policy that eventually lists a live host yields progress.
package lb
