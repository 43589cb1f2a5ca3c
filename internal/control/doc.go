// Package control defines the control-connection collaborator: the session
// component responsible for knowing which hosts exist and whether the
// cluster is reachable at all.
//
// The session and the control connection talk through two narrow
// interfaces. Conn is what the session drives (Connect once, Close once);
// Listener is what the control connection reports into. The listener is
// implemented by the session as event enqueues onto its single loop, which
// gives the control connection a strong, simple contract: callbacks may be
// made from any goroutine, must be treated as fire-and-forget, and are
// never processed concurrently with other session-state mutation.
//
// Exactly one of OnControlReady or OnControlError is delivered per Connect.
// Topology flows through two channels with different semantics:
//
//   - OnTopology(addrs) is a full snapshot and drives the session's
//     generational mark/purge pass — hosts absent from the snapshot get
//     evicted (except during the initial connection pass).
//   - OnHostAdded/Removed/Up/Down are incremental deltas applied directly.
//
// Prober is the in-tree Conn implementation: static contact points probed
// over plain TCP on an interval, with a consecutive-failure threshold
// before a down transition. Real deployments wanting server-pushed
// topology events implement Conn against their own protocol; the session
// does not care where notifications come from as long as they arrive
// through the Listener.
package control
