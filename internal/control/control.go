// Package control defines the control-connection collaborator: the
// component that keeps the session's view of cluster topology current.
// This file defines the narrow interfaces between it and the session.
package control

// Listener receives control-connection outcomes and topology notifications.
// The session implements it by enqueuing events on its own loop, so every
// callback is cheap and non-blocking; implementations of Conn may invoke
// listener methods from any goroutine.
type Listener interface {
	// OnControlReady fires once, when the control connection has
	// established itself against the cluster.
	OnControlReady()

	// OnControlError fires once, instead of OnControlReady, when the
	// control connection cannot be established.
	OnControlError(err error)

	// OnTopology delivers a full topology snapshot: the complete set of
	// currently known host addresses. Drives the session's generational
	// mark/purge pass.
	OnTopology(addrs []string)

	// OnHostAdded reports a single host joining the topology.
	OnHostAdded(addr string)

	// OnHostRemoved reports a single host leaving the topology.
	OnHostRemoved(addr string)

	// OnHostUp reports a host becoming reachable.
	OnHostUp(addr string)

	// OnHostDown reports a host becoming unreachable. critical marks a
	// failure severe enough to bypass reconnection backoff.
	OnHostDown(addr string, critical bool)
}

// Conn is the control connection itself. Connect is asynchronous: it
// returns immediately and reports the outcome through exactly one of
// OnControlReady or OnControlError on the listener.
type Conn interface {
	// Connect starts the control connection against the given resolved
	// contact-point addresses and begins delivering notifications to l.
	Connect(l Listener, contactPoints []string)

	// Close stops the control connection and its notification delivery.
	// After Close returns no further listener callbacks are made.
	Close()
}
