// Package host tracks cluster membership for a session.
// This file implements the Host type: one cluster node with its state and
// reconnection schedule.
package host

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/atomic"
)

// State describes the routing state of a host.
type State int32

const (
	// StateAdded is the initial state of a freshly discovered host, before
	// any worker has established a pool to it.
	StateAdded State = iota

	// StateUp means the host is accepting requests.
	StateUp

	// StateDown means the host is known but currently unreachable; a
	// reconnection is scheduled.
	StateDown

	// StateRemoved means the host has left the cluster topology. A removed
	// host never transitions back; rejoining nodes get a fresh Host.
	StateRemoved
)

// String returns a readable state name for logs.
func (s State) String() string {
	switch s {
	case StateAdded:
		return "added"
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Host is one cluster node. The registry owns the authoritative Host entry;
// workers and load-balancing policies refer to hosts by address and must not
// retain *Host across membership changes.
//
// Field disciplines:
//   - state and lastDelay are atomics, readable from any goroutine.
//   - mark is guarded by the registry lock (mutated only during refresh
//     passes on the session goroutine).
//   - reconnect is touched only on the session goroutine.
type Host struct {
	addr      string
	state     atomic.Int32
	lastDelay atomic.Duration

	// mark carries the generation parity of the last topology refresh that
	// saw this host; marked records whether any refresh has seen it at
	// all. A never-marked host cannot collide with the parity bit and is
	// stale to every non-initial purge. Both guarded by the owning
	// Registry's lock.
	mark   bool
	marked bool

	reconnect *backoff.ExponentialBackOff
}

// New creates a host in StateAdded with the given reconnection delay bounds.
func New(addr string, baseDelay, maxDelay time.Duration) *Host {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.MaxInterval = maxDelay
	bo.Reset()
	h := &Host{addr: addr, reconnect: bo}
	h.state.Store(int32(StateAdded))
	return h
}

// Address returns the host's address (host:port).
func (h *Host) Address() string { return h.addr }

// State returns the current routing state.
func (h *Host) State() State { return State(h.state.Load()) }

// SetState transitions the host to s.
func (h *Host) SetState(s State) { h.state.Store(int32(s)) }

// IsUp reports whether the host is accepting requests.
func (h *Host) IsUp() bool { return h.State() == StateUp }

// NextReconnectDelay computes the delay before the next reconnection
// attempt and records it for inspection. A critical failure bypasses
// backoff entirely and yields a zero delay; a normal failure advances the
// jittered exponential schedule.
//
// Called only on the session goroutine.
func (h *Host) NextReconnectDelay(critical bool) time.Duration {
	var d time.Duration
	if !critical {
		d = h.reconnect.NextBackOff()
	}
	h.lastDelay.Store(d)
	return d
}

// LastReconnectDelay returns the most recently scheduled reconnection
// delay. Zero either means no reconnect was ever scheduled or the last
// failure was critical.
func (h *Host) LastReconnectDelay() time.Duration { return h.lastDelay.Load() }

// ResetReconnect restores the backoff schedule to its base delay. Called
// when the host comes back up.
func (h *Host) ResetReconnect() { h.reconnect.Reset() }

// String implements fmt.Stringer for logs.
func (h *Host) String() string {
	return fmt.Sprintf("%s(%s)", h.addr, h.State())
}
