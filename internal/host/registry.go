// Package host tracks cluster membership for a session.
// This file implements the Registry: the address-keyed host map with
// generational mark/purge semantics.
package host

import (
	"sort"
	"sync"
	"time"
)

// Registry is the authoritative address → Host mapping for one session.
//
// Mutations (GetOrAdd, Remove, NextGeneration, Purge) happen only on the
// session goroutine. Reads (Get, Snapshot, UpAddresses) may come from any
// caller goroutine dispatching a request, so the map is still guarded by a
// RWMutex.
//
// Generation marking: the registry holds a current parity bit that flips at
// the start of every full topology refresh. Hosts seen during the refresh
// are stamped with the current parity; Purge then evicts every host whose
// stamp disagrees. The two-state parity (rather than a per-pass seen-set)
// keeps overlapping partial refreshes from evicting hosts that were only
// re-marked by the previous pass.
type Registry struct {
	mu          sync.RWMutex
	hosts       map[string]*Host
	currentMark bool

	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewRegistry creates an empty registry. The delay bounds seed each new
// host's reconnection backoff schedule.
func NewRegistry(baseDelay, maxDelay time.Duration) *Registry {
	return &Registry{
		hosts:     make(map[string]*Host),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// GetOrAdd returns the host for addr, inserting a new one if absent.
// The second result reports whether an insert happened. If mark is true the
// host is stamped with the current generation parity, protecting it from
// the next Purge.
func (r *Registry) GetOrAdd(addr string, mark bool) (*Host, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[addr]
	if !ok {
		h = New(addr, r.baseDelay, r.maxDelay)
		r.hosts[addr] = h
	}
	if mark {
		h.mark = r.currentMark
		h.marked = true
	}
	return h, !ok
}

// Get returns the host for addr, or nil if unknown.
func (r *Registry) Get(addr string) *Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hosts[addr]
}

// Remove deletes addr from the registry and returns the removed host, or
// nil if it was not present. The host is transitioned to StateRemoved.
func (r *Registry) Remove(addr string) *Host {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[addr]
	if !ok {
		return nil
	}
	delete(r.hosts, addr)
	h.SetState(StateRemoved)
	return h
}

// NextGeneration flips the current mark parity. Called at the start of each
// full topology refresh, before the refresh re-marks the hosts it sees.
func (r *Registry) NextGeneration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentMark = !r.currentMark
}

// Purge evicts every host whose mark disagrees with the current generation
// and returns the evicted hosts in address order. While isInitial is true
// (the very first connection pass, before a complete topology snapshot has
// been applied) nothing is evicted: hosts may legitimately arrive out of
// order during initial discovery.
func (r *Registry) Purge(isInitial bool) []*Host {
	if isInitial {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Host
	for addr, h := range r.hosts {
		// Never-marked hosts are always stale: the zero value of the
		// parity bit must not protect them on alternating generations.
		if !h.marked || h.mark != r.currentMark {
			delete(r.hosts, addr)
			h.SetState(StateRemoved)
			evicted = append(evicted, h)
		}
	}
	sort.Slice(evicted, func(i, j int) bool {
		return evicted[i].Address() < evicted[j].Address()
	})
	return evicted
}

// Snapshot returns all hosts in address order. The slice is a copy; the
// *Host entries are the live shared objects.
func (r *Registry) Snapshot() []*Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

// UpAddresses returns the addresses of all hosts currently up, in address
// order. Used by load-balancing policies building candidate lists.
func (r *Registry) UpAddresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.hosts))
	for addr, h := range r.hosts {
		if h.IsUp() {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered hosts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}
