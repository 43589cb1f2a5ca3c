// Package lb defines the load-balancing policy collaborator and its
// built-in implementations.
// This file implements a policy backed by hailocab/go-hostpool, which
// tracks per-host failure history and keeps dead hosts out of rotation
// with its own retry schedule.
package lb

import (
	"sync"

	"github.com/hailocab/go-hostpool"
	"github.com/pkg/errors"

	"golang.org/x/exp/slices"
)

var errHostDown = errors.New("lb: host reported down")

// HostPool delegates lead-host selection to a hostpool.HostPool and fills
// the rest of the candidate list with the remaining up hosts. Session
// up/down notifications are fed back into the pool as Mark results, so a
// host flapping down is parked by the pool's internal retry backoff rather
// than being retried on every request.
type HostPool struct {
	mu      sync.Mutex
	pool    hostpool.HostPool
	hosts   []string
	up      map[string]bool
	pending map[string]hostpool.HostPoolResponse
}

// NewHostPool creates a hostpool-backed policy. The pool is created empty
// and populated by Init.
func NewHostPool() *HostPool {
	return &HostPool{
		pool:    hostpool.New(nil),
		up:      make(map[string]bool),
		pending: make(map[string]hostpool.HostPoolResponse),
	}
}

// Init implements Policy.
func (p *HostPool) Init(addrs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, addr := range addrs {
		if !slices.Contains(p.hosts, addr) {
			p.hosts = append(p.hosts, addr)
		}
		p.up[addr] = true
	}
	p.pool.SetHosts(p.hosts)
}

// Candidates implements Policy. The pool picks the lead host; the
// remaining up hosts follow in stable order.
func (p *HostPool) Candidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.hosts) == 0 {
		return nil
	}

	resp := p.pool.Get()
	lead := resp.Host()
	// Retain the response so a later down notification for this host can
	// be marked against the pool. Overwriting a previous pending response
	// for the same host is fine: marking any response feeds the signal.
	p.pending[lead] = resp

	out := make([]string, 0, len(p.hosts))
	if p.up[lead] {
		out = append(out, lead)
	}
	for _, addr := range p.hosts {
		if addr != lead && p.up[addr] {
			out = append(out, addr)
		}
	}
	return out
}

// OnHostAdded implements Policy.
func (p *HostPool) OnHostAdded(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.hosts, addr) {
		p.hosts = append(p.hosts, addr)
		p.pool.SetHosts(p.hosts)
	}
}

// OnHostRemoved implements Policy.
func (p *HostPool) OnHostRemoved(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := slices.Index(p.hosts, addr); i >= 0 {
		p.hosts = slices.Delete(p.hosts, i, i+1)
		p.pool.SetHosts(p.hosts)
	}
	delete(p.up, addr)
	delete(p.pending, addr)
}

// OnHostUp implements Policy.
func (p *HostPool) OnHostUp(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.hosts, addr) {
		p.hosts = append(p.hosts, addr)
		p.pool.SetHosts(p.hosts)
	}
	p.up[addr] = true
	if resp, ok := p.pending[addr]; ok {
		resp.Mark(nil)
		delete(p.pending, addr)
	}
}

// OnHostDown implements Policy. The pool only understands success/failure,
// so critical and normal downs mark the same way; the stronger signal still
// reaches callers through the immediate up-map removal.
func (p *HostPool) OnHostDown(addr string, critical bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up[addr] = false
	if resp, ok := p.pending[addr]; ok {
		resp.Mark(errHostDown)
		delete(p.pending, addr)
	}
}
