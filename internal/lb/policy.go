// Package lb defines the load-balancing policy collaborator and its
// built-in implementations.
// This file defines the Policy interface and the default round-robin
// policy.
package lb

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Policy orders candidate hosts for requests. The session calls Init once
// topology is known and then keeps the policy's view current through the
// OnHost* notifications; Candidates may be called concurrently from any
// caller goroutine dispatching a request.
//
// The concrete selection algorithm is the policy's business; the session
// only relies on the returned order and tries candidates until one accepts.
type Policy interface {
	// Init seeds the policy with the initially known host addresses.
	Init(addrs []string)

	// Candidates returns an ordered list of host addresses to try for one
	// request. May be empty when no host is routable.
	Candidates() []string

	// OnHostAdded tells the policy a host joined the topology.
	OnHostAdded(addr string)

	// OnHostRemoved tells the policy a host left the topology.
	OnHostRemoved(addr string)

	// OnHostUp tells the policy a host became routable.
	OnHostUp(addr string)

	// OnHostDown tells the policy a host stopped being routable. A
	// critical failure is a stronger negative signal than a normal down:
	// policies tracking host quality should penalize it accordingly.
	OnHostDown(addr string, critical bool)
}

// RoundRobin cycles through the currently-up hosts, starting each
// candidate list one position after the previous one. Hosts are kept in
// stable address-insertion order so every host gets an equal share of
// lead positions.
type RoundRobin struct {
	mu     sync.Mutex
	hosts  []string
	up     map[string]bool
	cursor int
}

// NewRoundRobin creates an empty round-robin policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{up: make(map[string]bool)}
}

// Init implements Policy.
func (p *RoundRobin) Init(addrs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, addr := range addrs {
		if !slices.Contains(p.hosts, addr) {
			p.hosts = append(p.hosts, addr)
		}
		p.up[addr] = true
	}
}

// Candidates implements Policy. The returned list holds every up host,
// rotated so consecutive calls lead with different hosts.
func (p *RoundRobin) Candidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.hosts) == 0 {
		return nil
	}
	start := p.cursor % len(p.hosts)
	p.cursor++

	out := make([]string, 0, len(p.hosts))
	for i := 0; i < len(p.hosts); i++ {
		addr := p.hosts[(start+i)%len(p.hosts)]
		if p.up[addr] {
			out = append(out, addr)
		}
	}
	return out
}

// OnHostAdded implements Policy. A freshly added host is not routable until
// OnHostUp.
func (p *RoundRobin) OnHostAdded(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.hosts, addr) {
		p.hosts = append(p.hosts, addr)
	}
}

// OnHostRemoved implements Policy.
func (p *RoundRobin) OnHostRemoved(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := slices.Index(p.hosts, addr); i >= 0 {
		p.hosts = slices.Delete(p.hosts, i, i+1)
	}
	delete(p.up, addr)
}

// OnHostUp implements Policy.
func (p *RoundRobin) OnHostUp(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.hosts, addr) {
		p.hosts = append(p.hosts, addr)
	}
	p.up[addr] = true
}

// OnHostDown implements Policy. Round-robin has no quality tracking, so a
// critical down is treated the same as a normal one.
func (p *RoundRobin) OnHostDown(addr string, critical bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up[addr] = false
}
