// Package control defines the control-connection collaborator.
// This file implements Prober, a Conn that tracks cluster health by
// periodically probing each contact point over TCP.
package control

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// peerHealth tracks probe history for a single contact point.
type peerHealth struct {
	healthy          bool
	consecutiveFails int
}

// Prober is a control connection for clusters with a static host set. It
// has no wire protocol: a host counts as reachable when a TCP connection to
// it can be established within the probe timeout.
//
// On Connect it reports the contact points handed to it as the initial
// topology snapshot, probes each once, and signals ready if at least one is
// reachable (error otherwise). It then keeps probing on an interval,
// reporting up/down transitions after the configured number of consecutive
// probe results in the new direction.
type Prober struct {
	logger      log.Logger
	interval    time.Duration
	timeout     time.Duration
	maxFailures int

	// checkFunc performs one reachability probe. Replaceable for tests.
	checkFunc func(addr string) error

	mu    sync.Mutex
	peers map[string]*peerHealth
	addrs []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProber creates a prober. interval is the probe period, timeout bounds
// each TCP dial, and maxFailures is the number of consecutive failed probes
// before a host is reported down.
func NewProber(logger log.Logger, interval, timeout time.Duration, maxFailures int) *Prober {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prober{
		logger:      logger,
		interval:    interval,
		timeout:     timeout,
		maxFailures: maxFailures,
		peers:       make(map[string]*peerHealth),
		ctx:         ctx,
		cancel:      cancel,
	}
	p.checkFunc = p.tcpCheck
	return p
}

// SetCheckFunc replaces the reachability probe. Must be called before
// Connect.
func (p *Prober) SetCheckFunc(fn func(addr string) error) {
	p.checkFunc = fn
}

// Connect implements Conn.
func (p *Prober) Connect(l Listener, contactPoints []string) {
	p.mu.Lock()
	p.addrs = append([]string(nil), contactPoints...)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(l)
}

// Close implements Conn. Blocks until the probe loop has stopped; no
// listener callback is started after Close returns.
func (p *Prober) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Prober) run(l Listener) {
	defer p.wg.Done()

	p.mu.Lock()
	addrs := p.addrs
	p.mu.Unlock()

	if len(addrs) == 0 {
		l.OnControlError(errors.New("control: no contact points"))
		return
	}

	// Initial snapshot: the contact points are the topology.
	for _, addr := range addrs {
		p.setPeer(addr, &peerHealth{})
		l.OnHostAdded(addr)
	}
	l.OnTopology(addrs)

	reachable := 0
	var lastErr error
	for _, addr := range addrs {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.checkFunc(addr); err != nil {
			lastErr = err
			level.Warn(p.logger).Log("msg", "contact point unreachable", "host", addr, "err", err)
			continue
		}
		p.setHealthy(addr, true)
		reachable++
	}
	if reachable == 0 {
		l.OnControlError(errors.Wrap(lastErr, "control: no contact point reachable"))
		return
	}
	if p.ctx.Err() != nil {
		return
	}
	l.OnControlReady()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(l, addrs)
		}
	}
}

// probeAll checks every peer once and reports state transitions.
func (p *Prober) probeAll(l Listener, addrs []string) {
	for _, addr := range addrs {
		if p.ctx.Err() != nil {
			return
		}
		err := p.checkFunc(addr)

		p.mu.Lock()
		ph := p.peers[addr]
		var wentUp, wentDown bool
		if err != nil {
			ph.consecutiveFails++
			if ph.healthy && ph.consecutiveFails >= p.maxFailures {
				ph.healthy = false
				wentDown = true
			}
		} else {
			ph.consecutiveFails = 0
			if !ph.healthy {
				ph.healthy = true
				wentUp = true
			}
		}
		p.mu.Unlock()

		if p.ctx.Err() != nil {
			return
		}
		if wentDown {
			level.Info(p.logger).Log("msg", "host down", "host", addr, "err", err)
			l.OnHostDown(addr, false)
		}
		if wentUp {
			level.Info(p.logger).Log("msg", "host up", "host", addr)
			l.OnHostUp(addr)
		}
	}
}

// Healthy reports whether addr passed its most recent probe. Test hook.
func (p *Prober) Healthy(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ph, ok := p.peers[addr]
	return ok && ph.healthy
}

func (p *Prober) setPeer(addr string, ph *peerHealth) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[addr] = ph
}

func (p *Prober) setHealthy(addr string, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ph, ok := p.peers[addr]; ok {
		ph.healthy = healthy
	}
}

func (p *Prober) tcpCheck(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, p.timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
