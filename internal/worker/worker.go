// Package worker implements the session's I/O workers.
// This file implements the worker loop: command handling, per-host pools,
// and request processing off the shared dispatch queue.
package worker

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/dreamware/cassio/internal/dispatch"
)

// ErrNoHostsAvailable fails a request whose candidate list was exhausted
// without any host accepting it.
var ErrNoHostsAvailable = errors.New("worker: no hosts available")

// Conn is one established connection to one host. Implementations own the
// wire protocol, framing, and socket scheduling; the worker only sequences
// calls on it from its own goroutine.
type Conn interface {
	// Execute runs one request. An error means this host could not serve
	// the request; the worker then tries the next candidate.
	Execute(req dispatch.Request) (any, error)

	// SetKeyspace switches the connection's keyspace.
	SetKeyspace(keyspace string) error

	// Close tears the connection down.
	Close() error
}

// ConnFactory dials new host connections. Implementations may block; they
// are only ever called from worker goroutines, never from the session loop.
type ConnFactory interface {
	Dial(addr string) (Conn, error)
}

// Events is the worker's report channel back to the session. The session
// implements it by enqueuing events on its own loop; calls must therefore
// be treated as fire-and-forget and may be made from any worker goroutine.
type Events interface {
	// OnPoolReady reports a host pool established on a worker.
	OnPoolReady(workerID int, addr string)

	// OnPoolClosed reports a host pool torn down on a worker.
	OnPoolClosed(workerID int, addr string)

	// OnPoolConnectFailed reports a failed attempt to establish a host
	// pool on a worker.
	OnPoolConnectFailed(workerID int, addr string, err error)

	// OnWorkerReady reports that a worker has processed every command
	// queued before the ready barrier.
	OnWorkerReady(workerID int)

	// OnWorkerClosed reports that a worker's loop has exited.
	OnWorkerClosed(workerID int)
}

type commandType int

const (
	cmdAddHost commandType = iota
	cmdRemoveHost
	cmdHostUp
	cmdHostDown
	cmdSetKeyspace
	cmdReadyBarrier
)

type command struct {
	typ      commandType
	addr     string
	keyspace string
}

// pool is one host's connection state on this worker. Loop-owned.
type pool struct {
	conn Conn
	up   bool
}

// Worker runs one I/O loop. It owns a disjoint set of per-host connection
// pools, consumes commands from the session, and drains the shared dispatch
// queue when woken.
//
// The command mailbox is unbounded: the session loop fans out membership
// changes to every worker and must never block doing so, even while the
// workers are themselves blocked reporting events back to the session.
//
// pools and keyspace are owned by the loop goroutine and must not be
// touched from outside.
type Worker struct {
	id      int
	logger  log.Logger
	factory ConnFactory
	queue   *dispatch.Queue
	waker   *dispatch.Waker
	events  Events

	cmdMu   sync.Mutex
	cmds    []command
	cmdWake *dispatch.Waker

	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	pools    map[string]*pool
	keyspace string
}

// New creates a worker. Run must be called exactly once to start its loop.
func New(id int, logger log.Logger, factory ConnFactory, queue *dispatch.Queue, events Events) *Worker {
	return &Worker{
		id:      id,
		logger:  log.With(logger, "worker", id),
		factory: factory,
		queue:   queue,
		waker:   dispatch.NewWaker(),
		cmdWake: dispatch.NewWaker(),
		events:  events,
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		pools:   make(map[string]*pool),
	}
}

// Waker returns the wake primitive producers signal after pushing work.
func (w *Worker) Waker() *dispatch.Waker { return w.waker }

// AddHost asks the worker to establish a pool to addr. The outcome comes
// back through Events as pool-ready or pool-connect-failed.
func (w *Worker) AddHost(addr string) { w.send(command{typ: cmdAddHost, addr: addr}) }

// RemoveHost tears down the pool to addr.
func (w *Worker) RemoveHost(addr string) { w.send(command{typ: cmdRemoveHost, addr: addr}) }

// HostUp re-enables routing to addr, re-dialing if the pool was torn down.
func (w *Worker) HostUp(addr string) { w.send(command{typ: cmdHostUp, addr: addr}) }

// HostDown disables routing to addr and closes its pool.
func (w *Worker) HostDown(addr string) { w.send(command{typ: cmdHostDown, addr: addr}) }

// SetKeyspace switches the keyspace on every pooled connection, and on
// connections dialed afterwards.
func (w *Worker) SetKeyspace(keyspace string) {
	w.send(command{typ: cmdSetKeyspace, keyspace: keyspace})
}

// SignalReady enqueues the ready barrier: when the worker reaches it, every
// previously sent command has been processed and OnWorkerReady fires.
func (w *Worker) SignalReady() { w.send(command{typ: cmdReadyBarrier}) }

// Close asks the loop to shut down. Pools are closed, OnWorkerClosed is
// reported, and Done is closed. Never blocks; idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.closeCh) })
}

// Done is closed when the worker loop has fully exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// send appends to the command mailbox and wakes the loop. Never blocks;
// commands appended after shutdown are simply never processed.
func (w *Worker) send(cmd command) {
	w.cmdMu.Lock()
	w.cmds = append(w.cmds, cmd)
	w.cmdMu.Unlock()
	w.cmdWake.Signal()
}

// Run is the worker loop. Blocks until Close; callers start it with go.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case <-w.closeCh:
			w.shutdown()
			return
		case <-w.cmdWake.C():
			w.drainCommands()
		case <-w.waker.C():
			w.drain()
		}
	}
}

// drainCommands processes the mailbox in FIFO order until empty. One
// pending wake covers every command appended before the drain finishes.
func (w *Worker) drainCommands() {
	for {
		w.cmdMu.Lock()
		if len(w.cmds) == 0 {
			w.cmdMu.Unlock()
			return
		}
		cmd := w.cmds[0]
		w.cmds = w.cmds[1:]
		w.cmdMu.Unlock()
		w.handleCommand(cmd)
	}
}

func (w *Worker) handleCommand(cmd command) {
	switch cmd.typ {
	case cmdAddHost:
		w.addHost(cmd.addr)
	case cmdRemoveHost:
		if p, ok := w.pools[cmd.addr]; ok {
			w.closePool(cmd.addr, p)
		}
	case cmdHostUp:
		p, ok := w.pools[cmd.addr]
		if !ok || p.conn == nil {
			w.addHost(cmd.addr)
			return
		}
		p.up = true
	case cmdHostDown:
		if p, ok := w.pools[cmd.addr]; ok {
			p.up = false
			if p.conn != nil {
				if err := p.conn.Close(); err != nil {
					level.Debug(w.logger).Log("msg", "pool close failed", "host", cmd.addr, "err", err)
				}
				p.conn = nil
			}
		}
	case cmdSetKeyspace:
		w.keyspace = cmd.keyspace
		for addr, p := range w.pools {
			if p.conn == nil {
				continue
			}
			if err := p.conn.SetKeyspace(cmd.keyspace); err != nil {
				level.Warn(w.logger).Log("msg", "set keyspace failed", "host", addr, "err", err)
			}
		}
	case cmdReadyBarrier:
		w.events.OnWorkerReady(w.id)
	}
}

// addHost dials a pool to addr. Dialing happens on the worker goroutine;
// only the session loop is forbidden from blocking on I/O.
func (w *Worker) addHost(addr string) {
	if p, ok := w.pools[addr]; ok && p.conn != nil {
		p.up = true
		w.events.OnPoolReady(w.id, addr)
		return
	}
	conn, err := w.factory.Dial(addr)
	if err != nil {
		level.Warn(w.logger).Log("msg", "pool connect failed", "host", addr, "err", err)
		w.events.OnPoolConnectFailed(w.id, addr, err)
		return
	}
	if w.keyspace != "" {
		if err := conn.SetKeyspace(w.keyspace); err != nil {
			level.Warn(w.logger).Log("msg", "set keyspace on dial failed", "host", addr, "err", err)
		}
	}
	w.pools[addr] = &pool{conn: conn, up: true}
	level.Debug(w.logger).Log("msg", "pool ready", "host", addr)
	w.events.OnPoolReady(w.id, addr)
}

func (w *Worker) closePool(addr string, p *pool) {
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			level.Debug(w.logger).Log("msg", "pool close failed", "host", addr, "err", err)
		}
	}
	delete(w.pools, addr)
	w.events.OnPoolClosed(w.id, addr)
}

// drain pops the shared queue until empty. A single pending wake covers
// every item pushed before the drain finishes.
func (w *Worker) drain() {
	for {
		h, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.process(h)
	}
}

// process tries the handler's candidates in order until one accepts.
func (w *Worker) process(h *dispatch.RequestHandler) {
	var lastErr error
	for {
		addr, ok := h.NextCandidate()
		if !ok {
			if lastErr == nil {
				lastErr = ErrNoHostsAvailable
			}
			h.Complete(nil, lastErr)
			return
		}
		p, ok := w.pools[addr]
		if !ok || !p.up || p.conn == nil {
			continue
		}
		result, err := p.conn.Execute(h.Request)
		if err != nil {
			level.Debug(w.logger).Log("msg", "host rejected request", "host", addr, "err", err)
			lastErr = err
			continue
		}
		h.Complete(result, nil)
		return
	}
}

// shutdown closes every pool and reports the worker closed.
func (w *Worker) shutdown() {
	for addr, p := range w.pools {
		w.closePool(addr, p)
	}
	level.Debug(w.logger).Log("msg", "worker closed")
	w.events.OnWorkerClosed(w.id)
}
