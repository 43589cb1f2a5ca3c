// Package session implements the driver's session orchestrator.
// This file implements the Session itself: the single-goroutine event loop
// that owns all cluster state, and the non-blocking caller-facing surface.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/dreamware/cassio/internal/control"
	"github.com/dreamware/cassio/internal/dispatch"
	"github.com/dreamware/cassio/internal/future"
	"github.com/dreamware/cassio/internal/host"
	"github.com/dreamware/cassio/internal/lb"
	"github.com/dreamware/cassio/internal/worker"
)

// State is the session lifecycle state.
type State int32

const (
	// StateInitial: created, loop not yet asked to connect.
	StateInitial State = iota
	// StateConnecting: resolving contact points, establishing the control
	// connection and worker pools.
	StateConnecting
	// StateConnectFailed: connection establishment failed; the session is
	// shutting itself down.
	StateConnectFailed
	// StateReady: accepting requests.
	StateReady
	// StateClosing: draining in-flight requests and stopping workers.
	StateClosing
	// StateClosed: loop exited; the session is inert.
	StateClosed
)

// String returns a readable state name for logs.
func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConnecting:
		return "connecting"
	case StateConnectFailed:
		return "connect_failed"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotInitialized fails operations attempted before Init.
	ErrNotInitialized = errors.New("session: not initialized")

	// ErrAlreadyConnected fails a second Connect call.
	ErrAlreadyConnected = errors.New("session: connect already called")

	// ErrSessionClosing fails requests submitted to, or still pending in,
	// a session that is shutting down.
	ErrSessionClosing = errors.New("session: closing")
)

// Session orchestrates one application's connection to the cluster.
//
// Concurrency model: one goroutine (run) owns every field in the
// "loop-owned" block below and is the only mutator of the host registry.
// Caller-facing entry points are non-blocking: they enqueue events or push
// onto the dispatch queue and return completion futures. I/O workers and
// the control connection report back as events on the same queue.
type Session struct {
	logger  log.Logger
	config  Config
	metrics *sessionMetrics

	registry *host.Registry
	queue    *dispatch.Queue
	policy   lb.Policy
	resolver Resolver
	control  control.Conn
	factory  worker.ConnFactory
	workers  []*worker.Worker

	events   chan event
	loopDone chan struct{}
	doneOnce sync.Once

	state        atomic.Int32
	running      atomic.Bool
	initClaimed  atomic.Bool
	connectOnce  atomic.Bool
	workerCursor atomic.Uint32
	inflight     atomic.Int64

	keyspaceMu sync.Mutex
	keyspace   string

	closeMu     sync.Mutex
	closeFut    *future.Future
	closeHandle *CloseFuture

	// closedHook, if set before Init, runs exactly once when the session
	// reaches StateClosed. Test hook.
	closedHook func()

	// Loop-owned state. Touched only from run().
	connectFut      *future.Future
	pendingResolve  int
	pendingPools    int
	pendingWorkers  int
	snapshotApplied bool
	closing         bool
	drained         bool
	lastResolveErr  error
	failedPools     map[string]int
	reconnectTimers map[string]*time.Timer
}

// New creates a session from cfg. Defaults are applied and the config
// validated. The session is inert until Init starts its loop.
func New(cfg Config, logger log.Logger) (*Session, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	queue := dispatch.NewQueue(cfg.QueueSize)
	s := &Session{
		logger:          logger,
		config:          cfg,
		metrics:         newSessionMetrics(cfg.Registerer, queue),
		registry:        host.NewRegistry(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay),
		queue:           queue,
		policy:          lb.NewRoundRobin(),
		resolver:        netResolver{defaultPort: cfg.Port},
		events:          make(chan event, 256),
		loopDone:        make(chan struct{}),
		failedPools:     make(map[string]int),
		reconnectTimers: make(map[string]*time.Timer),
	}
	return s, nil
}

// SetLoadBalancingPolicy replaces the default round-robin policy.
// Must be called before Init.
func (s *Session) SetLoadBalancingPolicy(p lb.Policy) { s.policy = p }

// SetControlConnection replaces the default TCP prober.
// Must be called before Init.
func (s *Session) SetControlConnection(c control.Conn) { s.control = c }

// SetConnFactory provides the dialer workers use to establish host
// connections. Required before Init.
func (s *Session) SetConnFactory(f worker.ConnFactory) { s.factory = f }

// SetResolver replaces the default DNS-backed contact-point resolver.
// Must be called before Init.
func (s *Session) SetResolver(r Resolver) { s.resolver = r }

// SetClosedHook registers fn to run once when the session reaches
// StateClosed. Must be called before Init. Test hook.
func (s *Session) SetClosedHook(fn func()) { s.closedHook = fn }

// Init starts the worker goroutines and the session loop. Callable once.
func (s *Session) Init() error {
	if s.factory == nil {
		return errors.New("session: no connection factory configured")
	}
	if !s.initClaimed.CompareAndSwap(false, true) {
		return errors.New("session: already initialized")
	}
	if s.control == nil {
		s.control = control.NewProber(s.logger, s.config.ProbeInterval, s.config.ConnectTimeout, s.config.ProbeFailureThreshold)
	}

	ev := workerEvents{s}
	for i := 0; i < s.config.NumWorkers; i++ {
		s.workers = append(s.workers, worker.New(i, s.logger, s.factory, s.queue, ev))
	}
	for _, w := range s.workers {
		go w.Run()
	}
	go s.run()

	s.running.Store(true)
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Keyspace returns the session keyspace. The read is atomic with respect
// to SetKeyspace: it observes a complete prior or new value, never a
// partial one.
func (s *Session) Keyspace() string {
	s.keyspaceMu.Lock()
	defer s.keyspaceMu.Unlock()
	return s.keyspace
}

// SetKeyspace updates the session keyspace and asks every worker to switch
// its pooled connections. No ordering is guaranteed relative to requests
// already in flight.
func (s *Session) SetKeyspace(keyspace string) {
	s.keyspaceMu.Lock()
	s.keyspace = keyspace
	s.keyspaceMu.Unlock()
	s.sendEvent(event{typ: evSetKeyspace, keyspace: keyspace})
}

// Connect starts connection establishment. Callable once; the returned
// future resolves with this session when it reaches StateReady, or with
// the connection error. If keyspace is non-empty it becomes the session
// keyspace before any pool is dialed.
func (s *Session) Connect(keyspace string) *ConnectFuture {
	fut := future.New()
	if !s.running.Load() {
		_ = fut.Fail(ErrNotInitialized)
		return &ConnectFuture{Future: fut}
	}
	if !s.connectOnce.CompareAndSwap(false, true) {
		_ = fut.Fail(ErrAlreadyConnected)
		return &ConnectFuture{Future: fut}
	}

	if keyspace != "" {
		s.keyspaceMu.Lock()
		s.keyspace = keyspace
		s.keyspaceMu.Unlock()
		s.sendEvent(event{typ: evSetKeyspace, keyspace: keyspace})
	}
	// The future rides the event so only the loop ever assigns the field.
	// A send failing means the loop has already exited: resolve here, or
	// the caller's Wait would hang forever.
	if !s.sendEvent(event{typ: evConnect, fut: fut}) {
		_ = fut.Fail(ErrSessionClosing)
		return &ConnectFuture{Future: fut}
	}
	return &ConnectFuture{Future: fut, session: s}
}

// Execute submits a statement. Non-blocking; the outcome arrives on the
// returned future.
func (s *Session) Execute(statement string) *future.Future {
	return s.submit(dispatch.Request{Kind: dispatch.KindExecute, Statement: statement})
}

// Prepare submits a statement for preparation. The statement is copied
// before Prepare returns. The future's value is the prepared-statement
// handle produced by the connection.
func (s *Session) Prepare(statement string) *future.Future {
	return s.submit(dispatch.Request{Kind: dispatch.KindPrepare, Statement: statement})
}

// submit is the shared dispatch path: candidates from the policy, push to
// the shared queue, wake exactly one worker round-robin.
func (s *Session) submit(req dispatch.Request) *future.Future {
	fut := future.New()
	if !s.running.Load() {
		_ = fut.Fail(ErrNotInitialized)
		return fut
	}
	switch s.State() {
	case StateClosing, StateClosed, StateConnectFailed:
		_ = fut.Fail(ErrSessionClosing)
		return fut
	}

	handler := dispatch.NewRequestHandler(req, s.policy.Candidates(), fut)
	handler.SetOnDone(func() {
		s.inflight.Dec()
		s.metrics.requestsCompleted.Inc()
	})

	s.inflight.Inc()
	if err := s.queue.Push(handler); err != nil {
		s.inflight.Dec()
		s.metrics.requestsFailed.Inc()
		if errors.Is(err, dispatch.ErrQueueClosed) {
			err = ErrSessionClosing
		}
		_ = fut.Fail(err)
		return fut
	}
	s.metrics.requestsSubmitted.Inc()

	next := int(s.workerCursor.Inc()-1) % len(s.workers)
	s.workers[next].Waker().Signal()
	return fut
}

// Close starts shutdown and returns the close future. Idempotent: every
// call returns the same handle. The future resolves once the session
// reaches StateClosed; its Wait additionally joins the session goroutine.
func (s *Session) Close() *CloseFuture {
	s.closeMu.Lock()
	if s.closeHandle != nil {
		h := s.closeHandle
		s.closeMu.Unlock()
		return h
	}
	fut := s.ensureCloseFutureLocked()
	s.closeHandle = &CloseFuture{Future: fut, session: s}
	h := s.closeHandle
	started := s.running.Load()
	s.closeMu.Unlock()

	if started {
		s.sendEvent(event{typ: evClose})
	} else {
		// Never initialized: no loop to stop.
		s.setState(StateClosed)
		_ = fut.Resolve(nil)
		s.doneOnce.Do(func() { close(s.loopDone) })
	}
	return h
}

func (s *Session) ensureCloseFutureLocked() *future.Future {
	if s.closeFut == nil {
		s.closeFut = future.New()
	}
	return s.closeFut
}

// join blocks until the session loop and every worker goroutine have
// exited. Called from CloseFuture after resolution; after join returns no
// asynchronous callback can touch the session again.
func (s *Session) join() {
	<-s.loopDone
	for _, w := range s.workers {
		<-w.Done()
	}
}

// run is the session loop: the single goroutine that mutates session
// state. It consumes events until the session reaches StateClosed.
func (s *Session) run() {
	for s.State() != StateClosed {
		ev := <-s.events
		s.metrics.eventsProcessed.Inc()
		s.onEvent(ev)
	}
	s.doneOnce.Do(func() { close(s.loopDone) })
	if s.closedHook != nil {
		s.closedHook()
	}
}

func (s *Session) onEvent(ev event) {
	switch ev.typ {
	case evConnect:
		s.handleConnect(ev)
	case evResolved:
		s.handleResolved(ev)
	case evControlReady:
		s.handleControlReady()
	case evControlError:
		s.handleControlError(ev.err)
	case evTopology:
		s.handleTopology(ev.addrs)
	case evHostAdded:
		s.handleHostAdded(ev.addr)
	case evHostRemoved:
		s.handleHostRemoved(ev.addr)
	case evNotifyUp:
		s.handleNotifyUp(ev.addr)
	case evNotifyDown:
		s.handleNotifyDown(ev.addr, ev.critical)
	case evReconnect:
		s.handleReconnect(ev.addr)
	case evSetKeyspace:
		for _, w := range s.workers {
			w.SetKeyspace(ev.keyspace)
		}
	case evPoolReady:
		s.handlePoolReady(ev)
	case evPoolClosed:
		level.Debug(s.logger).Log("msg", "pool closed", "worker", ev.workerID, "host", ev.addr)
	case evPoolConnectFailed:
		s.handlePoolConnectFailed(ev)
	case evWorkerReady:
		s.handleWorkerReady()
	case evWorkerClosed:
		s.handleWorkerClosed()
	case evClose:
		s.beginShutdown()
	case evDrained:
		s.finishDrain()
	}
}

func (s *Session) handleConnect(ev event) {
	if s.State() != StateInitial {
		// A close won the race before the connect event was processed.
		_ = ev.fut.Fail(ErrSessionClosing)
		return
	}
	s.connectFut = ev.fut
	s.setState(StateConnecting)

	points := s.config.contactPointList()
	level.Info(s.logger).Log("msg", "connecting", "contact_points", s.config.ContactPoints)
	if len(points) == 0 {
		s.failConnect(errors.New("session: no contact points configured"))
		return
	}

	s.pendingResolve = len(points)
	for _, p := range points {
		go func(p string) {
			ctx, cancel := context.WithTimeout(context.Background(), s.config.ConnectTimeout)
			defer cancel()
			addrs, err := s.resolver.Resolve(ctx, p)
			s.sendEvent(event{typ: evResolved, addr: p, addrs: addrs, err: err})
		}(p)
	}
}

func (s *Session) handleResolved(ev event) {
	if s.pendingResolve > 0 {
		s.pendingResolve--
	}
	if ev.err != nil {
		level.Warn(s.logger).Log("msg", "contact point resolution failed", "contact_point", ev.addr, "err", ev.err)
		s.lastResolveErr = ev.err
	} else {
		for _, addr := range ev.addrs {
			s.registry.GetOrAdd(addr, false)
		}
	}
	if s.pendingResolve > 0 || s.State() != StateConnecting {
		return
	}
	if s.registry.Len() == 0 {
		err := errors.New("session: unable to resolve any contact point")
		if s.lastResolveErr != nil {
			err = errors.Wrap(s.lastResolveErr, "session: unable to resolve any contact point")
		}
		s.failConnect(err)
		return
	}

	var addrs []string
	for _, h := range s.registry.Snapshot() {
		addrs = append(addrs, h.Address())
	}
	s.control.Connect(controlListener{s}, addrs)
}

func (s *Session) handleControlReady() {
	if s.State() != StateConnecting {
		return
	}

	hosts := s.registry.Snapshot()
	addrs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		addrs = append(addrs, h.Address())
	}
	s.policy.Init(addrs)

	s.pendingPools = len(hosts) * len(s.workers)
	s.pendingWorkers = len(s.workers)
	for _, w := range s.workers {
		for _, addr := range addrs {
			w.AddHost(addr)
		}
		w.SignalReady()
	}
	s.maybeFinishConnect()
}

func (s *Session) handleControlError(err error) {
	if s.State() != StateConnecting {
		level.Warn(s.logger).Log("msg", "control connection error", "err", err)
		return
	}
	s.failConnect(err)
}

func (s *Session) failConnect(err error) {
	level.Error(s.logger).Log("msg", "connect failed", "err", err)
	if s.connectFut != nil {
		_ = s.connectFut.Fail(err)
	}
	s.setState(StateConnectFailed)
	s.beginShutdown()
}

func (s *Session) maybeFinishConnect() {
	if s.State() != StateConnecting {
		return
	}
	if s.pendingResolve != 0 || s.pendingPools != 0 || s.pendingWorkers != 0 {
		return
	}
	if len(s.registry.UpAddresses()) == 0 {
		s.failConnect(errors.New("session: unable to connect to any host"))
		return
	}
	s.setState(StateReady)
	level.Info(s.logger).Log("msg", "session ready", "hosts", s.registry.Len())
	_ = s.connectFut.Resolve(s)
}

func (s *Session) handleTopology(addrs []string) {
	s.registry.NextGeneration()

	var added []string
	for _, addr := range addrs {
		if _, isNew := s.registry.GetOrAdd(addr, true); isNew {
			added = append(added, addr)
		}
	}
	for _, addr := range added {
		s.policy.OnHostAdded(addr)
		if s.State() == StateReady {
			for _, w := range s.workers {
				w.AddHost(addr)
			}
		}
	}

	evicted := s.registry.Purge(!s.snapshotApplied)
	s.snapshotApplied = true
	for _, h := range evicted {
		level.Info(s.logger).Log("msg", "host evicted", "host", h.Address())
		s.dropHost(h.Address())
	}
	s.refreshHostsGauge()
}

func (s *Session) handleHostAdded(addr string) {
	_, isNew := s.registry.GetOrAdd(addr, true)
	if !isNew {
		return
	}
	level.Info(s.logger).Log("msg", "host added", "host", addr)
	s.policy.OnHostAdded(addr)
	if s.State() == StateReady {
		for _, w := range s.workers {
			w.AddHost(addr)
		}
	}
}

func (s *Session) handleHostRemoved(addr string) {
	if h := s.registry.Remove(addr); h == nil {
		return
	}
	level.Info(s.logger).Log("msg", "host removed", "host", addr)
	s.dropHost(addr)
	s.refreshHostsGauge()
}

// dropHost detaches an already-deregistered host from the policy, the
// workers, and any pending reconnect timer.
func (s *Session) dropHost(addr string) {
	s.policy.OnHostRemoved(addr)
	for _, w := range s.workers {
		w.RemoveHost(addr)
	}
	if t, ok := s.reconnectTimers[addr]; ok {
		t.Stop()
		delete(s.reconnectTimers, addr)
	}
	delete(s.failedPools, addr)
}

func (s *Session) handleNotifyUp(addr string) {
	h := s.registry.Get(addr)
	if h == nil || h.State() == host.StateRemoved {
		return
	}
	s.markUp(addr, h)
	// Re-dial pools that were torn down while the host was unreachable.
	for _, w := range s.workers {
		w.HostUp(addr)
	}
}

func (s *Session) markUp(addr string, h *host.Host) {
	if h.IsUp() {
		return
	}
	h.SetState(host.StateUp)
	h.ResetReconnect()
	level.Info(s.logger).Log("msg", "host up", "host", addr)
	s.policy.OnHostUp(addr)
	if t, ok := s.reconnectTimers[addr]; ok {
		t.Stop()
		delete(s.reconnectTimers, addr)
	}
	s.refreshHostsGauge()
}

func (s *Session) handleNotifyDown(addr string, critical bool) {
	h := s.registry.Get(addr)
	if h == nil || h.State() == host.StateRemoved {
		return
	}
	if h.State() == host.StateDown {
		return
	}
	h.SetState(host.StateDown)
	level.Info(s.logger).Log("msg", "host down", "host", addr, "critical", critical)
	s.policy.OnHostDown(addr, critical)
	for _, w := range s.workers {
		w.HostDown(addr)
	}
	s.refreshHostsGauge()
	s.scheduleReconnect(addr, h.NextReconnectDelay(critical))
}

func (s *Session) scheduleReconnect(addr string, delay time.Duration) {
	if s.closing {
		return
	}
	if _, ok := s.reconnectTimers[addr]; ok {
		return
	}
	level.Debug(s.logger).Log("msg", "reconnect scheduled", "host", addr, "delay", delay)
	s.reconnectTimers[addr] = time.AfterFunc(delay, func() {
		s.sendEvent(event{typ: evReconnect, addr: addr})
	})
}

func (s *Session) handleReconnect(addr string) {
	delete(s.reconnectTimers, addr)
	if s.closing {
		return
	}
	h := s.registry.Get(addr)
	if h == nil || h.State() != host.StateDown {
		return
	}
	level.Debug(s.logger).Log("msg", "reconnecting", "host", addr)
	for _, w := range s.workers {
		w.HostUp(addr)
	}
}

func (s *Session) handlePoolReady(ev event) {
	if s.State() == StateConnecting && s.pendingPools > 0 {
		s.pendingPools--
	}
	delete(s.failedPools, ev.addr)

	h := s.registry.Get(ev.addr)
	if h != nil && h.State() != host.StateRemoved {
		s.markUp(ev.addr, h)
	}
	s.maybeFinishConnect()
}

func (s *Session) handlePoolConnectFailed(ev event) {
	if s.State() == StateConnecting && s.pendingPools > 0 {
		s.pendingPools--
	}

	s.failedPools[ev.addr]++
	if s.failedPools[ev.addr] >= len(s.workers) {
		delete(s.failedPools, ev.addr)
		if h := s.registry.Get(ev.addr); h != nil && h.State() != host.StateRemoved {
			if h.IsUp() {
				s.handleNotifyDown(ev.addr, false)
			} else {
				h.SetState(host.StateDown)
				s.scheduleReconnect(ev.addr, h.NextReconnectDelay(false))
			}
		}
	}
	s.maybeFinishConnect()
}

func (s *Session) handleWorkerReady() {
	if s.State() == StateConnecting && s.pendingWorkers > 0 {
		s.pendingWorkers--
	}
	s.maybeFinishConnect()
}

func (s *Session) handleWorkerClosed() {
	if !s.closing {
		return
	}
	if s.pendingWorkers > 0 {
		s.pendingWorkers--
	}
	if s.pendingWorkers == 0 {
		s.finishClose()
	}
}

// beginShutdown starts the close sequence: stop intake, cancel reconnect
// timers, fail a still-pending connect, and drain in-flight requests
// bounded by the shutdown timeout. Idempotent.
func (s *Session) beginShutdown() {
	if s.closing {
		return
	}
	s.closing = true
	if s.State() != StateConnectFailed {
		s.setState(StateClosing)
	}
	level.Info(s.logger).Log("msg", "session closing")

	if s.connectFut != nil && !s.connectFut.Resolved() {
		_ = s.connectFut.Fail(ErrSessionClosing)
	}
	for addr, t := range s.reconnectTimers {
		t.Stop()
		delete(s.reconnectTimers, addr)
	}

	if s.inflight.Load() == 0 && s.queue.Len() == 0 {
		s.finishDrain()
		return
	}
	go s.watchDrain()
}

// watchDrain waits off-loop for in-flight requests to finish, bounded by
// the shutdown timeout, then posts the drained event.
func (s *Session) watchDrain() {
	deadline := time.NewTimer(s.config.ShutdownTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline.C:
			level.Warn(s.logger).Log("msg", "shutdown timeout; force-failing stragglers")
			s.sendEvent(event{typ: evDrained})
			return
		case <-tick.C:
			if s.inflight.Load() == 0 {
				s.sendEvent(event{typ: evDrained})
				return
			}
		}
	}
}

// finishDrain force-fails whatever is still queued and stops the workers.
func (s *Session) finishDrain() {
	if s.drained {
		return
	}
	s.drained = true

	for _, h := range s.queue.Close() {
		h.Complete(nil, ErrSessionClosing)
	}

	s.pendingWorkers = len(s.workers)
	if s.pendingWorkers == 0 {
		s.finishClose()
		return
	}
	for _, w := range s.workers {
		w.Close()
	}
}

// finishClose closes the control connection and resolves the close future.
func (s *Session) finishClose() {
	if s.control != nil {
		s.control.Close()
	}
	s.setState(StateClosed)
	s.refreshHostsGauge()
	level.Info(s.logger).Log("msg", "session closed")

	s.closeMu.Lock()
	fut := s.ensureCloseFutureLocked()
	s.closeMu.Unlock()
	_ = fut.Resolve(nil)
}

func (s *Session) refreshHostsGauge() {
	if s.State() == StateClosed {
		s.metrics.hostsUp.Set(0)
		return
	}
	s.metrics.hostsUp.Set(float64(len(s.registry.UpAddresses())))
}
