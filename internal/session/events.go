// Package session implements the driver's session orchestrator.
// This file defines the session's event variants and the adapters that
// funnel collaborator callbacks onto the single event queue.
package session

import (
	"github.com/dreamware/cassio/internal/future"
)

// eventType enumerates the lifecycle events consumed by the session loop.
// Every cross-thread input is one of these, whether it comes from a caller,
// a worker, the control connection, a timer, or a resolution goroutine;
// nothing else mutates session state.
type eventType int

const (
	evConnect eventType = iota
	evClose
	evDrained
	evResolved
	evControlReady
	evControlError
	evTopology
	evHostAdded
	evHostRemoved
	evNotifyUp
	evNotifyDown
	evReconnect
	evSetKeyspace
	evPoolReady
	evPoolClosed
	evPoolConnectFailed
	evWorkerReady
	evWorkerClosed
)

// event is the tagged variant carried on the session queue. Only the
// fields relevant to the type are set.
type event struct {
	typ      eventType
	addr     string
	addrs    []string
	critical bool
	keyspace string
	err      error
	workerID int

	// fut carries the connect future on evConnect, so the field on the
	// session is only ever assigned by the loop.
	fut *future.Future
}

// sendEvent enqueues ev, blocking if the queue is momentarily full.
// Returns false once the session loop has exited. Never called from the
// loop itself; loop-internal transitions invoke handlers directly.
func (s *Session) sendEvent(ev event) bool {
	select {
	case <-s.loopDone:
		return false
	case s.events <- ev:
		return true
	}
}

// trySendEvent is the non-blocking variant used by repeatable
// control-connection notifications, which must never be able to wedge
// against a session that is busy tearing the control connection down.
func (s *Session) trySendEvent(ev event) bool {
	select {
	case <-s.loopDone:
		return false
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// sendEventAsync delivers ev from its own goroutine. Used for the one-shot
// control outcomes: delivery is guaranteed while the loop lives (a drop
// would wedge connect forever), yet the control connection's goroutine
// never blocks, so its teardown cannot deadlock against a full queue.
func (s *Session) sendEventAsync(ev event) {
	go s.sendEvent(ev)
}

// NotifyUpAsync enqueues a host-up notification. Reports whether the
// session loop was still accepting events.
func (s *Session) NotifyUpAsync(addr string) bool {
	return s.sendEvent(event{typ: evNotifyUp, addr: addr})
}

// NotifyDownAsync enqueues a host-down notification. critical bypasses
// reconnection backoff.
func (s *Session) NotifyDownAsync(addr string, critical bool) bool {
	return s.sendEvent(event{typ: evNotifyDown, addr: addr, critical: critical})
}

// NotifyReadyAsync enqueues a worker's ready report.
func (s *Session) NotifyReadyAsync(workerID int) bool {
	return s.sendEvent(event{typ: evWorkerReady, workerID: workerID})
}

// NotifyClosedAsync enqueues a worker's closed report.
func (s *Session) NotifyClosedAsync(workerID int) bool {
	return s.sendEvent(event{typ: evWorkerClosed, workerID: workerID})
}

// controlListener adapts control.Listener callbacks into session events.
// Callbacks may arrive from any goroutine and never block the caller. The
// one-shot ready/error outcomes get guaranteed delivery; the repeatable
// topology and up/down notifications may be dropped under pressure, since
// the next refresh or probe repeats them.
type controlListener struct {
	s *Session
}

func (c controlListener) OnControlReady() {
	c.s.sendEventAsync(event{typ: evControlReady})
}

func (c controlListener) OnControlError(err error) {
	c.s.sendEventAsync(event{typ: evControlError, err: err})
}

func (c controlListener) OnTopology(addrs []string) {
	cp := append([]string(nil), addrs...)
	c.s.trySendEvent(event{typ: evTopology, addrs: cp})
}

func (c controlListener) OnHostAdded(addr string) {
	c.s.trySendEvent(event{typ: evHostAdded, addr: addr})
}

func (c controlListener) OnHostRemoved(addr string) {
	c.s.trySendEvent(event{typ: evHostRemoved, addr: addr})
}

func (c controlListener) OnHostUp(addr string) {
	c.s.trySendEvent(event{typ: evNotifyUp, addr: addr})
}

func (c controlListener) OnHostDown(addr string, critical bool) {
	c.s.trySendEvent(event{typ: evNotifyDown, addr: addr, critical: critical})
}

// workerEvents adapts worker.Events reports into session events. Worker
// reports use the blocking send: a worker blocked briefly on the event
// queue is harmless, and pool/closed reports must not be lost.
type workerEvents struct {
	s *Session
}

func (w workerEvents) OnPoolReady(workerID int, addr string) {
	w.s.sendEvent(event{typ: evPoolReady, workerID: workerID, addr: addr})
}

func (w workerEvents) OnPoolClosed(workerID int, addr string) {
	w.s.sendEvent(event{typ: evPoolClosed, workerID: workerID, addr: addr})
}

func (w workerEvents) OnPoolConnectFailed(workerID int, addr string, err error) {
	w.s.sendEvent(event{typ: evPoolConnectFailed, workerID: workerID, addr: addr, err: err})
}

func (w workerEvents) OnWorkerReady(workerID int) {
	w.s.NotifyReadyAsync(workerID)
}

func (w workerEvents) OnWorkerClosed(workerID int) {
	w.s.NotifyClosedAsync(workerID)
}
