// Package control defines the control-connection collaborator.
// This file contains tests for the TCP prober, driven through a mock
// reachability check.
package control

import (
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingListener captures every callback for later assertions.
type recordingListener struct {
	mu       sync.Mutex
	ready    int
	errs     []error
	topology [][]string
	added    []string
	removed  []string
	ups      []string
	downs    []string
}

func (r *recordingListener) OnControlReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready++
}

func (r *recordingListener) OnControlError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingListener) OnTopology(addrs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topology = append(r.topology, append([]string(nil), addrs...))
}

func (r *recordingListener) OnHostAdded(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, addr)
}

func (r *recordingListener) OnHostRemoved(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, addr)
}

func (r *recordingListener) OnHostUp(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ups = append(r.ups, addr)
}

func (r *recordingListener) OnHostDown(addr string, critical bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downs = append(r.downs, addr)
}

func (r *recordingListener) readyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *recordingListener) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *recordingListener) downCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.downs)
}

func (r *recordingListener) upCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ups)
}

func newTestProber(maxFailures int) *Prober {
	return NewProber(log.NewNopLogger(), 10*time.Millisecond, time.Second, maxFailures)
}

// TestProberReady verifies the initial sequence: the contact points are
// reported as the topology snapshot, then ready fires once at least one is
// reachable.
func TestProberReady(t *testing.T) {
	p := newTestProber(3)
	defer p.Close()
	p.SetCheckFunc(func(addr string) error { return nil })

	l := &recordingListener{}
	p.Connect(l, []string{"a:9042", "b:9042"})

	require.Eventually(t, func() bool { return l.readyCount() == 1 },
		time.Second, 5*time.Millisecond, "prober never signalled ready")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, []string{"a:9042", "b:9042"}, l.added)
	require.Len(t, l.topology, 1)
	assert.Equal(t, []string{"a:9042", "b:9042"}, l.topology[0])
	assert.Empty(t, l.errs)
	assert.True(t, p.Healthy("a:9042"))
	assert.True(t, p.Healthy("b:9042"))
}

// TestProberNoContactPoints verifies the immediate error when there is
// nothing to probe.
func TestProberNoContactPoints(t *testing.T) {
	p := newTestProber(3)
	defer p.Close()

	l := &recordingListener{}
	p.Connect(l, nil)

	require.Eventually(t, func() bool { return l.errCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, l.readyCount())
}

// TestProberAllUnreachable verifies that ready never fires when every
// contact point fails its initial probe.
func TestProberAllUnreachable(t *testing.T) {
	p := newTestProber(3)
	defer p.Close()
	p.SetCheckFunc(func(addr string) error { return errors.New("connection refused") })

	l := &recordingListener{}
	p.Connect(l, []string{"a:9042", "b:9042"})

	require.Eventually(t, func() bool { return l.errCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, l.readyCount())
	assert.False(t, p.Healthy("a:9042"))
}

// TestProberDownAfterConsecutiveFailures verifies the down transition: a
// host is only reported down after maxFailures consecutive failed probes,
// and recovers with a single successful one.
func TestProberDownAfterConsecutiveFailures(t *testing.T) {
	p := newTestProber(2)
	defer p.Close()

	var mu sync.Mutex
	failing := false
	p.SetCheckFunc(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if failing && addr == "b:9042" {
			return errors.New("connection refused")
		}
		return nil
	})

	l := &recordingListener{}
	p.Connect(l, []string{"a:9042", "b:9042"})
	require.Eventually(t, func() bool { return l.readyCount() == 1 },
		time.Second, 5*time.Millisecond)

	// Start failing b. After two consecutive failed probes it goes down.
	mu.Lock()
	failing = true
	mu.Unlock()
	require.Eventually(t, func() bool { return l.downCount() >= 1 },
		time.Second, 5*time.Millisecond, "host never reported down")

	l.mu.Lock()
	assert.Equal(t, "b:9042", l.downs[0])
	l.mu.Unlock()
	assert.False(t, p.Healthy("b:9042"))
	assert.True(t, p.Healthy("a:9042"))

	// Recovery: one good probe brings it back.
	mu.Lock()
	failing = false
	mu.Unlock()
	require.Eventually(t, func() bool { return l.upCount() >= 1 },
		time.Second, 5*time.Millisecond, "host never reported up again")

	l.mu.Lock()
	assert.Equal(t, "b:9042", l.ups[0])
	l.mu.Unlock()
	assert.True(t, p.Healthy("b:9042"))
}

// TestProberSingleBlipStaysUp verifies that one failed probe below the
// threshold does not flap the host down.
func TestProberSingleBlipStaysUp(t *testing.T) {
	p := newTestProber(3)
	defer p.Close()

	var mu sync.Mutex
	fails := 0
	p.SetCheckFunc(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if fails > 0 {
			fails--
			return errors.New("timeout")
		}
		return nil
	})

	l := &recordingListener{}
	p.Connect(l, []string{"a:9042"})
	require.Eventually(t, func() bool { return l.readyCount() == 1 },
		time.Second, 5*time.Millisecond)

	// A single blip, then healthy again.
	mu.Lock()
	fails = 1
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, l.downCount())
	assert.True(t, p.Healthy("a:9042"))
}

// TestProberCloseStopsCallbacks verifies that Close blocks until the probe
// loop has stopped and no callback is delivered afterwards.
func TestProberCloseStopsCallbacks(t *testing.T) {
	p := newTestProber(1)
	p.SetCheckFunc(func(addr string) error { return nil })

	l := &recordingListener{}
	p.Connect(l, []string{"a:9042"})
	require.Eventually(t, func() bool { return l.readyCount() == 1 },
		time.Second, 5*time.Millisecond)

	p.Close()

	before := l.upCount() + l.downCount() + l.errCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, l.upCount()+l.downCount()+l.errCount())
}
