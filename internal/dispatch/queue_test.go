// Package dispatch implements the request dispatch path between caller
// goroutines and I/O workers.
// This file contains tests for the bounded MPMC queue and the wake
// primitive.
package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/cassio/internal/future"
)

func newTestHandler(statement string) *RequestHandler {
	return NewRequestHandler(Request{Kind: KindExecute, Statement: statement}, nil, future.New())
}

// TestQueuePushPop verifies FIFO ordering through wraparound.
func TestQueuePushPop(t *testing.T) {
	q := NewQueue(4)

	// Empty queue pops nothing.
	_, ok := q.Pop()
	assert.False(t, ok)

	// Push/pop several times the capacity so head wraps the ring.
	for round := 0; round < 3; round++ {
		a := newTestHandler("a")
		b := newTestHandler("b")
		require.NoError(t, q.Push(a))
		require.NoError(t, q.Push(b))
		assert.Equal(t, 2, q.Len())

		got, ok := q.Pop()
		require.True(t, ok)
		assert.Same(t, a, got)
		got, ok = q.Pop()
		require.True(t, ok)
		assert.Same(t, b, got)
		assert.Equal(t, 0, q.Len())
	}
}

// TestQueueFull verifies the non-blocking full behavior.
func TestQueueFull(t *testing.T) {
	q := NewQueue(2)

	require.NoError(t, q.Push(newTestHandler("a")))
	require.NoError(t, q.Push(newTestHandler("b")))
	assert.Equal(t, ErrQueueFull, q.Push(newTestHandler("c")))

	// Popping frees a slot.
	_, ok := q.Pop()
	require.True(t, ok)
	assert.NoError(t, q.Push(newTestHandler("c")))
}

// TestQueueClose verifies that Close rejects further pushes and hands back
// every still-queued handler in FIFO order, exactly once.
func TestQueueClose(t *testing.T) {
	q := NewQueue(4)

	a := newTestHandler("a")
	b := newTestHandler("b")
	require.NoError(t, q.Push(a))
	require.NoError(t, q.Push(b))

	remaining := q.Close()
	require.Len(t, remaining, 2)
	assert.Same(t, a, remaining[0])
	assert.Same(t, b, remaining[1])

	// Closed queue: pushes fail, pops find nothing, a second Close
	// returns nothing.
	assert.Equal(t, ErrQueueClosed, q.Push(newTestHandler("c")))
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Nil(t, q.Close())
}

// TestQueueInvalidCapacity verifies the constructor contract.
func TestQueueInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewQueue(0) })
	assert.Panics(t, func() { NewQueue(-1) })
}

// TestQueueConcurrentExactlyOnce hammers the queue with many producers and
// consumers and verifies every pushed handler is popped by exactly one
// consumer and none is lost or duplicated.
func TestQueueConcurrentExactlyOnce(t *testing.T) {
	const (
		producers   = 8
		perProducer = 1250 // 10k items total
		consumers   = 4
	)
	q := NewQueue(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, q.Push(newTestHandler("x")))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, producers*perProducer, q.Len())

	seen := make(map[*RequestHandler]int)
	var mu sync.Mutex
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				h, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[h]++
				mu.Unlock()
			}
		}()
	}
	cwg.Wait()

	assert.Len(t, seen, producers*perProducer, "every handler popped")
	for h, n := range seen {
		if n != 1 {
			t.Fatalf("handler %p popped %d times", h, n)
		}
	}
	assert.Equal(t, 0, q.Len())
}

// TestWakerCoalesces verifies that any number of signals collapse into a
// single pending wake, and that the waker can be re-armed afterwards.
func TestWakerCoalesces(t *testing.T) {
	w := NewWaker()

	for i := 0; i < 100; i++ {
		w.Signal()
	}

	// Exactly one wake is pending.
	select {
	case <-w.C():
	default:
		t.Fatal("expected a pending wake")
	}
	select {
	case <-w.C():
		t.Fatal("signals did not coalesce into a single wake")
	default:
	}

	// Re-armed after consumption.
	w.Signal()
	select {
	case <-w.C():
	default:
		t.Fatal("waker did not re-arm")
	}
}
