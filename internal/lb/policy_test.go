// Package lb defines the load-balancing policy collaborator and its
// built-in implementations.
// This file contains tests for the round-robin and hostpool-backed
// policies.
package lb

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundRobinRotation verifies that consecutive candidate lists lead
// with different hosts and always cover every up host.
func TestRoundRobinRotation(t *testing.T) {
	p := NewRoundRobin()
	p.Init([]string{"a", "b", "c"})

	assert.Equal(t, []string{"a", "b", "c"}, p.Candidates())
	assert.Equal(t, []string{"b", "c", "a"}, p.Candidates())
	assert.Equal(t, []string{"c", "a", "b"}, p.Candidates())
	assert.Equal(t, []string{"a", "b", "c"}, p.Candidates())
}

// TestRoundRobinEmpty verifies the no-hosts edge.
func TestRoundRobinEmpty(t *testing.T) {
	p := NewRoundRobin()
	assert.Empty(t, p.Candidates())
}

// TestRoundRobinDownFiltering verifies that down hosts drop out of the
// rotation and return once reported up again.
func TestRoundRobinDownFiltering(t *testing.T) {
	p := NewRoundRobin()
	p.Init([]string{"a", "b", "c"})

	p.OnHostDown("b", false)
	for i := 0; i < 3; i++ {
		assert.NotContains(t, p.Candidates(), "b")
	}

	p.OnHostUp("b")
	assert.Contains(t, p.Candidates(), "b")
}

// TestRoundRobinAddedNotRoutable verifies that a freshly added host stays
// out of candidate lists until its first up notification.
func TestRoundRobinAddedNotRoutable(t *testing.T) {
	p := NewRoundRobin()
	p.Init([]string{"a"})

	p.OnHostAdded("b")
	assert.Equal(t, []string{"a"}, p.Candidates())

	p.OnHostUp("b")
	assert.ElementsMatch(t, []string{"a", "b"}, p.Candidates())
}

// TestRoundRobinRemove verifies that removal drops a host from rotation
// and that a later up notification re-admits it.
func TestRoundRobinRemove(t *testing.T) {
	p := NewRoundRobin()
	p.Init([]string{"a", "b"})

	p.OnHostRemoved("b")
	assert.Equal(t, []string{"a"}, p.Candidates())

	// Re-adding via an up notification is legitimate: the policy has no
	// authority over membership, only over ordering.
	p.OnHostUp("b")
	assert.ElementsMatch(t, []string{"a", "b"}, p.Candidates())
}

// TestRoundRobinInitIdempotent verifies that repeated Init calls do not
// duplicate hosts.
func TestRoundRobinInitIdempotent(t *testing.T) {
	p := NewRoundRobin()
	p.Init([]string{"a", "b"})
	p.Init([]string{"a", "b"})
	assert.Len(t, p.Candidates(), 2)
}

// TestRoundRobinConcurrent verifies that Candidates is safe under
// concurrent dispatch alongside membership churn.
func TestRoundRobinConcurrent(t *testing.T) {
	p := NewRoundRobin()
	p.Init([]string{"a", "b", "c"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = p.Candidates()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			p.OnHostDown("b", false)
			p.OnHostUp("b")
		}
	}()
	wg.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, p.Candidates())
}

// TestHostPoolCandidates verifies that the hostpool-backed policy covers
// every up host and leads with the pool's pick.
func TestHostPoolCandidates(t *testing.T) {
	p := NewHostPool()
	p.Init([]string{"a", "b", "c"})

	c := p.Candidates()
	require.Len(t, c, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, c)
}

// TestHostPoolDownFiltering verifies that a down host drops out of the
// candidate list regardless of what the pool picks as lead.
func TestHostPoolDownFiltering(t *testing.T) {
	p := NewHostPool()
	p.Init([]string{"a", "b"})

	// Take a candidate list first so a response is pending for the lead.
	_ = p.Candidates()

	p.OnHostDown("a", false)
	for i := 0; i < 5; i++ {
		assert.NotContains(t, p.Candidates(), "a")
	}

	p.OnHostUp("a")
	assert.Contains(t, p.Candidates(), "a")
}

// TestHostPoolMembership verifies add and remove reach the underlying pool
// without disturbing the other hosts.
func TestHostPoolMembership(t *testing.T) {
	p := NewHostPool()
	p.Init([]string{"a"})

	p.OnHostAdded("b")
	// Added but not yet up: only a is routable.
	assert.Equal(t, []string{"a"}, p.Candidates())

	p.OnHostUp("b")
	assert.ElementsMatch(t, []string{"a", "b"}, p.Candidates())

	p.OnHostRemoved("b")
	assert.Equal(t, []string{"a"}, p.Candidates())
}
