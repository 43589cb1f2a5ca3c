// Package host tracks cluster membership for a session.
// This file contains tests for the Host type: state transitions and the
// reconnection delay schedule.
package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewHost verifies that a fresh host starts in StateAdded.
func TestNewHost(t *testing.T) {
	h := New("10.0.0.1:9042", 100*time.Millisecond, time.Second)

	assert.Equal(t, "10.0.0.1:9042", h.Address())
	assert.Equal(t, StateAdded, h.State())
	assert.False(t, h.IsUp())
	assert.Zero(t, h.LastReconnectDelay())
}

// TestHostStateTransitions verifies SetState and IsUp across the lifecycle.
func TestHostStateTransitions(t *testing.T) {
	h := New("10.0.0.1:9042", 100*time.Millisecond, time.Second)

	h.SetState(StateUp)
	assert.Equal(t, StateUp, h.State())
	assert.True(t, h.IsUp())

	h.SetState(StateDown)
	assert.Equal(t, StateDown, h.State())
	assert.False(t, h.IsUp())

	h.SetState(StateRemoved)
	assert.Equal(t, StateRemoved, h.State())
}

// TestStateString verifies the readable state names used in logs.
func TestStateString(t *testing.T) {
	assert.Equal(t, "added", StateAdded.String())
	assert.Equal(t, "up", StateUp.String())
	assert.Equal(t, "down", StateDown.String())
	assert.Equal(t, "removed", StateRemoved.String())
	assert.Equal(t, "state(99)", State(99).String())
}

// TestNextReconnectDelayCritical verifies that a critical failure bypasses
// backoff entirely: the delay is zero regardless of failure history.
func TestNextReconnectDelayCritical(t *testing.T) {
	h := New("10.0.0.1:9042", 100*time.Millisecond, time.Second)

	// Burn a few normal failures first so the schedule has advanced.
	for i := 0; i < 3; i++ {
		require.Positive(t, h.NextReconnectDelay(false))
	}

	// A critical failure still reconnects immediately.
	assert.Zero(t, h.NextReconnectDelay(true))
	assert.Zero(t, h.LastReconnectDelay())
}

// TestNextReconnectDelayBackoff verifies that normal failures produce
// positive, bounded, generally growing delays, and that ResetReconnect
// restores the schedule to its base.
func TestNextReconnectDelayBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	h := New("10.0.0.1:9042", base, max)

	first := h.NextReconnectDelay(false)
	assert.Positive(t, first)
	assert.Equal(t, first, h.LastReconnectDelay())

	// The schedule is jittered, so assert bounds rather than exact values.
	// With the default randomization factor the first delay stays within
	// half the base and double it.
	assert.GreaterOrEqual(t, first, base/2)
	assert.LessOrEqual(t, first, 2*base)

	// Advance well past the cap; every delay stays bounded.
	for i := 0; i < 10; i++ {
		d := h.NextReconnectDelay(false)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, 2*max)
	}

	// After a reset the schedule is back near the base delay.
	h.ResetReconnect()
	again := h.NextReconnectDelay(false)
	assert.GreaterOrEqual(t, again, base/2)
	assert.LessOrEqual(t, again, 2*base)
}

// TestHostString verifies the Stringer output.
func TestHostString(t *testing.T) {
	h := New("10.0.0.1:9042", 100*time.Millisecond, time.Second)
	h.SetState(StateUp)
	assert.Equal(t, "10.0.0.1:9042(up)", h.String())
}
