package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("gemini", CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		allowed, err := cb.Allow()
		assert.True(t, allowed)
		assert.NoError(t, err)
	}

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini")
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("openai", CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.ConsecutiveFailures())

	// The count starts over; two more failures stay under the threshold.
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("anthropic", CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	// After the reset timeout one probe is allowed through.
	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Concurrent requests are rejected while the probe is in flight.
	allowed, err = cb.Allow()
	assert.False(t, allowed)
	assert.Error(t, err)
}

func TestCircuitBreakerHalfOpenOutcomes(t *testing.T) {
	t.Run("probe success closes", func(t *testing.T) {
		cb := NewCircuitBreaker("p", CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
		cb.RecordFailure()
		time.Sleep(5 * time.Millisecond)
		_, _ = cb.Allow()

		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
	})

	t.Run("probe failure reopens", func(t *testing.T) {
		cb := NewCircuitBreaker("p", CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
		cb.RecordFailure()
		time.Sleep(5 * time.Millisecond)
		_, _ = cb.Allow()

		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
	})
}

func TestCircuitBreakerManualReset(t *testing.T) {
	cb := NewCircuitBreaker("gemini", CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestBreakerSetIsolatesProviders(t *testing.T) {
	set := NewBreakerSet(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})

	set.For("gemini").RecordFailure()
	assert.Equal(t, CircuitOpen, set.For("gemini").State())

	// An outage at one vendor leaves the others closed.
	assert.Equal(t, CircuitClosed, set.For("openai").State())
	assert.Equal(t, CircuitClosed, set.For("anthropic").State())
}

func TestBreakerSetReturnsSameBreaker(t *testing.T) {
	set := NewBreakerSet(DefaultCircuitBreakerConfig())
	assert.Same(t, set.For("gemini"), set.For("gemini"))
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
