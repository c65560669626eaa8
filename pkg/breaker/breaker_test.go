package breaker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/breaker"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := breaker.New(3, time.Minute)

	assert.Equal(t, breaker.StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, breaker.StateClosed, cb.State(), "below threshold stays closed")
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, breaker.StateOpen, cb.State())
	assert.False(t, cb.Allow(), "open circuit must short-circuit")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := breaker.New(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	// The counter restarted, so two more failures must not open the circuit.
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, breaker.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	t.Parallel()

	cb := breaker.New(1, 20*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, breaker.StateOpen, cb.State())
	require.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, breaker.StateHalfOpen, cb.State())

	assert.True(t, cb.Allow(), "first caller gets the probe slot")
	assert.False(t, cb.Allow(), "second caller must wait for the probe result")

	stats := cb.Stats()
	assert.Equal(t, "half_open", stats.State)
	assert.True(t, stats.ProbeInFlight)
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	t.Parallel()

	cb := breaker.New(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, breaker.StateClosed, cb.State())
	assert.True(t, cb.Allow())
	assert.Zero(t, cb.Stats().ConsecutiveFailures)
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()

	cb := breaker.New(1, 15*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(25 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, breaker.StateOpen, cb.State())
	assert.False(t, cb.Allow(), "recovery timer restarted on probe failure")

	// After another recovery timeout a new probe is allowed.
	time.Sleep(25 * time.Millisecond)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := breaker.New(0, 0)

	for range breaker.DefaultFailureThreshold - 1 {
		cb.RecordFailure()
	}
	assert.Equal(t, breaker.StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, breaker.StateOpen, cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	cb := breaker.New(100, time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if cb.Allow() {
					cb.RecordFailure()
				}
				cb.State()
				cb.Stats()
			}
		}()
	}
	wg.Wait()

	// 1000 recorded failures with threshold 100 must have opened the circuit.
	assert.Equal(t, breaker.StateOpen, cb.State())
	assert.False(t, cb.Allow())
}
