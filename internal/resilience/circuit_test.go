package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	failN(cb, 3)

	assert.Equal(t, CircuitOpen, cb.State())
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	failN(cb, 2)

	failures, state := cb.Counters()
	assert.Equal(t, 2, failures)
	assert.Equal(t, CircuitClosed, state)

	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	failures, _ = cb.Counters()
	assert.Zero(t, failures)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(11 * time.Second)
	failN(cb, 1)

	_, state := cb.Counters()
	assert.Equal(t, CircuitOpen, state)
}

func TestCircuitBreaker_ShouldTripFilters(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})
	failN(cb, 3)
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return NewTransientError(errors.New("503"), 503)
	})
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "page", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "page", val)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	var transitions []CircuitState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange:    func(_, to CircuitState) { transitions = append(transitions, to) },
	})
	failN(cb, 1)
	cb.Reset()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []CircuitState{CircuitOpen, CircuitClosed}, transitions)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

func TestServiceBreakers(t *testing.T) {
	var mu sync.Mutex
	changes := map[string]CircuitState{}
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1}, func(service string, _, to CircuitState) {
		mu.Lock()
		changes[service] = to
		mu.Unlock()
	})

	jina := sb.Get("jina")
	assert.Same(t, jina, sb.Get("jina"))
	sb.Get("anthropic")

	failN(jina, 1)

	assert.Equal(t, []string{"anthropic", "jina"}, sb.Services())
	assert.Equal(t, map[string]CircuitState{"anthropic": CircuitClosed, "jina": CircuitOpen}, sb.States())
	assert.Equal(t, map[string]CircuitState{"jina": CircuitOpen}, changes)
}

func TestServiceBreakers_Concurrent(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sb.Get("firecrawl")
		}()
	}
	wg.Wait()
	assert.Len(t, sb.Services(), 1)
}
