package reliability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/vaultkeyring/internal/monitoring"
	"github.com/hengadev/vaultkeyring/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(config CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(config)
	cb.now = clock.Now
	return cb, clock
}

func fail(ctx context.Context) (bool, error) {
	return true, errors.New("connection refused")
}

func succeed(ctx context.Context) (bool, error) {
	return false, nil
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(ctx, fail))
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) (bool, error) {
		called = true
		return false, nil
	})
	assert.True(t, IsCircuitOpenError(err))
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// a failed trial reopens the circuit for another cooldown
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleTrialInFlight(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(ctx, func(ctx context.Context) (bool, error) {
			close(started)
			<-release
			return false, nil
		})
	}()
	<-started

	assert.True(t, IsCircuitOpenError(cb.Execute(ctx, succeed)))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledCallerDoesNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) (bool, error) { return true, ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Second)
	_ = cb.Execute(ctx, succeed)

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
	assert.Equal(t, "CLOSED", cb.Stats().State)
}

type scriptedTransport struct {
	mu        sync.Mutex
	responses []*store.Response
	errs      []error
	calls     int
}

func (s *scriptedTransport) Do(ctx context.Context, req store.Request) (*store.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], s.errs[i]
}

func TestTransport_TripsOnServerErrorsOnly(t *testing.T) {
	next := &scriptedTransport{
		responses: []*store.Response{
			{StatusCode: http.StatusNotFound},
			{StatusCode: http.StatusForbidden},
			{StatusCode: http.StatusServiceUnavailable},
			nil,
		},
		errs: []error{nil, nil, nil, errors.New("dial tcp: connection refused")},
	}
	metrics := monitoring.NewInMemoryMetricsCollector()
	transport := NewTransport(next, CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Hour}, nil, metrics)
	ctx := context.Background()
	req := store.Request{Method: http.MethodGet, Path: "secret/config"}

	resp, err := transport.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, err = transport.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, transport.Breaker().State())

	resp, err = transport.Do(ctx, req)
	require.NoError(t, err, "5xx responses are handed back to the caller")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_, err = transport.Do(ctx, req)
	assert.Error(t, err)
	assert.Equal(t, StateOpen, transport.Breaker().State())

	_, err = transport.Do(ctx, req)
	assert.True(t, IsCircuitOpenError(err))
	assert.Equal(t, 4, next.calls)
	assert.Equal(t, int64(1), metrics.GetCounter(monitoring.MetricCircuitState, map[string]string{"state": "OPEN"}))
}
