package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("connection refused")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(c *clock) *CircuitBreaker {
	return NewCircuitBreaker(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
		Now:                 c.now,
	})
}

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cb := newTestBreaker(c)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(&clock{t: time.Unix(0, 0)})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenRecovery(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cb := newTestBreaker(c)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())

	c.t = c.t.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	cb := newTestBreaker(c)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	c.t = c.t.Add(time.Minute)

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	errAuth := errors.New("535 bad credentials")
	cb := NewCircuitBreaker(Config{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errAuth) },
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errAuth })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCancelledCallsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateString(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	assert.Equal(t, "closed", cb.GetState().String())
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, "open", cb.GetState().String())
}
