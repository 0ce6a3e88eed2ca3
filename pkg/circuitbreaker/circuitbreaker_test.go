package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func fail(context.Context) error { return errUpstream }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	var transitions []State
	cb := New("test",
		WithFailureThreshold(3),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	cb := New("test", WithFailureThreshold(2))

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, ok))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	cb := New("test", WithFailureThreshold(1), WithSuccessThreshold(2), WithOpenTimeout(10*time.Second))
	cb.now = func() time.Time { return now }

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cb := New("test", WithFailureThreshold(1), WithOpenTimeout(time.Second))
	cb.now = func() time.Time { return now }

	_ = cb.Execute(ctx, fail)
	now = now.Add(2 * time.Second)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	ctx := context.Background()
	notCounted := errors.New("not found")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, notCounted) }),
	)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return notCounted })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestExcludedErrorsAreIgnored(t *testing.T) {
	ctx := context.Background()
	gaveUp := errors.New("caller gave up")
	now := time.Unix(0, 0)
	cb := New("test",
		WithFailureThreshold(1),
		WithOpenTimeout(time.Second),
		WithIsExcluded(func(err error) bool { return errors.Is(err, gaveUp) }),
	)
	cb.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return gaveUp }), gaveUp)
	}
	assert.Equal(t, StateClosed, cb.State())

	// in half-open an excluded error neither reopens nor closes the circuit
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.State())
	now = now.Add(2 * time.Second)

	_ = cb.Execute(ctx, func(context.Context) error { return gaveUp })
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }), "probe slot is released")
	assert.Equal(t, "test", cb.Name())
}

func TestExecute_CancelledContextSkipsCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb := New("test", WithFailureThreshold(1))
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StateClosed, cb.State())
}
