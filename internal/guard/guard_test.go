package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/refnexus/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "user-1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "user-1")
	rl.Check(ctx, "user-1")
	result := rl.Check(ctx, "user-1")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)

	var appErr *domain.AppError
	require.True(t, errors.As(rl.Allow(ctx, "user-1"), &appErr))
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "user-a").Allowed)
	assert.True(t, rl.Check(ctx, "user-b").Allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	rl := NewRateLimiter(1, time.Minute)
	rl.now = clock.now
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "k").Allowed)
	require.False(t, rl.Check(ctx, "k").Allowed)

	clock.advance(61 * time.Second)
	assert.True(t, rl.Check(ctx, "k").Allowed)

	clock.advance(2 * time.Minute)
	rl.Prune()
	assert.Empty(t, rl.windows)
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Allow(context.Background(), "k"))
	}
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	assert.True(t, cb.Check(context.Background(), "ai").Allowed)
	assert.Equal(t, CircuitClosed, cb.State("ai"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("ai")
	cb.RecordFailure("ai")

	result := cb.Check(ctx, "ai")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, "open", cb.State("ai").String())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("ai")
	cb.RecordSuccess("ai")
	cb.RecordFailure("ai")

	assert.True(t, cb.Check(ctx, "ai").Allowed)
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cb := NewCircuitBreaker(1, 10*time.Second)
	cb.now = clock.now
	ctx := context.Background()

	cb.RecordFailure("ai")
	require.False(t, cb.Check(ctx, "ai").Allowed)

	clock.advance(11 * time.Second)
	assert.True(t, cb.Check(ctx, "ai").Allowed, "first probe passes")
	assert.Equal(t, CircuitHalfOpen, cb.State("ai"))
	assert.False(t, cb.Check(ctx, "ai").Allowed, "second caller waits for probe")

	cb.RecordFailure("ai")
	assert.Equal(t, CircuitOpen, cb.State("ai"))

	clock.advance(11 * time.Second)
	require.True(t, cb.Check(ctx, "ai").Allowed)
	cb.RecordSuccess("ai")
	assert.Equal(t, CircuitClosed, cb.State("ai"))
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	ctx := context.Background()
	boom := errors.New("upstream 500")

	err := cb.Execute(ctx, "geo", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	called := false
	err = cb.Execute(ctx, "geo", func(context.Context) error { called = true; return nil })
	assert.False(t, called)

	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", appErr.Code)
	assert.Equal(t, 503, appErr.Status)
}

func TestCircuitBreaker_UncountedErrorsPassThrough(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, "ai", func(context.Context) error { return Uncounted(context.Canceled) })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, CircuitClosed, cb.State("ai"))
	assert.NoError(t, Uncounted(nil))
}

func TestCircuitBreaker_UncountedProbeKeepsHalfOpen(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cb := NewCircuitBreaker(1, 10*time.Second)
	cb.now = clock.now
	ctx := context.Background()

	cb.RecordFailure("ai")
	clock.advance(11 * time.Second)

	err := cb.Execute(ctx, "ai", func(context.Context) error { return Uncounted(context.Canceled) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitHalfOpen, cb.State("ai"))

	called := false
	require.NoError(t, cb.Execute(ctx, "ai", func(context.Context) error { called = true; return nil }))
	assert.True(t, called)
	assert.Equal(t, CircuitClosed, cb.State("ai"))
}

func TestRateLimiter_PruneDropsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	rl := NewRateLimiter(5, time.Minute)
	rl.now = clock.now
	ctx := context.Background()

	require.NoError(t, rl.Allow(ctx, "idle"))
	clock.advance(45 * time.Second)
	require.NoError(t, rl.Allow(ctx, "busy"))
	clock.advance(30 * time.Second)

	rl.Prune()
	assert.Equal(t, 1, rl.Len())
	_, ok := rl.windows["busy"]
	assert.True(t, ok)
}

func TestRateLimiter_RunPrunerStopsWithContext(t *testing.T) {
	rl := NewRateLimiter(5, 10*time.Millisecond)
	require.NoError(t, rl.Allow(context.Background(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.RunPruner(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rl.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}
