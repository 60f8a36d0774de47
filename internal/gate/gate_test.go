package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock records requested sleeps instead of sleeping.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.slept {
		sum += d
	}
	return sum
}

func newTestGate(clock *fakeClock) *Gate {
	g := New()
	g.sleep = clock.sleep
	return g
}

func probeSucceedingOn(n int, calls *int) Probe {
	return func(context.Context) error {
		*calls++
		if *calls >= n {
			return nil
		}
		return errors.New("connection refused")
	}
}

func TestAwaitDependency_AlwaysFailing(t *testing.T) {
	clock := &fakeClock{}
	g := newTestGate(clock)
	calls := 0

	state, err := g.AwaitDependency(context.Background(), probeSucceedingOn(1000, &calls), 5, 2*time.Second)

	assert.Equal(t, StateFailed, state)
	assert.Equal(t, StateFailed, g.State())
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, g.Attempts())
	assert.LessOrEqual(t, clock.total(), 5*2*time.Second)
	assert.Len(t, clock.slept, 4)
}

func TestAwaitDependency_SucceedsOnThirdCall(t *testing.T) {
	clock := &fakeClock{}
	g := newTestGate(clock)
	calls := 0

	state, err := g.AwaitDependency(context.Background(), probeSucceedingOn(3, &calls), 5, 2*time.Second)

	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, 3, calls)
	// Two sleeps between three attempts, none after success.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.slept)
}

func TestAwaitDependency_ImmediateSuccess(t *testing.T) {
	clock := &fakeClock{}
	calls := 0

	state, err := newTestGate(clock).AwaitDependency(context.Background(), probeSucceedingOn(1, &calls), 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
	assert.Empty(t, clock.slept)
}

func TestAwaitDependency_TerminalStatesAreFinal(t *testing.T) {
	clock := &fakeClock{}
	g := newTestGate(clock)
	calls := 0

	_, err := g.AwaitDependency(context.Background(), probeSucceedingOn(1, &calls), 1, time.Second)
	require.NoError(t, err)

	state, err := g.AwaitDependency(context.Background(), probeSucceedingOn(1, &calls), 1, time.Second)
	assert.Error(t, err)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, 1, calls)
}

func TestAwaitDependency_RealSleepBound(t *testing.T) {
	g := New()
	calls := 0

	start := time.Now()
	state, err := g.AwaitDependency(context.Background(), probeSucceedingOn(1000, &calls), 3, 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, StateFailed, state)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestAwaitDependency_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New()
	probe := func(context.Context) error {
		cancel()
		return errors.New("connection refused")
	}

	state, err := g.AwaitDependency(ctx, probe, 10, time.Hour)
	assert.Equal(t, StateFailed, state)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, g.Attempts())
}
