// Package gate blocks container start until the database accepts
// connections, then replaces itself with the application process.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/picklr-io/converge/internal/logging"
)

// Gate states. Ready and Failed are terminal.
const (
	StateWaiting = "waiting"
	StateReady   = "ready"
	StateFailed  = "failed"
)

const (
	eventProbeSucceeded    = "probe_succeeded"
	eventAttemptsExhausted = "attempts_exhausted"
)

// ErrDependencyUnavailable is returned when the probe never succeeded within
// the attempt bound. It is fatal for the process.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// Probe is a single synchronous connectivity check.
type Probe func(ctx context.Context) error

// Gate is the readiness state machine. A Gate is used once.
type Gate struct {
	fsm      *fsm.FSM
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

func New() *Gate {
	g := &Gate{sleep: sleepContext}
	g.fsm = fsm.NewFSM(
		StateWaiting,
		fsm.Events{
			{Name: eventProbeSucceeded, Src: []string{StateWaiting}, Dst: StateReady},
			{Name: eventAttemptsExhausted, Src: []string{StateWaiting}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logging.Debug("gate state changed", "from", e.Src, "to", e.Dst, "attempts", g.attempts)
			},
		},
	)
	return g
}

// State returns the current state.
func (g *Gate) State() string { return g.fsm.Current() }

// Attempts returns the number of probe calls made so far.
func (g *Gate) Attempts() int { return g.attempts }

// AwaitDependency probes until success or until maxAttempts probes failed.
// It sleeps interval between attempts but not after the last one, so a
// dependency that never comes up costs at most (maxAttempts-1)*interval plus
// probe latency.
func (g *Gate) AwaitDependency(ctx context.Context, probe Probe, maxAttempts int, interval time.Duration) (string, error) {
	if g.State() != StateWaiting {
		return g.State(), fmt.Errorf("gate already %s", g.State())
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for {
		g.attempts++
		err := probe(ctx)
		if err == nil {
			if err := g.fsm.Event(ctx, eventProbeSucceeded); err != nil {
				return g.State(), err
			}
			logging.Info("dependency ready", "attempts", g.attempts)
			return StateReady, nil
		}

		logging.Warn("dependency not ready", "attempt", g.attempts, "max_attempts", maxAttempts, "error", err)
		if g.attempts >= maxAttempts {
			return g.fail(ctx, fmt.Errorf("%w after %d attempts: %w", ErrDependencyUnavailable, g.attempts, err))
		}
		if err := g.sleep(ctx, interval); err != nil {
			return g.fail(ctx, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err))
		}
	}
}

func (g *Gate) fail(ctx context.Context, err error) (string, error) {
	// The event cannot be rejected from the waiting state.
	_ = g.fsm.Event(context.WithoutCancel(ctx), eventAttemptsExhausted)
	return StateFailed, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
