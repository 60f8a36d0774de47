package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLauncher_ExecsAfterReady(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	var executed []string

	l := &Launcher{
		Gate:  newTestGate(clock),
		Probe: probeSucceedingOn(2, &calls),
		Exec: func(argv []string) error {
			executed = argv
			return nil
		},
	}

	err := l.Launch(context.Background(), &Config{MaxAttempts: 5, Interval: time.Second}, []string{"/app/server", "--port=8080"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/server", "--port=8080"}, executed)
	assert.Equal(t, 2, calls)
}

func TestLauncher_NeverExecsWhenUnavailable(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	executed := false

	l := &Launcher{
		Gate:  newTestGate(clock),
		Probe: probeSucceedingOn(1000, &calls),
		Exec: func([]string) error {
			executed = true
			return nil
		},
	}

	err := l.Launch(context.Background(), &Config{MaxAttempts: 5, Interval: 2 * time.Second}, []string{"/app/server"})
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.False(t, executed)
	assert.Equal(t, 5, calls)
}

func TestLauncher_ExecFailure(t *testing.T) {
	calls := 0
	l := &Launcher{
		Gate:  newTestGate(&fakeClock{}),
		Probe: probeSucceedingOn(1, &calls),
		Exec:  func([]string) error { return errors.New("permission denied") },
	}

	err := l.Launch(context.Background(), &Config{MaxAttempts: 1, Interval: time.Second}, []string{"/app/server"})
	assert.ErrorContains(t, err, "failed to start /app/server")
}

func TestLauncher_RequiresCommand(t *testing.T) {
	l := &Launcher{Probe: func(context.Context) error { return nil }}
	assert.Error(t, l.Launch(context.Background(), &Config{MaxAttempts: 1, Interval: time.Second}, nil))
}

func TestExec_UnknownBinary(t *testing.T) {
	err := Exec([]string{"converge-definitely-not-installed"})
	assert.ErrorContains(t, err, "failed to find")
	assert.Error(t, Exec(nil))
}
