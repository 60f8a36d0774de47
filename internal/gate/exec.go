package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// ExecFunc replaces the current process with argv. It returns only on error.
type ExecFunc func(argv []string) error

// Exec looks up argv[0] on PATH and execs it with the current environment.
func Exec(argv []string) error {
	if len(argv) == 0 {
		return errors.New("no command to execute")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", argv[0], err)
	}
	return syscall.Exec(path, argv, os.Environ())
}

// Launcher waits for the dependency and hands off to the main process.
type Launcher struct {
	Gate  *Gate
	Probe Probe
	Exec  ExecFunc
}

// Launch returns ErrDependencyUnavailable without executing argv when the
// dependency never became ready. On success it does not return unless the
// exec itself fails.
func (l *Launcher) Launch(ctx context.Context, cfg *Config, argv []string) error {
	if len(argv) == 0 {
		return errors.New("no command to execute")
	}
	g := l.Gate
	if g == nil {
		g = New()
	}
	run := l.Exec
	if run == nil {
		run = Exec
	}

	state, err := g.AwaitDependency(ctx, l.Probe, cfg.MaxAttempts, cfg.Interval)
	if state != StateReady {
		return err
	}
	if err := run(argv); err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	return nil
}
