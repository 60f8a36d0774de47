package state

import (
	"context"
	"fmt"

	"github.com/picklr-io/converge/internal/eval"
	"github.com/picklr-io/converge/internal/ir"
)

// Backend stores the report of the last run.
type Backend interface {
	// Read returns ErrNoReport when nothing has been written yet.
	Read(ctx context.Context) (*ir.Report, error)
	Write(ctx context.Context, report *ir.Report) error

	// Lock acquires an exclusive lock on the store.
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// NewBackend creates the report store named by the settings. A nil config
// selects the local store at DefaultReportPath.
func NewBackend(ctx context.Context, cfg *ir.ReportSettings, evaluator *eval.Evaluator) (Backend, error) {
	if cfg == nil {
		cfg = &ir.ReportSettings{Backend: "local"}
	}

	switch cfg.Backend {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			path = DefaultReportPath
		}
		return NewManager(path, evaluator), nil
	case "s3":
		return newS3Backend(ctx, cfg.Config, evaluator)
	default:
		return nil, fmt.Errorf("unknown report backend: %s", cfg.Backend)
	}
}
