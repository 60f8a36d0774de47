package gcp

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/converge/pkg/cloud"
)

// wait polls done until it reports completion or ctx ends.
func (p *Provider) wait(ctx context.Context, op string, ref cloud.Ref, done func(ctx context.Context) (bool, error)) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s %s: wait for operation: %w", op, ref, ctx.Err())
		case <-t.C:
		}

		finished, err := done(ctx)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}
		t.Reset(p.pollInterval)
	}
}

// operationFailed wraps the error reported by a finished operation. These are
// definitive: the request was accepted and then refused.
func operationFailed(op string, ref cloud.Ref, message string) error {
	return cloud.Rejected(op, ref, fmt.Errorf("operation failed: %s", message))
}
