package engine

import (
	"context"
	"errors"
	"time"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/pkg/cloud"
)

// Reconcile brings one resource to its desired state: create when absent,
// update when a managed field drifted, nothing otherwise. Transient errors are
// retried; rejections fail the resource immediately.
func (e *Engine) Reconcile(ctx context.Context, spec cloud.ResourceSpec) ir.ReconcileResult {
	start := time.Now()
	res := ir.ReconcileResult{Kind: string(spec.Kind), Name: spec.Name}
	for _, f := range spec.Sensitive {
		e.redactor.Add(spec.DesiredFields[f])
	}

	if err := ValidateName(spec.Ref); err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}

	ctx, cancel := WithTimeout(ctx, e.StepTimeout)
	defer cancel()

	state, err := e.describe(ctx, spec.Ref)
	if err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}

	if !state.Exists {
		var outcome cloud.Outcome
		err := e.retry(ctx, func() error {
			var err error
			outcome, err = e.client.Create(ctx, spec)
			return err
		})
		if err != nil {
			return e.finish(res, start, ir.ActionFailed, err)
		}
		if outcome == cloud.Applied {
			logging.Info("resource created", "address", spec.Address())
			return e.finish(res, start, ir.ActionCreated, nil)
		}

		// Another writer won the race. Converge on whatever it created.
		logging.Info("resource already exists, re-checking", "address", spec.Address())
		state, err = e.describe(ctx, spec.Ref)
		if err != nil {
			return e.finish(res, start, ir.ActionFailed, err)
		}
		if !state.Exists {
			return e.finish(res, start, ir.ActionFailed,
				cloud.Transient("describe", spec.Ref, errors.New("create reported an existing object that cannot be found")))
		}
	}

	return e.converge(ctx, spec, state, res, start)
}

func (e *Engine) converge(ctx context.Context, spec cloud.ResourceSpec, state cloud.ResourceState, res ir.ReconcileResult, start time.Time) ir.ReconcileResult {
	changed := Diff(spec, state.Observed)
	if spec.Rotate {
		changed = append(changed, spec.Sensitive...)
	}
	if len(changed) == 0 {
		logging.Debug("resource unchanged", "address", spec.Address())
		return e.finish(res, start, ir.ActionUnchanged, nil)
	}

	logging.Info("updating resource", "address", spec.Address(), "fields", changed)
	if err := e.retry(ctx, func() error { return e.client.Update(ctx, spec) }); err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}
	res.Changed = changed
	return e.finish(res, start, ir.ActionUpdated, nil)
}

func (e *Engine) finish(res ir.ReconcileResult, start time.Time, action ir.Action, err error) ir.ReconcileResult {
	res.Action = action
	res.Err = e.redactor.Error(err)
	res.Duration = time.Since(start)
	if res.Err != nil {
		logging.Warn("reconcile failed", "kind", res.Kind, "name", res.Name, "error", res.Err)
	}
	return res
}
