package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/pkg/cloud"
)

// RunEvent represents a progress event during a run.
type RunEvent struct {
	Step   string
	Kind   string
	Name   string
	Status string // "started", "completed", "failed", "skipped"
	Result *ir.ReconcileResult
}

// RunCallback is called for each run event if set.
type RunCallback func(event RunEvent)

// RunResult holds one result per step, in execution order.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ir.ReconcileResult
	// Aborted is set when a fatal step failure stopped the run.
	Aborted bool
}

// Failed reports whether any step failed.
func (r *RunResult) Failed() bool {
	for _, res := range r.Results {
		if res.Failed() {
			return true
		}
	}
	return false
}

// Report converts the result for persistence.
func (r *RunResult) Report(project, provider string) *ir.Report {
	return ir.NewReport(r.RunID, project, provider, r.StartedAt, r.FinishedAt, r.Results)
}

type step struct {
	id       string
	kind     cloud.Kind
	name     string
	requires []string
	run      func(ctx context.Context) ir.ReconcileResult
}

// Step identifiers, in execution order.
const (
	StepRepository    = "repository"
	StepInstance      = "instance"
	StepDatabase      = "database"
	StepUser          = "user"
	StepIdentity      = "identity"
	StepPasswordSec   = "password-secret"
	StepEncryptionSec = "encryption-key-secret"
	StepBindingPrefix = "binding:"
	StepDeployment    = "deployment"
)

// Run reconciles every resource of s in a fixed order.
func (e *Engine) Run(ctx context.Context, s *ir.Settings) (*RunResult, error) {
	return e.RunWithCallback(ctx, s, nil)
}

// RunWithCallback runs with progress event callbacks. A failed step does not
// stop the run; steps that require it are reported failed without calling the
// cloud. A failed secret version append aborts the remaining steps. The only
// returned error is one raised before any mutation.
func (e *Engine) RunWithCallback(ctx context.Context, s *ir.Settings, callback RunCallback) (*RunResult, error) {
	emit := func(event RunEvent) {
		if callback != nil {
			callback(event)
		}
	}

	run := &RunResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	logging.Info("run started", "run_id", run.RunID, "project", s.Project)

	creds, err := e.ResolveCredentials(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials: %w", err)
	}
	e.redactor.Add(creds.Password, creds.EncryptionKey)

	steps := e.steps(BuildCatalog(s, creds))
	outcome := make(map[string]ir.Action, len(steps))
	var stop string

	for _, st := range steps {
		emit(RunEvent{Step: st.id, Kind: string(st.kind), Name: st.name, Status: "started"})

		var res ir.ReconcileResult
		switch {
		case stop != "":
			res = e.notAttempted(st, stop)
		case ctx.Err() != nil:
			res = e.notAttempted(st, "run cancelled")
		default:
			if dep := failedPrerequisite(st.requires, outcome); dep != "" {
				res = e.notAttempted(st, fmt.Sprintf("prerequisite %s failed", dep))
			} else {
				res = st.run(ctx)
			}
		}

		outcome[st.id] = res.Action
		run.Results = append(run.Results, res)

		status := "completed"
		if res.Failed() {
			status = "failed"
		}
		emit(RunEvent{Step: st.id, Kind: string(st.kind), Name: st.name, Status: status, Result: &res})

		if stop == "" && errors.Is(res.Err, ErrVersionNotAdded) {
			stop = "run aborted: " + st.id + " could not add a secret version"
			run.Aborted = true
			logging.Error("aborting run", "run_id", run.RunID, "step", st.id)
		}
	}

	run.FinishedAt = time.Now()
	logging.Info("run finished", "run_id", run.RunID, "failed", run.Failed(), "duration", run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

func (e *Engine) steps(c *Catalog) []step {
	steps := []step{
		{id: StepRepository, kind: c.Repository.Kind, name: c.Repository.Name,
			run: func(ctx context.Context) ir.ReconcileResult { return e.Reconcile(ctx, c.Repository) }},
		{id: StepInstance, kind: c.Instance.Kind, name: c.Instance.Name,
			run: func(ctx context.Context) ir.ReconcileResult { return e.Reconcile(ctx, c.Instance) }},
		{id: StepDatabase, kind: c.Database.Kind, name: c.Database.Name, requires: []string{StepInstance},
			run: func(ctx context.Context) ir.ReconcileResult { return e.Reconcile(ctx, c.Database) }},
		{id: StepUser, kind: c.User.Kind, name: c.User.Name, requires: []string{StepDatabase},
			run: func(ctx context.Context) ir.ReconcileResult { return e.Reconcile(ctx, c.User) }},
		{id: StepIdentity, kind: c.Identity.Kind, name: c.Identity.Name,
			run: func(ctx context.Context) ir.ReconcileResult { return e.Reconcile(ctx, c.Identity) }},
		{id: StepPasswordSec, kind: cloud.KindSecret, name: c.PasswordSecret.Name, requires: []string{StepUser, StepIdentity},
			run: func(ctx context.Context) ir.ReconcileResult { return e.Sync(ctx, c.PasswordSecret) }},
		{id: StepEncryptionSec, kind: cloud.KindSecret, name: c.EncryptionKeySecret.Name, requires: []string{StepIdentity},
			run: func(ctx context.Context) ir.ReconcileResult { return e.Sync(ctx, c.EncryptionKeySecret) }},
	}

	for _, b := range c.Bindings {
		steps = append(steps, step{
			id: StepBindingPrefix + b.Role, kind: b.Ref.Kind, name: b.Role, requires: []string{StepIdentity},
			run: func(ctx context.Context) ir.ReconcileResult { return e.Grant(ctx, b) },
		})
	}

	all := make([]string, 0, len(steps))
	for _, st := range steps {
		all = append(all, st.id)
	}
	return append(steps, step{
		id: StepDeployment, kind: cloud.KindComputeService, name: c.Deployment.Service, requires: all,
		run: func(ctx context.Context) ir.ReconcileResult { return e.Apply(ctx, c.Deployment) },
	})
}

// Grant binds the service identity to a project role. An existing binding
// is reported unchanged.
func (e *Engine) Grant(ctx context.Context, b Binding) ir.ReconcileResult {
	start := time.Now()
	res := ir.ReconcileResult{Kind: string(b.Ref.Kind), Name: b.Role}

	if err := ValidateName(b.Ref); err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}

	var outcome cloud.Outcome
	err := e.retry(ctx, func() error {
		var err error
		outcome, err = e.client.GrantAccess(ctx, b.Ref, b.Member, b.Role)
		return err
	})
	if err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}
	if outcome == cloud.AlreadyExists {
		return e.finish(res, start, ir.ActionUnchanged, nil)
	}
	logging.Info("role granted", "role", b.Role, "member", b.Member)
	return e.finish(res, start, ir.ActionCreated, nil)
}

func (e *Engine) notAttempted(st step, reason string) ir.ReconcileResult {
	res := ir.ReconcileResult{Kind: string(st.kind), Name: st.name}
	return e.finish(res, time.Now(), ir.ActionFailed, fmt.Errorf("not attempted: %s", reason))
}

func failedPrerequisite(requires []string, outcome map[string]ir.Action) string {
	for _, dep := range requires {
		if outcome[dep] == ir.ActionFailed {
			return dep
		}
	}
	return ""
}
