package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/pkg/cloud"
)

// Engine reconciles the managed resources of one project against a cloud
// control plane.
type Engine struct {
	client      cloud.Client
	redactor    *Redactor
	Retry       *RetryPolicy
	StepTimeout time.Duration

	// VerifyImage, if set, must succeed before the deployment is applied.
	VerifyImage func(ctx context.Context, image string) error
}

func NewEngine(client cloud.Client) *Engine {
	return &Engine{
		client:   client,
		redactor: NewRedactor(),
		Retry:    DefaultRetryPolicy(),
	}
}

// CreatePlan previews a run without mutating anything. Secret values are read
// to resolve credentials but never reported.
func (e *Engine) CreatePlan(ctx context.Context, s *ir.Settings) (*ir.Plan, error) {
	creds, err := e.ResolveCredentials(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials: %w", err)
	}
	e.redactor.Add(creds.Password, creds.EncryptionKey)

	cat := BuildCatalog(s, creds)
	logging.Debug("creating plan", "project", s.Project, "bindings", len(cat.Bindings))

	plan := &ir.Plan{Summary: &ir.PlanSummary{}}
	for _, spec := range []cloud.ResourceSpec{cat.Repository, cat.Instance, cat.Database, cat.User, cat.Identity} {
		plan.Add(e.planResource(ctx, spec))
	}
	for _, rec := range []ir.SecretRecord{cat.PasswordSecret, cat.EncryptionKeySecret} {
		plan.Add(e.planSecret(ctx, rec))
	}
	for _, b := range cat.Bindings {
		plan.Add(&ir.ResourceChange{
			Kind:    string(b.Ref.Kind),
			Name:    b.Role,
			Action:  ir.PlanGrant,
			Message: "grant " + b.Member,
		})
	}
	plan.Add(e.planResource(ctx, DeploymentSpec(cat.Deployment)))

	return plan, nil
}

func (e *Engine) planResource(ctx context.Context, spec cloud.ResourceSpec) *ir.ResourceChange {
	change := &ir.ResourceChange{Kind: string(spec.Kind), Name: spec.Name}

	if err := ValidateName(spec.Ref); err != nil {
		change.Action = ir.PlanBlocked
		change.Message = err.Error()
		return change
	}

	state, err := e.describe(ctx, spec.Ref)
	if err != nil {
		change.Action = ir.PlanBlocked
		change.Message = e.redactor.String(err.Error())
		return change
	}
	if !state.Exists {
		change.Action = ir.PlanCreate
		return change
	}

	change.Diff = DiffFields(spec, state.Observed)
	if spec.Rotate {
		for _, f := range spec.Sensitive {
			change.Diff[f] = &ir.PropertyDiff{Sensitive: true}
		}
	}
	if len(change.Diff) > 0 {
		change.Action = ir.PlanUpdate
	} else {
		change.Action = ir.PlanNoOp
	}
	return change
}

func (e *Engine) planSecret(ctx context.Context, rec ir.SecretRecord) *ir.ResourceChange {
	ref := cloud.Ref{Kind: cloud.KindSecret, Name: rec.Name}
	change := &ir.ResourceChange{Kind: string(ref.Kind), Name: rec.Name}

	state, err := e.describe(ctx, ref)
	switch {
	case err != nil:
		change.Action = ir.PlanBlocked
		change.Message = e.redactor.String(err.Error())
	case !state.Exists:
		change.Action = ir.PlanCreate
		change.Message = "first version will be added"
	default:
		change.Action = ir.PlanVersion
		change.Message = "a new version will be added"
	}
	return change
}

func (e *Engine) describe(ctx context.Context, ref cloud.Ref) (cloud.ResourceState, error) {
	var state cloud.ResourceState
	err := e.retry(ctx, func() error {
		var err error
		state, err = e.client.Describe(ctx, ref)
		return err
	})
	return state, err
}

func (e *Engine) retry(ctx context.Context, fn func() error) error {
	return RetryWithBackoff(ctx, e.Retry, fn, IsTransientError)
}
