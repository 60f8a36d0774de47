package engine

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/pkg/cloud"
)

// SecretAccessorRole is granted to every accessor of a synchronized secret.
const SecretAccessorRole = "roles/secretmanager.secretAccessor"

// ErrVersionNotAdded marks a failed version append. Later steps read the
// secret at latest, so the run cannot continue.
var ErrVersionNotAdded = errors.New("secret version not added")

// Sync makes sure the secret exists, appends rec.Value as a new version and
// grants read access to each accessor. A version is appended on every call.
func (e *Engine) Sync(ctx context.Context, rec ir.SecretRecord) ir.ReconcileResult {
	start := time.Now()
	ref := cloud.Ref{Kind: cloud.KindSecret, Name: rec.Name}
	res := ir.ReconcileResult{Kind: string(ref.Kind), Name: rec.Name}
	e.redactor.Add(rec.Value)

	if err := ValidateName(ref); err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}

	ctx, cancel := WithTimeout(ctx, e.StepTimeout)
	defer cancel()

	state, err := e.describe(ctx, ref)
	if err != nil {
		return e.finish(res, start, ir.ActionFailed, err)
	}

	created := false
	if !state.Exists {
		var outcome cloud.Outcome
		err := e.retry(ctx, func() error {
			var err error
			outcome, err = e.client.Create(ctx, cloud.ResourceSpec{
				Ref:           ref,
				DesiredFields: map[string]string{"replication": "automatic"},
			})
			return err
		})
		if err != nil {
			return e.finish(res, start, ir.ActionFailed, err)
		}
		created = outcome == cloud.Applied
	}

	action := ir.ActionCreated
	if !created {
		action = ir.ActionUnchanged
		previous, err := e.latestVersion(ctx, rec.Name)
		if err != nil {
			logging.Warn("could not read previous secret version", "secret", rec.Name, "error", e.redactor.Error(err))
		}
		if err != nil || subtle.ConstantTimeCompare(previous, []byte(rec.Value)) != 1 {
			action = ir.ActionUpdated
		}
	}

	var version string
	err = e.retry(ctx, func() error {
		var err error
		version, err = e.client.AddSecretVersion(ctx, rec.Name, []byte(rec.Value))
		return err
	})
	if err != nil {
		return e.finish(res, start, ir.ActionFailed, fmt.Errorf("%w: %w", ErrVersionNotAdded, err))
	}
	res.Version = version
	logging.Info("secret version added", "secret", rec, "version", version)

	accessors := append([]string(nil), rec.Accessors...)
	sort.Strings(accessors)

	var grantErrs []error
	for _, member := range accessors {
		var outcome cloud.Outcome
		err := e.retry(ctx, func() error {
			var err error
			outcome, err = e.client.GrantAccess(ctx, ref, member, SecretAccessorRole)
			return err
		})
		if err != nil {
			grantErrs = append(grantErrs, fmt.Errorf("grant %s: %w", member, err))
			continue
		}
		if outcome == cloud.Applied {
			logging.Info("secret access granted", "secret", rec.Name, "member", member)
		}
	}
	if len(grantErrs) > 0 {
		return e.finish(res, start, ir.ActionFailed, errors.Join(grantErrs...))
	}

	return e.finish(res, start, action, nil)
}

// latestVersion returns the newest version of a secret, or nil when it has
// none.
func (e *Engine) latestVersion(ctx context.Context, secret string) ([]byte, error) {
	var value []byte
	err := e.retry(ctx, func() error {
		var err error
		value, err = e.client.AccessSecretVersion(ctx, secret, "latest")
		return err
	})
	if cloud.IsNotFound(err) {
		return nil, nil
	}
	return value, err
}
