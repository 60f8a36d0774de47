package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
	"github.com/picklr-io/converge/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accessor = "serviceAccount:app-runner@acme-prod.iam.gserviceaccount.com"

func TestSync_VersionPerCall(t *testing.T) {
	p := memory.New()
	eng := newTestEngine(p)
	ctx := context.Background()

	values := []string{"one", "two", "two"}
	want := []ir.Action{ir.ActionCreated, ir.ActionUpdated, ir.ActionUnchanged}

	for i, v := range values {
		res := eng.Sync(ctx, ir.SecretRecord{Name: "db-password", Value: v, Accessors: []string{accessor}})
		require.NoError(t, res.Err)
		assert.Equal(t, want[i], res.Action, "call %d", i+1)
		assert.Equal(t, []string{"1", "2", "3"}[i], res.Version)
	}

	assert.Equal(t, values, p.Versions("db-password"))
	latest, err := p.AccessSecretVersion(ctx, "db-password", "latest")
	require.NoError(t, err)
	assert.Equal(t, "two", string(latest))
	assert.Equal(t, 1, p.Calls(memory.OpCreate))
}

func TestSync_ContainerRace(t *testing.T) {
	p := memory.New()
	p.Race(passwordRef, nil)

	res := newTestEngine(p).Sync(context.Background(), ir.SecretRecord{Name: "db-password", Value: "v"})
	require.NoError(t, res.Err)
	assert.Equal(t, ir.ActionUpdated, res.Action)
	assert.Equal(t, []string{"v"}, p.Versions("db-password"))
}

func TestSync_GrantsAreIdempotent(t *testing.T) {
	p := memory.New()
	eng := newTestEngine(p)
	rec := ir.SecretRecord{Name: "db-password", Value: "v", Accessors: []string{accessor}}

	require.NoError(t, eng.Sync(context.Background(), rec).Err)
	require.NoError(t, eng.Sync(context.Background(), rec).Err)

	assert.Equal(t, []string{SecretAccessorRole + " " + accessor}, p.Grants(passwordRef))
	assert.Equal(t, 2, p.Calls(memory.OpGrant))
}

func TestSync_OneGrantFailureDoesNotBlockOthers(t *testing.T) {
	p := memory.New()
	p.Fail(memory.OpGrant, passwordRef, cloud.Rejected("grant", passwordRef, errors.New("permission denied")))
	rec := ir.SecretRecord{
		Name:      "db-password",
		Value:     "s3cr3t-value-1",
		Accessors: []string{"user:a@acme.dev", "user:b@acme.dev"},
	}

	res := newTestEngine(p).Sync(context.Background(), rec)
	assert.Equal(t, ir.ActionFailed, res.Action)
	assert.Contains(t, res.Err.Error(), "grant user:a@acme.dev")
	assert.Equal(t, "1", res.Version)
	assert.Equal(t, []string{SecretAccessorRole + " user:b@acme.dev"}, p.Grants(passwordRef))
}

func TestSync_VersionFailureIsFatal(t *testing.T) {
	p := memory.New()
	p.Fail(memory.OpAddVer, passwordRef, cloud.Rejected("add-version", passwordRef, errors.New("secret is disabled")))

	res := newTestEngine(p).Sync(context.Background(), ir.SecretRecord{Name: "db-password", Value: "hunter2"})
	assert.Equal(t, ir.ActionFailed, res.Action)
	assert.ErrorIs(t, res.Err, ErrVersionNotAdded)
	assert.NotContains(t, res.Err.Error(), "hunter2")
	assert.Equal(t, 0, p.Calls(memory.OpGrant))
}
