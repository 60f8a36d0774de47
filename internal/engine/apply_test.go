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

func TestRun_FreshTarget(t *testing.T) {
	p := memory.New()
	eng := newTestEngine(p)

	run, err := eng.Run(context.Background(), testSettings())
	require.NoError(t, err)
	require.Len(t, run.Results, 9)
	assert.False(t, run.Failed())
	assert.NotEmpty(t, run.RunID)

	for _, res := range run.Results {
		assert.Equal(t, ir.ActionCreated, res.Action, "%s/%s", res.Kind, res.Name)
	}

	assert.Len(t, p.Versions("db-password"), 1)
	assert.Len(t, p.Versions("app-encryption-key"), 1)

	// The user was created with the password stored in the secret.
	assert.Equal(t, p.Versions("db-password")[0], p.SensitiveField(userRef, "password"))
	assert.Equal(t, "app-runner@acme-prod.iam.gserviceaccount.com", p.Fields(serviceRef)["serviceAccount"])
	assert.Equal(t, "db-password:latest", p.Fields(serviceRef)["secret.DB_PASSWORD"])
}

func TestRun_Order(t *testing.T) {
	eng := newTestEngine(memory.New())

	var steps []string
	_, err := eng.RunWithCallback(context.Background(), testSettings(), func(ev RunEvent) {
		if ev.Status == "started" {
			steps = append(steps, ev.Step)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		StepRepository, StepInstance, StepDatabase, StepUser, StepIdentity,
		StepPasswordSec, StepEncryptionSec, "binding:roles/cloudsql.client", StepDeployment,
	}, steps)
}

func TestRun_GrantsEveryRole(t *testing.T) {
	p := memory.New()
	s := testSettings()
	s.Identity.Roles = []string{"roles/cloudsql.client", "roles/logging.logWriter"}

	run, err := newTestEngine(p).Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, run.Failed())

	member := "serviceAccount:app-runner@acme-prod.iam.gserviceaccount.com"
	assert.Equal(t, []string{
		"roles/cloudsql.client " + member,
		"roles/logging.logWriter " + member,
	}, p.Grants(cloud.Ref{Kind: cloud.KindIAMBinding, Name: "acme-prod"}))
}

func TestRun_SecondRunIsUnchanged(t *testing.T) {
	p := memory.New()
	eng := newTestEngine(p)
	ctx := context.Background()

	_, err := eng.Run(ctx, testSettings())
	require.NoError(t, err)
	creates, updates := p.Calls(memory.OpCreate), p.Calls(memory.OpUpdate)

	run, err := eng.Run(ctx, testSettings())
	require.NoError(t, err)
	for _, res := range run.Results {
		assert.Equal(t, ir.ActionUnchanged, res.Action, "%s/%s", res.Kind, res.Name)
	}
	assert.Equal(t, creates, p.Calls(memory.OpCreate))
	assert.Equal(t, updates, p.Calls(memory.OpUpdate))

	// A version is still appended per run, with the same value.
	versions := p.Versions("db-password")
	require.Len(t, versions, 2)
	assert.Equal(t, versions[0], versions[1])
}

func TestRun_DriftedMemory(t *testing.T) {
	p := memory.New()
	eng := newTestEngine(p)
	ctx := context.Background()

	_, err := eng.Run(ctx, testSettings())
	require.NoError(t, err)
	p.Drift(serviceRef, map[string]string{"memory": "512Mi"})

	run, err := eng.Run(ctx, testSettings())
	require.NoError(t, err)

	got := actions(run.Results)
	for key, action := range got {
		if key == "run.Service/api" {
			assert.Equal(t, ir.ActionUpdated, action)
			continue
		}
		assert.Equal(t, ir.ActionUnchanged, action, key)
	}
	assert.Equal(t, "1Gi", p.Fields(serviceRef)["memory"])
	assert.Equal(t, []string{"memory"}, run.Results[len(run.Results)-1].Changed)
}

func TestRun_NoDeploymentAfterFailedUser(t *testing.T) {
	p := memory.New()
	p.Fail(memory.OpCreate, userRef, cloud.Rejected("create", userRef, errors.New("permission denied")))

	run, err := newTestEngine(p).Run(context.Background(), testSettings())
	require.NoError(t, err)
	assert.True(t, run.Failed())

	got := actions(run.Results)
	assert.Equal(t, ir.ActionFailed, got["sql.User/app"])
	assert.Equal(t, ir.ActionFailed, got["secretmanager.Secret/db-password"])
	assert.Equal(t, ir.ActionCreated, got["secretmanager.Secret/app-encryption-key"])
	assert.Equal(t, ir.ActionCreated, got["iam.Binding/roles/cloudsql.client"])
	assert.Equal(t, ir.ActionFailed, got["run.Service/api"])

	assert.Equal(t, 0, p.Calls(memory.OpDescribe, serviceRef))
	assert.Equal(t, 0, p.Calls(memory.OpCreate, serviceRef))
	assert.Contains(t, run.Results[len(run.Results)-1].Error(), "prerequisite")
	assert.False(t, run.Aborted)
}

func TestRun_VersionFailureAborts(t *testing.T) {
	p := memory.New()
	p.Fail(memory.OpAddVer, passwordRef, cloud.Rejected("add-version", passwordRef, errors.New("secret is disabled")))

	run, err := newTestEngine(p).Run(context.Background(), testSettings())
	require.NoError(t, err)
	assert.True(t, run.Aborted)

	tail := run.Results[5:]
	require.Len(t, tail, 4)
	assert.ErrorIs(t, tail[0].Err, ErrVersionNotAdded)
	for _, res := range tail[1:] {
		assert.Equal(t, ir.ActionFailed, res.Action)
		assert.Contains(t, res.Error(), "not attempted: run aborted")
	}
	assert.Equal(t, 1, p.Calls(memory.OpAddVer))
	assert.Equal(t, 0, p.Calls(memory.OpGrant))
}

func TestRun_CredentialReadFailureHasNoSideEffects(t *testing.T) {
	p := memory.New()
	p.Fail(memory.OpAccess, passwordRef, cloud.Rejected("access", passwordRef, errors.New("permission denied")))

	_, err := newTestEngine(p).Run(context.Background(), testSettings())
	require.Error(t, err)
	assert.Equal(t, 0, p.Calls(memory.OpCreate))
	assert.Equal(t, 0, p.Calls(memory.OpDescribe))
}

func TestRun_SecretsNeverInResults(t *testing.T) {
	p := memory.New()
	s := testSettings()
	s.Database.Password = "pa55-w0rd-xyz"
	p.Fail(memory.OpCreate, userRef, cloud.Rejected("create", userRef, errors.New("rejected password pa55-w0rd-xyz")))

	run, err := newTestEngine(p).Run(context.Background(), s)
	require.NoError(t, err)

	report := run.Report("acme-prod", "memory")
	for _, r := range report.Results {
		assert.NotContains(t, r.Error, "pa55-w0rd-xyz")
	}
	// user, the password secret that requires it, and the deployment
	assert.Equal(t, 3, report.Summary.Failed)
}
