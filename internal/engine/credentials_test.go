package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/picklr-io/converge/pkg/cloud"
	"github.com/picklr-io/converge/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCredentials_Generated(t *testing.T) {
	eng := newTestEngine(memory.New())

	c, err := eng.ResolveCredentials(context.Background(), testSettings())
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, c.PasswordSource)
	assert.Equal(t, SourceGenerated, c.KeySource)
	assert.True(t, c.RotatePassword)
	assert.Len(t, c.Password, 32)
	assert.Len(t, c.EncryptionKey, 43)
}

func TestResolveCredentials_ReusesLiveSecret(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	p.Seed(passwordRef, nil)
	_, err := p.AddSecretVersion(ctx, "db-password", []byte("live-password"))
	require.NoError(t, err)

	c, err := newTestEngine(p).ResolveCredentials(ctx, testSettings())
	require.NoError(t, err)
	assert.Equal(t, "live-password", c.Password)
	assert.Equal(t, SourceSecret, c.PasswordSource)
	assert.False(t, c.RotatePassword)
}

func TestResolveCredentials_SettingsWin(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	p.Seed(passwordRef, nil)
	_, err := p.AddSecretVersion(ctx, "db-password", []byte("live-password"))
	require.NoError(t, err)

	s := testSettings()
	s.Database.Password = "configured"
	s.Secrets.EncryptionKey = "configured-key"

	c, err := newTestEngine(p).ResolveCredentials(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "configured", c.Password)
	assert.Equal(t, SourceSettings, c.PasswordSource)
	assert.Equal(t, "configured-key", c.EncryptionKey)
	assert.True(t, c.RotatePassword)
}

func TestResolveCredentials_ReadFailureIsFatal(t *testing.T) {
	p := memory.New()
	p.Fail(memory.OpAccess, passwordRef, cloud.Rejected("access", passwordRef, errors.New("permission denied")))

	_, err := newTestEngine(p).ResolveCredentials(context.Background(), testSettings())
	assert.ErrorContains(t, err, "read secret db-password")
}

func TestResolveCredentials_InvalidSecretNameMakesNoCalls(t *testing.T) {
	p := memory.New()
	s := testSettings()
	s.Secrets.EncryptionKeySecret = "app/encryption key"

	_, err := newTestEngine(p).ResolveCredentials(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.True(t, cloud.IsRejected(err))
	assert.Equal(t, 0, p.Calls(memory.OpAccess))
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(24)
	require.NoError(t, err)
	b, err := GenerateSecret(24)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}
