package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
project: acme-prod
region: europe-west1
repository:
  name: apps
database:
  instance: app-db
  version: POSTGRES_15
  tier: db-f1-micro
  name: app
  user: app
  type: postgres
secrets:
  passwordSecret: db-password
  encryptionKeySecret: app-encryption-key
identity:
  name: app-runner
service:
  name: api
  image: europe-docker.pkg.dev/acme-prod/apps/api:1.0.0
  memory: 1Gi
  cpu: "1"
  maxInstances: 3
  cloudSqlConnector: true
  env:
    LOG_LEVEL: info
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEvaluator_LoadSettings_YAML(t *testing.T) {
	path := writeFile(t, "converge.yaml", validYAML)

	s, err := NewEvaluator(filepath.Dir(path)).LoadSettings(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, "acme-prod", s.Project)
	assert.Equal(t, "gcp", s.Provider)
	assert.Equal(t, 5432, s.Database.Port)
	assert.Equal(t, "DOCKER", s.Repository.Format)
	assert.Equal(t, 8080, s.Service.Port)
	assert.Equal(t, 80, s.Service.Concurrency)
	assert.Equal(t, "/healthz", s.Service.HealthCheckPath)
	assert.Equal(t, []string{"roles/cloudsql.client"}, s.Identity.Roles)
	assert.Equal(t, "app-runner", s.Identity.DisplayName)
	assert.Equal(t, "info", s.Service.Env["LOG_LEVEL"])
	assert.Equal(t, "local", s.Report.Backend)
	assert.Equal(t, "acme-prod:europe-west1:app-db", s.ConnectionName())
}

func TestEvaluator_LoadSettings_UnknownField(t *testing.T) {
	path := writeFile(t, "converge.yml", validYAML+"surprise: true\n")

	_, err := NewEvaluator(filepath.Dir(path)).LoadSettings(context.Background(), path, nil)
	assert.ErrorContains(t, err, "surprise")
}

func TestEvaluator_LoadSettings_MissingFile(t *testing.T) {
	_, err := NewEvaluator(t.TempDir()).LoadSettings(context.Background(), "/does/not/exist.yaml", nil)
	assert.ErrorContains(t, err, "failed to read settings file")
}

func TestValidate_Missing(t *testing.T) {
	path := writeFile(t, "converge.yaml", `
project: acme-prod
database:
  instance: app-db
  type: postgres
`)

	_, err := NewEvaluator(filepath.Dir(path)).LoadSettings(context.Background(), path, nil)
	require.Error(t, err)

	var missing *ConfigurationMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{
		"database.host",
		"database.name",
		"database.tier",
		"database.user",
		"database.version",
		"identity",
		"region",
		"repository",
		"secrets",
		"service",
	}, missing.Missing)
	assert.Contains(t, err.Error(), "missing required settings: database.host")
}

func TestValidate_Invalid(t *testing.T) {
	path := writeFile(t, "converge.yaml", validYAML)
	s, err := NewEvaluator(filepath.Dir(path)).LoadSettings(context.Background(), path, nil)
	require.NoError(t, err)

	s.Database.Type = "oracle"
	s.Service.MinInstances = 5
	err = Validate(s)

	var cfgErr *ConfigurationMissingError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, cfgErr.Missing)
	assert.Equal(t, []string{
		"database.type (oneof=postgres mysql)",
		"service.maxInstances (gtefield=MinInstances)",
	}, cfgErr.Invalid)
}

func TestValidate_DirectHostRequiredWithoutConnector(t *testing.T) {
	path := writeFile(t, "converge.yaml", validYAML)
	s, err := NewEvaluator(filepath.Dir(path)).LoadSettings(context.Background(), path, nil)
	require.NoError(t, err)

	s.Service.CloudSQLConnector = false
	err = Validate(s)
	assert.ErrorContains(t, err, "database.host")

	s.Database.Host = "10.0.0.5"
	assert.NoError(t, Validate(s))
}

func TestValidate_ReservedEnvKeys(t *testing.T) {
	path := writeFile(t, "converge.yaml", validYAML)
	s, err := NewEvaluator(filepath.Dir(path)).LoadSettings(context.Background(), path, nil)
	require.NoError(t, err)

	s.Service.Env = map[string]string{
		"DB_PASSWORD": "plaintext-pw",
		"DB_HOST":     "10.0.0.1",
		"LOG_LEVEL":   "debug",
	}
	err = Validate(s)

	var cfgErr *ConfigurationMissingError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, cfgErr.Missing)
	assert.Equal(t, []string{
		"service.env.DB_HOST (reserved)",
		"service.env.DB_PASSWORD (reserved)",
	}, cfgErr.Invalid)
	assert.NotContains(t, err.Error(), "plaintext-pw")

	delete(s.Service.Env, "DB_PASSWORD")
	delete(s.Service.Env, "DB_HOST")
	assert.NoError(t, Validate(s))
}
