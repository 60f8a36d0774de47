package gate

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/converge/internal/eval"
)

func setDBEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_HOST", "/cloudsql/acme-prod:europe-west1:app-db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_NAME", "app")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "hunter2")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setDBEnv(t)

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "hunter2", cfg.DBPassword)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setDBEnv(t)
	t.Setenv("GATE_MAX_ATTEMPTS", "5")
	t.Setenv("GATE_INTERVAL", "500ms")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
}

func TestLoadConfig_ExplicitValuesWin(t *testing.T) {
	setDBEnv(t)
	t.Setenv("GATE_MAX_ATTEMPTS", "5")

	v := viper.New()
	v.Set("gate_max_attempts", 2)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxAttempts)
}

func TestLoadConfig_Missing(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_USER", "")

	_, err := LoadConfig(viper.New())
	require.Error(t, err)

	var missing *eval.ConfigurationMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"DB_HOST", "DB_NAME", "DB_PORT", "DB_USER"}, missing.Missing)
}
