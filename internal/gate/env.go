package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/picklr-io/converge/internal/eval"
	"github.com/picklr-io/converge/internal/ir"
)

// Defaults for the gate bound.
const (
	DefaultMaxAttempts  = 30
	DefaultInterval     = 2 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Config is read from the container environment.
type Config struct {
	DBType       string        `mapstructure:"db_type" validate:"required"`
	DBHost       string        `mapstructure:"db_host" validate:"required"`
	DBPort       int           `mapstructure:"db_port" validate:"required,min=1,max=65535"`
	DBName       string        `mapstructure:"db_name" validate:"required"`
	DBUser       string        `mapstructure:"db_user" validate:"required"`
	DBPassword   string        `mapstructure:"db_password"`
	MaxAttempts  int           `mapstructure:"gate_max_attempts" validate:"min=1"`
	Interval     time.Duration `mapstructure:"gate_interval" validate:"gt=0"`
	ProbeTimeout time.Duration `mapstructure:"gate_probe_timeout" validate:"gt=0"`
}

var validate = eval.NewValidator("mapstructure")

var envVars = []string{
	ir.EnvDBType,
	ir.EnvDBHost,
	ir.EnvDBPort,
	ir.EnvDBName,
	ir.EnvDBUser,
	ir.EnvDBPassword,
	"GATE_MAX_ATTEMPTS",
	"GATE_INTERVAL",
	"GATE_PROBE_TIMEOUT",
}

// LoadConfig reads the gate configuration from v, which may carry bound
// flags. Environment variables are bound here.
func LoadConfig(v *viper.Viper) (*Config, error) {
	v.SetDefault("gate_max_attempts", DefaultMaxAttempts)
	v.SetDefault("gate_interval", DefaultInterval)
	v.SetDefault("gate_probe_timeout", DefaultProbeTimeout)

	for _, env := range envVars {
		_ = v.BindEnv(strings.ToLower(env), env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling gate config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, eval.FromValidation(err, strings.ToUpper)
	}
	return &cfg, nil
}
