package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picklr-io/converge/internal/gate"
	"github.com/picklr-io/converge/internal/logging"
)

var gateCmd = &cobra.Command{
	Use:   "gate [flags] -- command [args...]",
	Short: "Wait for the database, then exec the application",
	Long: `Probes the database named by DB_TYPE, DB_HOST, DB_PORT, DB_NAME, DB_USER
and DB_PASSWORD until it accepts connections, then replaces this process with
the given command. When the database does not become ready within the attempt
bound the command is never started and the exit status is 1.`,
	Example: `  converge gate -- /app/server --port 8080
  GATE_MAX_ATTEMPTS=10 converge gate --interval 5s -- /app/server`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGate,
}

func init() {
	gateCmd.Flags().SetInterspersed(false)
	gateCmd.Flags().Int("max-attempts", gate.DefaultMaxAttempts, "probe attempts before giving up (GATE_MAX_ATTEMPTS)")
	gateCmd.Flags().Duration("interval", gate.DefaultInterval, "wait between attempts (GATE_INTERVAL)")
	gateCmd.Flags().Duration("probe-timeout", gate.DefaultProbeTimeout, "timeout of a single probe (GATE_PROBE_TIMEOUT)")
}

func runGate(cmd *cobra.Command, args []string) error {
	v := viper.New()
	for key, flag := range map[string]string{
		"gate_max_attempts":  "max-attempts",
		"gate_interval":      "interval",
		"gate_probe_timeout": "probe-timeout",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	cfg, err := gate.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("invalid gate configuration: %w", err)
	}
	probe, err := gate.NewProbe(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("waiting for database",
		"type", cfg.DBType, "host", cfg.DBHost, "port", cfg.DBPort,
		"max_attempts", cfg.MaxAttempts, "interval", cfg.Interval)

	l := &gate.Launcher{Probe: probe}
	return l.Launch(ctx, cfg, args)
}
