package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/picklr-io/converge/internal/logging"
)

type rootFlags struct {
	logLevel  string
	logFormat string
	noColor   bool
	provider  string
	file      string
}

var rootArgs rootFlags

var rootCmd = &cobra.Command{
	Use:   "converge",
	Short: "Idempotent provisioning of a containerized app and its managed database",
	Long: `Converge brings an artifact repository, a managed database instance,
database, user, service identity, secrets and a container service to the state
described in a settings file. Every run is safe to repeat: existing resources
are compared field by field and only differences are applied.

The gate command runs inside the deployed container and holds the
application back until the database accepts connections.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		format := rootArgs.logFormat
		if rootArgs.noColor && format == logging.FormatColor {
			format = logging.FormatText
		}
		logging.Init(rootArgs.logLevel, format)
		if rootArgs.noColor {
			color.NoColor = true
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootArgs.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&rootArgs.logFormat, "log-format", logging.FormatText, "log format: text, json, color")
	pf.BoolVar(&rootArgs.noColor, "no-color", false, "disable colored output")
	pf.StringVar(&rootArgs.provider, "provider", "", "cloud provider override (gcp, memory)")
	pf.StringVarP(&rootArgs.file, "file", "f", "converge.pkl", "settings file (.pkl, .yaml or .yml)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(versionCmd)
}
