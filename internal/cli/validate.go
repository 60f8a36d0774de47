package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the settings file",
	Long: `Loads the settings file, applies defaults and reports every missing or
invalid setting. No cloud call is made.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checking %s... ", rootArgs.file)

	p, err := loadProject(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, red("FAILED"))
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintln(out, green("OK"))

	s := p.settings
	fmt.Fprintf(out, "\nProject %s (%s) via provider %s\n", s.Project, s.Region, s.Provider)
	fmt.Fprintf(out, "Service %s -> instance %s, database %s\n", s.Service.Name, s.Database.Instance, s.Database.Name)
	return nil
}
