package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planDetailedExitCode bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview what apply would change",
	Long: `Describes every managed resource and compares its managed fields with
the settings. Nothing is created or modified. Sensitive values are never shown.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planDetailedExitCode, "detailed-exitcode", false, "return an error when the plan has changes")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := loadProject(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	eng, release, err := newEngine(ctx, p.settings)
	if err != nil {
		return err
	}
	defer release()

	plan, err := eng.CreatePlan(ctx, p.settings)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	renderPlan(out, plan)
	if !plan.HasChanges() {
		fmt.Fprintln(out, "\nNo changes. Everything is up to date.")
		return nil
	}
	if planDetailedExitCode {
		return fmt.Errorf("plan has changes")
	}
	return nil
}
