package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/converge/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the report of the last apply",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := loadProject(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	backend, err := reportBackend(ctx, p)
	if err != nil {
		return err
	}

	report, err := backend.Read(ctx)
	if errors.Is(err, state.ErrNoReport) {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read run report: %w", err)
	}

	fmt.Fprintf(out, "Run %s on %s (%s)\n", report.RunID, report.Project, report.Provider)
	fmt.Fprintf(out, "Started %s, finished %s\n\n", report.StartedAt, report.FinishedAt)
	renderRecords(out, report.Results)
	if report.Summary != nil {
		renderSummary(out, report.Summary)
	}
	return nil
}
