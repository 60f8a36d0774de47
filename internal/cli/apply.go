package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/picklr-io/converge/internal/engine"
	"github.com/picklr-io/converge/internal/logging"
)

var applyNoReport bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Converge all resources to the settings",
	Long: `Reconciles, in order, the artifact repository, the database instance,
database and user, the service identity, the password and encryption key
secrets, the identity role bindings and finally the container service.

A failed step does not stop the run, but steps that depend on it are skipped.
The service is only deployed when every prior step succeeded. Running apply
again with the same settings reports every resource unchanged.`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyNoReport, "no-report", false, "do not persist the run report")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	backend, err := reportBackend(ctx, p)
	if err != nil {
		return err
	}
	if err := backend.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := backend.Unlock(ctx); err != nil {
			logging.Warn("failed to release report lock", "error", err)
		}
	}()

	run, err := eng.RunWithCallback(ctx, p.settings, func(e engine.RunEvent) {
		if e.Result == nil {
			logging.Debug("step started", "step", e.Step)
			return
		}
		fmt.Fprintf(out, "%-24s %s\n", e.Step, colorAction(string(e.Result.Action)))
	})
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	report := run.Report(p.settings.Project, p.settings.Provider)
	fmt.Fprintln(out)
	renderResults(out, run.Results)
	renderSummary(out, report.Summary)

	if !applyNoReport {
		if err := backend.Write(ctx, report); err != nil {
			logging.Error("failed to write run report", "error", err)
		}
	}

	if run.Failed() {
		err := fmt.Errorf("%d of %d steps failed", report.Summary.Failed, len(run.Results))
		if run.Aborted {
			err = errors.Join(err, errors.New("run aborted after a secret version could not be added"))
		}
		return err
	}
	return nil
}
