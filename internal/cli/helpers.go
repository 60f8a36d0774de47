package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/picklr-io/converge/internal/engine"
	"github.com/picklr-io/converge/internal/eval"
	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/internal/provider"
	"github.com/picklr-io/converge/internal/state"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// project bundles what every command needs from the settings file.
type project struct {
	dir       string
	file      string
	evaluator *eval.Evaluator
	settings  *ir.Settings
}

// loadProject resolves the settings file and loads it. Validation errors are
// returned as is so callers can list every missing setting.
func loadProject(ctx context.Context) (*project, error) {
	file, err := filepath.Abs(rootArgs.file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootArgs.file, err)
	}
	p := &project{dir: filepath.Dir(file), file: file}
	p.evaluator = eval.NewEvaluator(p.dir)

	s, err := p.evaluator.LoadSettings(ctx, file, nil)
	if err != nil {
		return nil, err
	}
	if rootArgs.provider != "" {
		s.Provider = rootArgs.provider
	}
	p.settings = s
	return p, nil
}

// imageVerifier is implemented by providers that can check the image exists.
type imageVerifier interface {
	VerifyImage(ctx context.Context, image string) error
}

// newEngine loads the configured provider and returns an engine bound to it.
// The returned func releases the provider's connections.
func newEngine(ctx context.Context, s *ir.Settings) (*engine.Engine, func(), error) {
	registry := provider.NewRegistry()
	release := func() {
		if err := registry.Close(); err != nil {
			logging.Warn("failed to release provider", "error", err)
		}
	}
	if err := registry.LoadProvider(ctx, s.Provider, s); err != nil {
		return nil, nil, err
	}
	client, err := registry.Get(s.Provider)
	if err != nil {
		release()
		return nil, nil, err
	}

	eng := engine.NewEngine(client)
	policy, err := engine.RetryPolicyFromSettings(s.Retry)
	if err != nil {
		release()
		return nil, nil, err
	}
	eng.Retry = policy

	if v, ok := client.(imageVerifier); ok && s.VerifyImage {
		eng.VerifyImage = v.VerifyImage
	}
	return eng, release, nil
}

// reportBackend opens the report store; relative local paths are resolved
// against the settings file directory.
func reportBackend(ctx context.Context, p *project) (state.Backend, error) {
	cfg := p.settings.Report
	if cfg == nil {
		cfg = &ir.ReportSettings{Backend: "local"}
	}
	if cfg.Backend == "local" || cfg.Backend == "" {
		path := cfg.Config["path"]
		if path == "" {
			path = state.DefaultReportPath
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.dir, path)
		}
		return state.NewManager(path, p.evaluator), nil
	}
	return state.NewBackend(ctx, cfg, p.evaluator)
}

func colorAction(action string) string {
	switch strings.ToUpper(action) {
	case string(ir.ActionCreated), "CREATE":
		return green(action)
	case string(ir.ActionUpdated), "UPDATE", "VERSION", "GRANT":
		return yellow(action)
	case string(ir.ActionFailed), "BLOCKED":
		return red(action)
	default:
		return faint(action)
	}
}

// renderResults prints one row per step.
func renderResults(w io.Writer, results []ir.ReconcileResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		detail := r.Version
		if detail != "" {
			detail = "version " + detail
		}
		if len(r.Changed) > 0 {
			detail = strings.Join(r.Changed, ", ")
		}
		if r.Err != nil {
			detail = r.Err.Error()
		}
		rows = append(rows, []string{r.Kind, r.Name, colorAction(string(r.Action)), detail})
	}
	printTable(w, []string{"kind", "name", "action", "detail"}, rows)
}

func renderRecords(w io.Writer, records []*ir.ResultRecord) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		detail := r.Error
		if detail == "" && len(r.Changed) > 0 {
			detail = strings.Join(r.Changed, ", ")
		}
		rows = append(rows, []string{r.Kind, r.Name, colorAction(r.Action), r.Duration, detail})
	}
	printTable(w, []string{"kind", "name", "action", "duration", "detail"}, rows)
}

func renderSummary(w io.Writer, s *ir.ReportSummary) {
	fmt.Fprintf(w, "\n%s created, %s updated, %d unchanged, %s failed\n",
		green(s.Created), yellow(s.Updated), s.Unchanged, red(s.Failed))
}

// renderPlan prints each change with its managed-field diff.
func renderPlan(w io.Writer, plan *ir.Plan) {
	for _, c := range plan.Changes {
		fmt.Fprintf(w, "%s %s %s", colorAction(strings.ToUpper(c.Action)), c.Kind, c.Name)
		if c.Message != "" {
			fmt.Fprintf(w, " %s", faint("("+c.Message+")"))
		}
		fmt.Fprintln(w)

		keys := make([]string, 0, len(c.Diff))
		for k := range c.Diff {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d := c.Diff[k]
			if d.Sensitive {
				fmt.Fprintf(w, "    ~ %s = %s\n", k, faint("(sensitive)"))
				continue
			}
			fmt.Fprintf(w, "    ~ %s = %q -> %q\n", k, d.Before, d.After)
		}
	}

	s := plan.Summary
	if s == nil {
		s = &ir.PlanSummary{}
	}
	fmt.Fprintf(w, "\nPlan: %d to create, %d to update, %d secret versions, %d grants, %d unchanged, %d blocked\n",
		s.Create, s.Update, s.Version, s.Grant, s.NoOp, s.Blocked)
}

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}
