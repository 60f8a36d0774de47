// Package state persists run reports, locally as PKL text or remotely in S3.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/picklr-io/converge/internal/eval"
	"github.com/picklr-io/converge/internal/ir"
)

// DefaultReportPath is where the local backend keeps the last report.
const DefaultReportPath = ".converge/report.pkl"

// ErrNoReport is returned by Read when no run has been recorded yet.
var ErrNoReport = errors.New("no run report recorded")

// Manager is the local report store.
type Manager struct {
	path      string
	evaluator *eval.Evaluator
}

func NewManager(path string, evaluator *eval.Evaluator) *Manager {
	return &Manager{
		path:      path,
		evaluator: evaluator,
	}
}

// Path returns the report file location.
func (m *Manager) Path() string { return m.path }

// Read loads the last report. Encrypted files are decrypted first.
func (m *Manager) Read(ctx context.Context) (*ir.Report, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report file %s: %w", m.path, err)
	}

	if !IsEncrypted(raw) {
		report, err := m.evaluator.LoadReport(ctx, m.path)
		if err != nil {
			return nil, fmt.Errorf("failed to load report from %s: %w", m.path, err)
		}
		return report, nil
	}

	decrypted, err := DecryptReport(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt report: %w", err)
	}
	return loadFromBytes(ctx, m.evaluator, decrypted)
}

// Write replaces the report, encrypting it when a key is configured.
func (m *Manager) Write(_ context.Context, report *ir.Report) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := EncryptReport([]byte(SerializeReport(report)))
	if err != nil {
		return fmt.Errorf("failed to encrypt report: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write report file %s: %w", m.path, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace report file %s: %w", m.path, err)
	}
	return nil
}

// loadFromBytes evaluates PKL content through a temporary file, which is what
// the evaluator reads from.
func loadFromBytes(ctx context.Context, evaluator *eval.Evaluator, content []byte) (*ir.Report, error) {
	tmpFile, err := os.CreateTemp("", "converge-report-*.pkl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write temp report file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to write temp report file: %w", err)
	}

	report, err := evaluator.LoadReport(ctx, tmpFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return report, nil
}

// SerializeReport renders a report as a PKL module.
func SerializeReport(r *ir.Report) string {
	var b strings.Builder

	b.WriteString("// converge run report\n\n")
	fmt.Fprintf(&b, "runId = %s\n", pklString(r.RunID))
	fmt.Fprintf(&b, "project = %s\n", pklString(r.Project))
	fmt.Fprintf(&b, "provider = %s\n", pklString(r.Provider))
	fmt.Fprintf(&b, "startedAt = %s\n", pklString(r.StartedAt))
	fmt.Fprintf(&b, "finishedAt = %s\n\n", pklString(r.FinishedAt))

	if len(r.Results) == 0 {
		b.WriteString("results = new Listing {}\n\n")
	} else {
		b.WriteString("results = new Listing {\n")
		for _, res := range r.Results {
			b.WriteString("  new {\n")
			fmt.Fprintf(&b, "    kind = %s\n", pklString(res.Kind))
			fmt.Fprintf(&b, "    name = %s\n", pklString(res.Name))
			fmt.Fprintf(&b, "    action = %s\n", pklString(res.Action))
			fmt.Fprintf(&b, "    error = %s\n", pklString(res.Error))
			fmt.Fprintf(&b, "    changed = %s\n", pklListing(res.Changed))
			fmt.Fprintf(&b, "    version = %s\n", pklString(res.Version))
			fmt.Fprintf(&b, "    duration = %s\n", pklString(res.Duration))
			b.WriteString("  }\n")
		}
		b.WriteString("}\n\n")
	}

	s := r.Summary
	if s == nil {
		s = &ir.ReportSummary{}
	}
	b.WriteString("summary {\n")
	fmt.Fprintf(&b, "  created = %d\n", s.Created)
	fmt.Fprintf(&b, "  updated = %d\n", s.Updated)
	fmt.Fprintf(&b, "  unchanged = %d\n", s.Unchanged)
	fmt.Fprintf(&b, "  failed = %d\n", s.Failed)
	b.WriteString("}\n")

	return b.String()
}

func pklListing(items []string) string {
	if len(items) == 0 {
		return "new Listing {}"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pklString(s)
	}
	return "new Listing { " + strings.Join(quoted, "; ") + " }"
}

// pklString quotes s as a PKL string literal.
func pklString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
