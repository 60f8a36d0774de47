package eval

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/apple/pkl-go/pkl"
	"gopkg.in/yaml.v3"

	"github.com/picklr-io/converge/internal/ir"
)

// Evaluator loads settings and reports from PKL or YAML files.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadSettings reads the settings file, applies defaults and validates it.
// PKL is evaluated; .yaml and .yml files are decoded strictly.
func (e *Evaluator) LoadSettings(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Settings, error) {
	var (
		s   *ir.Settings
		err error
	)
	switch strings.ToLower(filepath.Ext(entryPoint)) {
	case ".yaml", ".yml":
		s, err = decodeYAML(entryPoint)
	default:
		s, err = e.evaluatePkl(ctx, entryPoint, properties)
	}
	if err != nil {
		return nil, err
	}

	ApplyDefaults(s)
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Evaluator) evaluatePkl(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Settings, error) {
	u, err := url.Parse("file://" + e.projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewProjectEvaluator(ctx, u, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var s ir.Settings
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &s); err != nil {
		return nil, fmt.Errorf("failed to evaluate settings: %w", err)
	}
	return &s, nil
}

func decodeYAML(path string) (*ir.Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var s ir.Settings
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings file %s: %w", path, err)
	}
	return &s, nil
}

// LoadReport evaluates a report file written by the state package.
func (e *Evaluator) LoadReport(ctx context.Context, reportFile string) (*ir.Report, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var report ir.Report
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(reportFile), &report); err != nil {
		return nil, fmt.Errorf("failed to evaluate report: %w", err)
	}

	return &report, nil
}
