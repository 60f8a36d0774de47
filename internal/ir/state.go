package ir

import "time"

// Action is the outcome of reconciling one resource.
type Action string

const (
	ActionCreated   Action = "CREATED"
	ActionUpdated   Action = "UPDATED"
	ActionUnchanged Action = "UNCHANGED"
	ActionFailed    Action = "FAILED"
)

// ReconcileResult is produced once per resource per run. Err never carries a
// secret value.
type ReconcileResult struct {
	Kind     string
	Name     string
	Action   Action
	Err      error
	Changed  []string
	Version  string
	Duration time.Duration
}

func (r ReconcileResult) Failed() bool { return r.Action == ActionFailed }

// Error returns the error text, or "" when the step did not fail.
func (r ReconcileResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Report is the persisted record of a run.
type Report struct {
	RunID      string          `pkl:"runId"`
	Project    string          `pkl:"project"`
	Provider   string          `pkl:"provider"`
	StartedAt  string          `pkl:"startedAt"`
	FinishedAt string          `pkl:"finishedAt"`
	Results    []*ResultRecord `pkl:"results"`
	Summary    *ReportSummary  `pkl:"summary"`
}

// ResultRecord is the persisted form of a ReconcileResult.
type ResultRecord struct {
	Kind     string   `pkl:"kind"`
	Name     string   `pkl:"name"`
	Action   string   `pkl:"action"`
	Error    string   `pkl:"error"`
	Changed  []string `pkl:"changed"`
	Version  string   `pkl:"version"`
	Duration string   `pkl:"duration"`
}

type ReportSummary struct {
	Created   int `pkl:"created"`
	Updated   int `pkl:"updated"`
	Unchanged int `pkl:"unchanged"`
	Failed    int `pkl:"failed"`
}

// NewReport builds a report from run results.
func NewReport(runID, project, provider string, started, finished time.Time, results []ReconcileResult) *Report {
	r := &Report{
		RunID:      runID,
		Project:    project,
		Provider:   provider,
		StartedAt:  started.UTC().Format(time.RFC3339),
		FinishedAt: finished.UTC().Format(time.RFC3339),
		Summary:    &ReportSummary{},
	}
	for _, res := range results {
		r.Results = append(r.Results, &ResultRecord{
			Kind:     res.Kind,
			Name:     res.Name,
			Action:   string(res.Action),
			Error:    res.Error(),
			Changed:  res.Changed,
			Version:  res.Version,
			Duration: res.Duration.Round(time.Millisecond).String(),
		})
		switch res.Action {
		case ActionCreated:
			r.Summary.Created++
		case ActionUpdated:
			r.Summary.Updated++
		case ActionUnchanged:
			r.Summary.Unchanged++
		case ActionFailed:
			r.Summary.Failed++
		}
	}
	return r
}
