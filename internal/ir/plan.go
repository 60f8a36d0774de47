package ir

// Plan is a read-only preview of what a run would do.
type Plan struct {
	Changes []*ResourceChange
	Summary *PlanSummary
}

type ResourceChange struct {
	Kind    string
	Name    string
	Action  string // "create", "update", "noop", "version", "grant", "blocked"
	Diff    map[string]*PropertyDiff
	Message string
}

// PropertyDiff is one managed field that differs. Sensitive values are never
// populated.
type PropertyDiff struct {
	Before    string
	After     string
	Sensitive bool
}

type PlanSummary struct {
	Create  int
	Update  int
	NoOp    int
	Version int
	Grant   int
	Blocked int
}

// Plan actions.
const (
	PlanCreate  = "create"
	PlanUpdate  = "update"
	PlanNoOp    = "noop"
	PlanVersion = "version"
	PlanGrant   = "grant"
	PlanBlocked = "blocked"
)

// Add records a change and updates the summary.
func (p *Plan) Add(c *ResourceChange) {
	if p.Summary == nil {
		p.Summary = &PlanSummary{}
	}
	p.Changes = append(p.Changes, c)
	switch c.Action {
	case PlanCreate:
		p.Summary.Create++
	case PlanUpdate:
		p.Summary.Update++
	case PlanNoOp:
		p.Summary.NoOp++
	case PlanVersion:
		p.Summary.Version++
	case PlanGrant:
		p.Summary.Grant++
	case PlanBlocked:
		p.Summary.Blocked++
	}
}

// HasChanges reports whether applying the plan would mutate anything.
func (p *Plan) HasChanges() bool {
	return p.Summary != nil && (p.Summary.Create+p.Summary.Update+p.Summary.Version) > 0
}
