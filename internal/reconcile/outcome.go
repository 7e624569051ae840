package reconcile

import "sfyaml/internal/catalog"

// Outcome is what happened to one definition.
type Outcome int

const (
	Created Outcome = iota
	Planned         // dry run: would be created or dropped
	Skipped         // nothing to do (exists, no stage, ...)
	Failed          // invalid definition or warehouse error
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Planned:
		return "planned"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result is the per-object record.
type Result struct {
	Name    string
	Outcome Outcome
	// Statement is the DDL executed or planned, if any.
	Statement string
	// Reason explains a Skipped or Failed outcome.
	Reason string
	Err    error
}

// CategoryReport aggregates the results of one category, in definition order.
type CategoryReport struct {
	Category catalog.Category
	Results  []Result
}

// Count returns how many results have outcome o.
func (r CategoryReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Summary is the outcome of a whole apply or rollback.
type Summary struct {
	Reports []CategoryReport
	// Schemas holds connector schema results (apply only).
	Schemas []Result
	// Committed is true once the apply transaction committed.
	Committed bool
	// Refused is true when a rollback stopped for lack of confirmation.
	Refused bool
}

// Failures counts Failed outcomes across categories and schemas.
func (s Summary) Failures() int {
	n := 0
	for _, r := range s.Reports {
		n += r.Count(Failed)
	}
	for _, r := range s.Schemas {
		if r.Outcome == Failed {
			n++
		}
	}
	return n
}
