package harness

import (
	"github.com/roach88/narrator/internal/dispatch"
	"github.com/roach88/narrator/internal/domain"
)

// StepRecord is the observable outcome of one step.
type StepRecord struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Detail string `json:"detail"`
}

// EventRecord is one event's final row and audit trail.
type EventRecord struct {
	Event    domain.Event     `json:"event"`
	RuleRuns []domain.RuleRun `json:"ruleRuns"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors holds step expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	Steps []StepRecord `json:"steps"`

	// Events are in first-enqueue order.
	Events []EventRecord `json:"events"`

	// Comments are in creation order.
	Comments []domain.Comment `json:"comments"`

	// Pushes are in delivery order.
	Pushes []dispatch.Sent `json:"pushes"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Errors:   []string{},
		Steps:    []StepRecord{},
		Events:   []EventRecord{},
		Comments: []domain.Comment{},
		Pushes:   []dispatch.Sent{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Event returns the record for the event enqueued under key.
func (r *Result) Event(key string) (EventRecord, bool) {
	for _, rec := range r.Events {
		if rec.Event.Key == key {
			return rec, true
		}
	}
	return EventRecord{}, false
}

// RuleRuns returns every audit row in event order.
func (r *Result) RuleRuns() []domain.RuleRun {
	var runs []domain.RuleRun
	for _, rec := range r.Events {
		runs = append(runs, rec.RuleRuns...)
	}
	return runs
}
