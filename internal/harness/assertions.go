package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/narrator/internal/domain"
)

// AssertionError is returned when an assertion fails.
// It includes the audit log to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	RuleRuns []domain.RuleRun // Full audit log for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nAudit log:\n")
	for i, run := range e.RuleRuns {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatRuleRun(run))
	}
	return buf.String()
}

func assertEventStatus(r *Result, a Assertion) error {
	rec, ok := r.Event(a.Event)
	if !ok {
		return &AssertionError{
			Type:     AssertEventStatus,
			Expected: fmt.Sprintf("event %s with status %s", a.Event, a.Status),
			Actual:   "event never enqueued",
			RuleRuns: r.RuleRuns(),
		}
	}
	ev := rec.Event
	if string(ev.Status) != a.Status || (a.Attempts != nil && ev.Attempts != *a.Attempts) {
		expected := fmt.Sprintf("event %s status=%s", a.Event, a.Status)
		if a.Attempts != nil {
			expected += fmt.Sprintf(" attempts=%d", *a.Attempts)
		}
		return &AssertionError{
			Type:     AssertEventStatus,
			Expected: expected,
			Actual:   fmt.Sprintf("status=%s attempts=%d last_error=%q", ev.Status, ev.Attempts, ev.LastError),
			RuleRuns: rec.RuleRuns,
		}
	}
	return nil
}

func assertDecisionCount(r *Result, a Assertion) error {
	runs := r.RuleRuns()
	count := 0
	for _, run := range runs {
		if run.RuleID == a.Rule && string(run.Decision) == a.Decision {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertDecisionCount,
			Expected: fmt.Sprintf("%d %s rows for %s", a.Count, a.Decision, a.Rule),
			Actual:   fmt.Sprintf("%d rows", count),
			RuleRuns: runs,
		}
	}
	return nil
}

// assertDecisionOrder checks that "rule:decision" pairs appear in order.
// Pairs don't need to be consecutive (intervening rows are allowed).
func assertDecisionOrder(r *Result, a Assertion) error {
	runs := r.RuleRuns()
	next := 0
	for _, run := range runs {
		if next < len(a.Decisions) && a.Decisions[next] == run.RuleID+":"+string(run.Decision) {
			next++
		}
	}
	if next < len(a.Decisions) {
		return &AssertionError{
			Type:     AssertDecisionOrder,
			Expected: fmt.Sprintf("rows in order: %v", a.Decisions),
			Actual:   fmt.Sprintf("missing or out of order: %s", a.Decisions[next]),
			RuleRuns: runs,
		}
	}
	return nil
}

func assertCommentCount(r *Result, a Assertion) error {
	count := 0
	for _, c := range r.Comments {
		if a.Visibility == "" || string(c.Visibility) == a.Visibility {
			count++
		}
	}
	if count != a.Count {
		what := "comments"
		if a.Visibility != "" {
			what = a.Visibility + " comments"
		}
		return &AssertionError{
			Type:     AssertCommentCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			RuleRuns: r.RuleRuns(),
		}
	}
	return nil
}

func assertCommentContains(r *Result, a Assertion) error {
	bodies := make([]string, len(r.Comments))
	for i, c := range r.Comments {
		if strings.Contains(c.Body, a.Body) {
			return nil
		}
		bodies[i] = c.Body
	}
	return &AssertionError{
		Type:     AssertCommentContains,
		Expected: fmt.Sprintf("a comment containing %q", a.Body),
		Actual:   fmt.Sprintf("comments %q", bodies),
		RuleRuns: r.RuleRuns(),
	}
}

func assertPushCount(r *Result, a Assertion) error {
	count := 0
	for _, p := range r.Pushes {
		if a.Mode == "" || string(p.Mode) == a.Mode {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertPushCount,
			Expected: fmt.Sprintf("%d pushes", a.Count),
			Actual:   fmt.Sprintf("%d pushes", count),
			RuleRuns: r.RuleRuns(),
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions against the result and returns
// the failure messages, one per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventStatus:
			err = assertEventStatus(result, a)
		case AssertDecisionCount:
			err = assertDecisionCount(result, a)
		case AssertDecisionOrder:
			err = assertDecisionOrder(result, a)
		case AssertCommentCount:
			err = assertCommentCount(result, a)
		case AssertCommentContains:
			err = assertCommentContains(result, a)
		case AssertPushCount:
			err = assertPushCount(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err.Error()))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
