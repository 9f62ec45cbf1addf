package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/narrator/internal/domain"
)

// DefaultStart is the fake clock's start instant when a scenario sets none.
var DefaultStart = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// Scenario is one scripted pipeline run.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Start is the fake clock's initial instant. Zero means DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Lobby seeds the directory the rules read names and push targets from.
	Lobby LobbySetup `yaml:"lobby"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final capture.
	Assertions []Assertion `yaml:"assertions"`
}

// LobbySetup is the directory entry for the scenario's lobby.
type LobbySetup struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name,omitempty"`
	Members []MemberSetup `yaml:"members,omitempty"`
}

// MemberSetup is one lobby member.
type MemberSetup struct {
	Player string `yaml:"player"`
	Name   string `yaml:"name"`
	User   string `yaml:"user,omitempty"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	Enqueue     *EnqueueStep  `yaml:"enqueue,omitempty"`
	Process     *ProcessStep  `yaml:"process,omitempty"`
	Advance     time.Duration `yaml:"advance,omitempty"`
	FailPush    string        `yaml:"fail_push,omitempty"`
	RestorePush bool          `yaml:"restore_push,omitempty"`
	Recover     time.Duration `yaml:"recover,omitempty"`
	Requeue     string        `yaml:"requeue,omitempty"`

	// Crash claims the keyed event the way a processor would, then abandons
	// it in processing.
	Crash string `yaml:"crash,omitempty"`
}

// EnqueueStep submits one event to the scenario lobby.
type EnqueueStep struct {
	Type    string         `yaml:"type"`
	Key     string         `yaml:"key"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Raw stores the payload text as-is, bypassing ingest validation. Used
	// to plant events the rule engine cannot decode.
	Raw string `yaml:"raw,omitempty"`

	// Expect is the ingest outcome: enqueued, duplicate or rejected.
	// Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// ProcessStep runs one ProcessQueue call.
type ProcessStep struct {
	Limit       int  `yaml:"limit,omitempty"`
	NewestFirst bool `yaml:"newest_first,omitempty"`

	// Expect is a subset match on the returned stats, keyed by their JSON
	// names (dequeued, processed, emitted, skippedBudget, ...).
	Expect map[string]int `yaml:"expect,omitempty"`
}

// Enqueue outcomes.
const (
	OutcomeEnqueued  = "enqueued"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Assertion validates the final capture.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is an event key (event_status).
	Event string `yaml:"event,omitempty"`

	// Status is the expected event status (event_status).
	Status string `yaml:"status,omitempty"`

	// Attempts is the expected attempt count (event_status). Nil skips it.
	Attempts *int `yaml:"attempts,omitempty"`

	// Rule and Decision select audit rows (decision_count).
	Rule     string `yaml:"rule,omitempty"`
	Decision string `yaml:"decision,omitempty"`

	// Decisions lists "rule:decision" pairs in expected order (decision_order).
	Decisions []string `yaml:"decisions,omitempty"`

	// Visibility filters comments (comment_count).
	Visibility string `yaml:"visibility,omitempty"`

	// Mode filters pushes (push_count).
	Mode string `yaml:"mode,omitempty"`

	// Body is the expected comment substring (comment_contains).
	Body string `yaml:"body,omitempty"`

	// Count is the expected number of matches (*_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertEventStatus     = "event_status"
	AssertDecisionCount   = "decision_count"
	AssertDecisionOrder   = "decision_order"
	AssertCommentCount    = "comment_count"
	AssertCommentContains = "comment_contains"
	AssertPushCount       = "push_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Lobby.ID == "" {
		return fmt.Errorf("lobby.id is required")
	}
	for i, m := range s.Lobby.Members {
		if m.Player == "" || m.Name == "" {
			return fmt.Errorf("lobby.members[%d]: player and name are required", i)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	for _, ok := range []bool{
		st.Enqueue != nil,
		st.Process != nil,
		st.Advance != 0,
		st.FailPush != "",
		st.RestorePush,
		st.Recover != 0,
		st.Requeue != "",
		st.Crash != "",
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", index, set)
	}

	switch {
	case st.Enqueue != nil:
		e := st.Enqueue
		if e.Type == "" || e.Key == "" {
			return fmt.Errorf("steps[%d].enqueue: type and key are required", index)
		}
		if e.Raw != "" && e.Payload != nil {
			return fmt.Errorf("steps[%d].enqueue: payload and raw are mutually exclusive", index)
		}
		switch e.Expect {
		case "", OutcomeEnqueued, OutcomeDuplicate, OutcomeRejected:
		default:
			return fmt.Errorf("steps[%d].enqueue: unknown expect %q", index, e.Expect)
		}
	case st.Advance < 0:
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	case st.Recover < 0:
		return fmt.Errorf("steps[%d]: recover must be positive", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertEventStatus:
		if a.Event == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: event and status are required for event_status", index)
		}
		if !domain.Status(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertDecisionCount:
		if a.Rule == "" || a.Decision == "" {
			return fmt.Errorf("assertions[%d]: rule and decision are required for decision_count", index)
		}
	case AssertDecisionOrder:
		if len(a.Decisions) == 0 {
			return fmt.Errorf("assertions[%d]: decisions list is required for decision_order", index)
		}
	case AssertCommentContains:
		if a.Body == "" {
			return fmt.Errorf("assertions[%d]: body is required for comment_contains", index)
		}
	case AssertCommentCount, AssertPushCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
