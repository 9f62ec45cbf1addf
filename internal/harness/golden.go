package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/narrator/internal/domain"
)

// Render formats a result as stable text for golden comparison. Timestamps
// and generated IDs are left out; events are named by type and key.
func Render(name string, r *Result) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario %s\n", name)

	b.WriteString("steps:\n")
	for _, s := range r.Steps {
		line := fmt.Sprintf("  %d %s", s.Index, s.Action)
		if s.Detail != "" {
			line += " " + s.Detail
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("events:\n")
	for _, rec := range r.Events {
		ev := rec.Event
		fmt.Fprintf(&b, "  %s/%s status=%s attempts=%d", ev.Type, ev.Key, ev.Status, ev.Attempts)
		if ev.LastError != "" {
			fmt.Fprintf(&b, " last_error=%q", ev.LastError)
		}
		b.WriteString("\n")
		for _, run := range rec.RuleRuns {
			fmt.Fprintf(&b, "    %s\n", formatRuleRun(run))
		}
	}

	b.WriteString("comments:\n")
	for _, c := range r.Comments {
		fmt.Fprintf(&b, "  %s %s: %s\n", c.RuleID, c.Visibility, c.Body)
	}

	b.WriteString("pushes:\n")
	for _, p := range r.Pushes {
		target := "user " + p.UserID
		if p.Mode == domain.PushToLobby {
			target = "lobby " + p.LobbyID
			if p.ExcludeUserID != "" {
				target += " exclude=" + p.ExcludeUserID
			}
		}
		fmt.Fprintf(&b, "  %s %s [%s]: %s\n", p.Notification.RuleID, target, p.Notification.Title, p.Notification.Body)
	}

	if len(r.Errors) > 0 {
		b.WriteString("errors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
		}
	}
	return []byte(b.String())
}

// formatRuleRun renders one audit row with its meta in key order.
func formatRuleRun(run domain.RuleRun) string {
	line := fmt.Sprintf("%s %s %s score=%d", run.RuleID, run.Channel, run.Decision, run.Score)
	if run.TargetUserID != "" {
		line += " target=" + run.TargetUserID
	}
	for _, k := range sortedKeys(run.Meta) {
		line += fmt.Sprintf(" %s=%q", k, run.Meta[k])
	}
	return line
}

// RunWithGolden executes a scenario and compares the rendered result against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(name, result))
}
