// Package budget enforces the soft rate policies attached to rule outputs.
//
// Every policy is a read-then-decide count over the comment and audit
// history. Checks take no locks: concurrent processors can overshoot a limit
// by the width of their race window. Budgets throttle noise; they are not
// safety invariants. Exactly-once delivery is the dedupe ledger's job.
package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/narrator/internal/domain"
)

const (
	// FeedPerMinuteLimit is the number of feed-visible comments a lobby may
	// receive within FeedWindow.
	FeedPerMinuteLimit = 3

	// FeedWindow is the trailing window for FeedPerMinuteLimit.
	FeedWindow = 60 * time.Second

	// DailyPushLimit is the number of budgeted pushes a user may receive per
	// UTC day.
	DailyPushLimit = 1

	dayKeyLayout = "2006-01-02"
)

// History is the read side the checker counts against.
type History interface {
	CountFeedCommentsSince(ctx context.Context, lobbyID string, since time.Time) (int, error)
	CountActivityFeedComments(ctx context.Context, lobbyID, activityID string) (int, error)
	CountEmittedPushes(ctx context.Context, userID string, since time.Time) (int, error)
}

// Verdict is the outcome of a budget check. Reason and Meta are set only when
// the output is blocked; they are copied into the audit row.
type Verdict struct {
	Allowed bool
	Reason  string
	Meta    map[string]string
}

func allow() Verdict { return Verdict{Allowed: true} }

func block(b domain.BudgetType, count, limit int, meta map[string]string) Verdict {
	if meta == nil {
		meta = map[string]string{}
	}
	meta["budget"] = string(b)
	meta["count"] = strconv.Itoa(count)
	meta["limit"] = strconv.Itoa(limit)
	return Verdict{Allowed: false, Reason: string(b), Meta: meta}
}

// Checker evaluates budget policies against a History.
type Checker struct {
	history History
}

// NewChecker creates a checker reading from h.
func NewChecker(h History) *Checker {
	return &Checker{history: h}
}

// Check decides whether out may be dispatched at now.
//
// An error means the history could not be read; the caller treats it like a
// failed dispatch and retries the event.
func (c *Checker) Check(ctx context.Context, out domain.DispatchOutput, now time.Time) (Verdict, error) {
	switch out.BudgetType {
	case domain.BudgetNone, "":
		return allow(), nil

	case domain.BudgetFeedPerLobbyPerMinute:
		n, err := c.history.CountFeedCommentsSince(ctx, out.LobbyID, now.Add(-FeedWindow))
		if err != nil {
			return Verdict{}, fmt.Errorf("check %s: %w", out.BudgetType, err)
		}
		if n >= FeedPerMinuteLimit {
			return block(out.BudgetType, n, FeedPerMinuteLimit, map[string]string{"window": FeedWindow.String()}), nil
		}
		return allow(), nil

	case domain.BudgetFeedPerWorkout:
		activityID := ""
		if out.Comment != nil {
			activityID = out.Comment.ActivityID
		}
		if activityID == "" {
			return allow(), nil
		}
		n, err := c.history.CountActivityFeedComments(ctx, out.LobbyID, activityID)
		if err != nil {
			return Verdict{}, fmt.Errorf("check %s: %w", out.BudgetType, err)
		}
		if n >= 1 {
			return block(out.BudgetType, n, 1, map[string]string{"activity_id": activityID}), nil
		}
		return allow(), nil

	case domain.BudgetDailyPushPerUserPerDay:
		userID := out.TargetUserID()
		if userID == "" {
			return allow(), nil
		}
		day := DayStart(out.DayKey, now)
		n, err := c.history.CountEmittedPushes(ctx, userID, day)
		if err != nil {
			return Verdict{}, fmt.Errorf("check %s: %w", out.BudgetType, err)
		}
		if n >= DailyPushLimit {
			return block(out.BudgetType, n, DailyPushLimit, map[string]string{"day": day.Format(dayKeyLayout)}), nil
		}
		return allow(), nil
	}

	return Verdict{}, fmt.Errorf("check budget: unknown budget type %q", out.BudgetType)
}

// DayStart returns UTC midnight of dayKey ("YYYY-MM-DD"). An empty or
// unparsable key falls back to midnight of now's UTC day.
func DayStart(dayKey string, now time.Time) time.Time {
	if dayKey != "" {
		if t, err := time.ParseInLocation(dayKeyLayout, dayKey, time.UTC); err == nil {
			return t
		}
	}
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
