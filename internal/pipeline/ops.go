package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/domain"
)

// Recover returns processing events whose claim is older than olderThan to
// failed, eligible immediately. A processor that crashed between claim and
// completion otherwise leaves its event stuck in processing forever. An event
// whose crashed claim was its last attempt goes to dead.
//
// Recovery does not touch the dedupe ledger: effects already claimed by the
// crashed run stay claimed and are reported as duplicates on retry.
func (p *Pipeline) Recover(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("recover: stale threshold must be positive, got %s", olderThan)
	}
	now := p.clock.Now()
	n, err := p.store.RecoverStale(ctx, now.Add(-olderThan), now, MaxAttempts)
	if err != nil {
		return 0, p.storeErr("recover", err)
	}
	p.metrics.Recovered(n)
	if n > 0 {
		p.logger.Info("stale claims recovered", zap.Int64("count", n), zap.Duration("older_than", olderThan))
	}
	return n, nil
}

// Requeue resets a dead or failed event to queued with zero attempts.
// Returns domain.ErrNotFound if no such event is in a requeueable state.
func (p *Pipeline) Requeue(ctx context.Context, eventID string) error {
	if err := p.store.RequeueEvent(ctx, eventID, p.clock.Now()); err != nil {
		return p.storeErr("requeue", err)
	}
	p.logger.Info("event requeued", zap.String("event_id", eventID))
	return nil
}

// Inspection is an event together with its audit trail.
type Inspection struct {
	Event    domain.Event     `json:"event"`
	RuleRuns []domain.RuleRun `json:"ruleRuns"`
}

// Inspect returns one event and every rule-run row written for it.
func (p *Pipeline) Inspect(ctx context.Context, eventID string) (Inspection, error) {
	ev, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		return Inspection{}, p.storeErr("inspect", err)
	}
	runs, err := p.store.ListRuleRuns(ctx, eventID)
	if err != nil {
		return Inspection{}, p.storeErr("inspect rule runs", err)
	}
	return Inspection{Event: ev, RuleRuns: runs}, nil
}

// ListEvents returns events matching f, newest first.
func (p *Pipeline) ListEvents(ctx context.Context, f domain.ListFilter) ([]domain.Event, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidEvent, f.Status)
	}
	events, err := p.store.ListEvents(ctx, f)
	if err != nil {
		return nil, p.storeErr("list events", err)
	}
	return events, nil
}

// Healthy reports whether the queue store is reachable and provisioned.
func (p *Pipeline) Healthy(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return p.storeErr("ping", err)
	}
	return nil
}
