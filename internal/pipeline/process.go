package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/dispatch"
	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/rules"
)

// Processing bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
	DefaultMaxMs = 1500
	MaxMaxMs     = 8000

	batchSize = 25
)

// buildRuleID names the audit row written when an event cannot be turned
// into candidate outputs at all.
const buildRuleID = "rule_engine"

// Options bounds one ProcessQueue call.
type Options struct {
	LobbyID     string `json:"lobbyId,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	MaxMs       int    `json:"maxMs,omitempty"`
	NewestFirst bool   `json:"newestFirst,omitempty"`
}

// normalize applies defaults and clamps to the maximums.
func (o Options) normalize() Options {
	o.Limit = clamp(o.Limit, DefaultLimit, MaxLimit)
	o.MaxMs = clamp(o.MaxMs, DefaultMaxMs, MaxMaxMs)
	return o
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// Stats summarizes one ProcessQueue call.
type Stats struct {
	Dequeued      int `json:"dequeued"`
	Processed     int `json:"processed"`
	Emitted       int `json:"emitted"`
	SkippedBudget int `json:"skippedBudget"`
	SkippedDedupe int `json:"skippedDedupe"`
	Failed        int `json:"failed"`
	Dead          int `json:"dead"`
}

// ProcessQueue claims and processes eligible events until opts.Limit events
// have been processed, opts.MaxMs has elapsed, or no claimable event remains.
//
// Safe to call concurrently from any number of goroutines or processes
// sharing the store. Stats are returned even when err is non-nil and reflect
// the work completed before the error. Per-output failures are not errors:
// they are audited and the event is retried.
//
// Cancelling ctx stops the run between events only. A claimed event is always
// carried to done, failed or dead with its audit rows written.
func (p *Pipeline) ProcessQueue(ctx context.Context, opts Options) (Stats, error) {
	opts = opts.normalize()
	work := context.WithoutCancel(ctx)

	var stats Stats
	start := p.clock.Now()
	deadline := start.Add(time.Duration(opts.MaxMs) * time.Millisecond)
	lobbies := make(map[string]*rules.LobbyContext)

	defer func() {
		p.metrics.ObserveBatch(p.clock.Now().Sub(start))
	}()

	for stats.Processed < opts.Limit {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		now := p.clock.Now()
		if !now.Before(deadline) {
			break
		}

		events, err := p.store.FetchEligible(work, domain.EligibleFilter{
			LobbyID:     opts.LobbyID,
			Limit:       min(batchSize, opts.Limit-stats.Processed),
			NewestFirst: opts.NewestFirst,
			Now:         now,
		})
		if err != nil {
			return stats, p.storeErr("fetch eligible", err)
		}
		if len(events) == 0 {
			break
		}

		claimed := 0
		for _, candidate := range events {
			if stats.Processed >= opts.Limit || !p.clock.Now().Before(deadline) {
				break
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			ev, err := p.store.ClaimEvent(work, candidate.ID, p.clock.Now())
			if err != nil {
				return stats, p.storeErr("claim event", err)
			}
			if ev == nil {
				// Another processor owns it.
				continue
			}
			claimed++
			stats.Dequeued++

			if err := p.processEvent(work, *ev, lobbies, &stats); err != nil {
				return stats, err
			}
			stats.Processed++
		}

		if claimed == 0 {
			break
		}
	}

	p.logger.Debug("queue processed",
		zap.String("lobby_id", opts.LobbyID),
		zap.Int("dequeued", stats.Dequeued),
		zap.Int("processed", stats.Processed),
		zap.Int("emitted", stats.Emitted),
		zap.Int("failed", stats.Failed),
		zap.Int("dead", stats.Dead))
	return stats, nil
}

// AsyncResult is delivered on the channel returned by ProcessQueueAsync.
type AsyncResult struct {
	Stats Stats
	Err   error
}

// ProcessQueueAsync runs ProcessQueue on a detached goroutine and returns
// immediately. Cancelling ctx does not stop the run; values in ctx are kept.
// The outcome is logged and sent once on the returned buffered channel,
// which callers may ignore. Wait blocks until every such run has finished.
func (p *Pipeline) ProcessQueueAsync(ctx context.Context, opts Options) <-chan AsyncResult {
	done := make(chan AsyncResult, 1)
	detached := context.WithoutCancel(ctx)

	p.async.Add(1)
	go func() {
		defer p.async.Done()
		defer close(done)
		stats, err := p.ProcessQueue(detached, opts)
		if err != nil {
			p.logger.Warn("async process failed", zap.String("lobby_id", opts.LobbyID), zap.Error(err))
		} else {
			p.logger.Info("async process finished",
				zap.String("lobby_id", opts.LobbyID),
				zap.Int("processed", stats.Processed),
				zap.Int("emitted", stats.Emitted))
		}
		done <- AsyncResult{Stats: stats, Err: err}
	}()
	return done
}

// Wait blocks until all runs started by ProcessQueueAsync have returned.
// Call it before closing the store.
func (p *Pipeline) Wait() {
	p.async.Wait()
}

// processEvent runs one claimed event through rules, arbitration, budgets
// and dispatch, then moves it to done, failed or dead. The returned error is
// reserved for store failures that abort the whole batch.
func (p *Pipeline) processEvent(ctx context.Context, ev domain.Event, lobbies map[string]*rules.LobbyContext, stats *Stats) error {
	log := p.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("lobby_id", ev.LobbyID),
		zap.Int("attempts", ev.Attempts))

	lc, err := p.lobbyContext(ctx, ev.LobbyID, lobbies)
	if err != nil {
		log.Warn("load lobby failed", zap.Error(err))
		return p.retry(ctx, ev, err.Error(), stats)
	}

	outputs, err := rules.Build(ev, lc)
	if err != nil {
		log.Warn("event undecodable", zap.Error(err))
		p.audit(ctx, domain.RuleRun{
			EventID:  ev.ID,
			LobbyID:  ev.LobbyID,
			RuleID:   buildRuleID,
			Channel:  domain.ChannelHistory,
			Decision: domain.DecisionError,
			Meta:     map[string]string{"reason": domain.ReasonDecodeFailed, "error": err.Error()},
		})
		return p.kill(ctx, ev, err.Error(), stats)
	}

	valid := outputs[:0:0]
	for _, out := range outputs {
		if out.Malformed() {
			p.audit(ctx, runFor(ev, out, domain.DecisionSkippedCondition, map[string]string{"reason": domain.ReasonMissingPayload}))
			continue
		}
		valid = append(valid, out)
	}

	chosen, dropped := rules.PickTopByChannel(valid)
	for _, out := range dropped {
		p.audit(ctx, runFor(ev, out, domain.DecisionSkippedCondition, map[string]string{"reason": domain.ReasonLowerPriority}))
	}

	var failures []string
	for _, out := range chosen {
		if msg := p.deliver(ctx, ev, out, stats, log); msg != "" {
			failures = append(failures, msg)
		}
	}

	if len(failures) > 0 {
		return p.retry(ctx, ev, failures[0], stats)
	}
	if err := p.store.CompleteEvent(ctx, ev.ID, p.clock.Now()); err != nil {
		return p.storeErr("complete event", err)
	}
	p.metrics.EventFinished(string(domain.StatusDone))
	return nil
}

// deliver checks the budget for one chosen output and dispatches it. It
// returns a non-empty failure message when the event must be retried.
func (p *Pipeline) deliver(ctx context.Context, ev domain.Event, out domain.DispatchOutput, stats *Stats, log *zap.Logger) string {
	verdict, err := p.budget.Check(ctx, out, p.clock.Now())
	if err != nil {
		log.Warn("budget check failed", zap.String("rule_id", out.RuleID), zap.Error(err))
		p.audit(ctx, runFor(ev, out, domain.DecisionError, map[string]string{"error": err.Error()}))
		return err.Error()
	}
	if !verdict.Allowed {
		stats.SkippedBudget++
		meta := map[string]string{"reason": verdict.Reason}
		for k, v := range verdict.Meta {
			meta[k] = v
		}
		p.audit(ctx, runFor(ev, out, domain.DecisionSkippedBudget, meta))
		return ""
	}

	res, err := p.dispatcher.Dispatch(ctx, out, ev.ID)
	if err != nil {
		meta := map[string]string{"error": err.Error()}
		var derr *dispatch.Error
		if errors.As(err, &derr) {
			meta["code"] = string(derr.Code)
		}
		log.Warn("dispatch failed",
			zap.String("rule_id", out.RuleID),
			zap.String("channel", string(out.Channel)),
			zap.Error(err))
		p.audit(ctx, runFor(ev, out, domain.DecisionError, meta))
		return err.Error()
	}
	if res.Duplicate {
		stats.SkippedDedupe++
		p.audit(ctx, runFor(ev, out, domain.DecisionSkippedDedupe, map[string]string{"dedupe_key": out.DedupeKey}))
		return ""
	}

	stats.Emitted++
	p.audit(ctx, runFor(ev, out, domain.DecisionEmitted, nil))
	return ""
}

// retry moves ev to failed with backoff, or to dead once attempts are spent.
func (p *Pipeline) retry(ctx context.Context, ev domain.Event, lastError string, stats *Stats) error {
	if ev.Attempts >= MaxAttempts {
		return p.kill(ctx, ev, lastError, stats)
	}
	now := p.clock.Now()
	next := now.Add(Backoff(ev.Attempts))
	if err := p.store.FailEvent(ctx, ev.ID, lastError, next, now); err != nil {
		return p.storeErr("fail event", err)
	}
	stats.Failed++
	p.metrics.EventFinished(string(domain.StatusFailed))
	p.logger.Info("event scheduled for retry",
		zap.String("event_id", ev.ID),
		zap.Int("attempts", ev.Attempts),
		zap.Time("next_attempt_at", next))
	return nil
}

func (p *Pipeline) kill(ctx context.Context, ev domain.Event, lastError string, stats *Stats) error {
	if err := p.store.KillEvent(ctx, ev.ID, lastError, p.clock.Now()); err != nil {
		return p.storeErr("kill event", err)
	}
	stats.Dead++
	p.metrics.EventFinished(string(domain.StatusDead))
	p.logger.Warn("event dead",
		zap.String("event_id", ev.ID),
		zap.Int("attempts", ev.Attempts),
		zap.String("last_error", lastError))
	return nil
}

// lobbyContext loads each lobby's directory once per ProcessQueue call.
func (p *Pipeline) lobbyContext(ctx context.Context, lobbyID string, cache map[string]*rules.LobbyContext) (*rules.LobbyContext, error) {
	if lc, ok := cache[lobbyID]; ok {
		return lc, nil
	}
	lobby, err := p.store.LoadLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	lc := rules.NewLobbyContext(lobby)
	cache[lobbyID] = lc
	return lc, nil
}

// audit appends one rule-run row. A failed write is logged and swallowed:
// the audit trail never blocks delivery.
func (p *Pipeline) audit(ctx context.Context, run domain.RuleRun) {
	run.CreatedAt = p.clock.Now()
	p.metrics.Decision(run.RuleID, string(run.Channel), string(run.Decision))
	if err := p.store.WriteRuleRun(ctx, run); err != nil {
		p.logger.Error("write rule run failed",
			zap.String("event_id", run.EventID),
			zap.String("rule_id", run.RuleID),
			zap.String("decision", string(run.Decision)),
			zap.Error(err))
	}
}

func runFor(ev domain.Event, out domain.DispatchOutput, d domain.Decision, meta map[string]string) domain.RuleRun {
	return domain.RuleRun{
		EventID:      ev.ID,
		LobbyID:      ev.LobbyID,
		RuleID:       out.RuleID,
		Channel:      out.Channel,
		Decision:     d,
		Score:        out.Score,
		TargetUserID: out.TargetUserID(),
		Meta:         meta,
	}
}
