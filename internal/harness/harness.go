package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/dispatch"
	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/pipeline"
	"github.com/roach88/narrator/internal/store"
	"github.com/roach88/narrator/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a fake clock and sequential IDs.
type Harness struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	push     *dispatch.MemoryPushSender
	clock    *testutil.FakeClock
	ids      *sequence
	logger   *zap.Logger
	lobbyID  string

	// keys maps event keys to IDs in first-enqueue order.
	keys  map[string]string
	order []string
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	dsn    string
	logger *zap.Logger
}

// WithDatabase runs against the SQLite database at dsn instead of a fresh
// in-memory one. Used to keep a run's database for inspection.
func WithDatabase(dsn string) Option {
	return func(c *runConfig) { c.dsn = dsn }
}

// WithLogger sets the logger handed to the pipeline. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. A returned
// error means the scenario could not be executed at all; failed expectations
// and assertions are reported in Result.Errors instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{dsn: ":memory:", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}

	h := &Harness{
		store:   st,
		push:    dispatch.NewMemoryPushSender(),
		clock:   testutil.NewFakeClock(start),
		ids:     &sequence{prefix: "evt"},
		logger:  cfg.logger,
		lobbyID: scenario.Lobby.ID,
		keys:    make(map[string]string),
	}
	h.pipeline = pipeline.New(st, h.push,
		pipeline.WithClock(h.clock),
		pipeline.WithIDGenerator(h.ids),
		pipeline.WithLogger(cfg.logger),
	)

	if err := h.seed(ctx, scenario.Lobby); err != nil {
		return nil, fmt.Errorf("failed to seed lobby: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		rec, err := h.execute(ctx, i, step, result)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, rec)
		h.logger.Debug("step completed",
			zap.Int("step", i),
			zap.String("action", rec.Action),
			zap.String("detail", rec.Detail))
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture result: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, lobby LobbySetup) error {
	if err := h.store.UpsertLobby(ctx, lobby.ID, lobby.Name); err != nil {
		return err
	}
	for _, m := range lobby.Members {
		err := h.store.UpsertMember(ctx, domain.Member{
			LobbyID:     lobby.ID,
			PlayerID:    m.Player,
			DisplayName: m.Name,
			UserID:      m.User,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) (StepRecord, error) {
	rec := StepRecord{Index: i + 1}

	switch {
	case step.Enqueue != nil:
		rec.Action = "enqueue"
		outcome, err := h.enqueue(ctx, step.Enqueue)
		if err != nil {
			return rec, err
		}
		rec.Detail = fmt.Sprintf("%s/%s %s", step.Enqueue.Type, step.Enqueue.Key, outcome)
		if want := step.Enqueue.Expect; want != "" && want != outcome {
			result.AddError(fmt.Sprintf("step %d: enqueue %s: expected %s, got %s", i+1, step.Enqueue.Key, want, outcome))
		}

	case step.Process != nil:
		rec.Action = "process"
		stats, err := h.pipeline.ProcessQueue(ctx, pipeline.Options{
			LobbyID:     h.lobbyID,
			Limit:       step.Process.Limit,
			NewestFirst: step.Process.NewestFirst,
		})
		if err != nil {
			return rec, err
		}
		got := statsMap(stats)
		rec.Detail = formatStats(got)
		for _, name := range sortedKeys(step.Process.Expect) {
			want := step.Process.Expect[name]
			actual, ok := got[name]
			if !ok {
				result.AddError(fmt.Sprintf("step %d: process: unknown stat %q", i+1, name))
				continue
			}
			if actual != want {
				result.AddError(fmt.Sprintf("step %d: process: expected %s=%d, got %d", i+1, name, want, actual))
			}
		}

	case step.Advance != 0:
		rec.Action = "advance"
		h.clock.Advance(step.Advance)
		rec.Detail = step.Advance.String()

	case step.FailPush != "":
		rec.Action = "fail_push"
		h.push.FailWith(errors.New(step.FailPush))
		rec.Detail = step.FailPush

	case step.RestorePush:
		rec.Action = "restore_push"
		h.push.FailWith(nil)

	case step.Recover != 0:
		rec.Action = "recover"
		n, err := h.pipeline.Recover(ctx, step.Recover)
		if err != nil {
			return rec, err
		}
		rec.Detail = fmt.Sprintf("older_than=%s recovered=%d", step.Recover, n)

	case step.Crash != "":
		rec.Action = "crash"
		id, ok := h.keys[step.Crash]
		if !ok {
			return rec, fmt.Errorf("crash: no event with key %q", step.Crash)
		}
		ev, err := h.store.ClaimEvent(ctx, id, h.clock.Now())
		if err != nil {
			return rec, err
		}
		rec.Detail = step.Crash + " claimed"
		if ev == nil {
			rec.Detail = step.Crash + " not_claimable"
		}

	case step.Requeue != "":
		rec.Action = "requeue"
		id, ok := h.keys[step.Requeue]
		if !ok {
			return rec, fmt.Errorf("requeue: no event with key %q", step.Requeue)
		}
		err := h.pipeline.Requeue(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rec.Detail = step.Requeue + " not_requeueable"
		case err != nil:
			return rec, err
		default:
			rec.Detail = step.Requeue + " requeued"
		}
	}
	return rec, nil
}

func (h *Harness) enqueue(ctx context.Context, e *EnqueueStep) (string, error) {
	if e.Raw != "" {
		now := h.clock.Now()
		id, inserted, err := h.store.InsertEvent(ctx, domain.Event{
			ID:            h.ids.NewID(),
			LobbyID:       h.lobbyID,
			Type:          domain.EventType(e.Type),
			Key:           e.Key,
			Payload:       json.RawMessage(e.Raw),
			Status:        domain.StatusQueued,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
		if err != nil {
			return "", err
		}
		h.remember(e.Key, id)
		if !inserted {
			return OutcomeDuplicate, nil
		}
		return OutcomeEnqueued, nil
	}

	payload := json.RawMessage(`{}`)
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return "", fmt.Errorf("marshal payload: %w", err)
		}
		payload = raw
	}

	res, err := h.pipeline.Enqueue(ctx, h.lobbyID, domain.EventType(e.Type), e.Key, payload)
	if errors.Is(err, domain.ErrInvalidEvent) {
		return OutcomeRejected, nil
	}
	if err != nil {
		return "", err
	}
	h.remember(e.Key, res.EventID)
	if res.Duplicate {
		return OutcomeDuplicate, nil
	}
	return OutcomeEnqueued, nil
}

func (h *Harness) remember(key, id string) {
	if _, ok := h.keys[key]; ok {
		return
	}
	h.keys[key] = id
	h.order = append(h.order, key)
}

func (h *Harness) capture(ctx context.Context, result *Result) error {
	for _, key := range h.order {
		in, err := h.pipeline.Inspect(ctx, h.keys[key])
		if err != nil {
			return err
		}
		result.Events = append(result.Events, EventRecord{Event: in.Event, RuleRuns: in.RuleRuns})
	}

	comments, err := h.store.ListComments(ctx, h.lobbyID)
	if err != nil {
		return err
	}
	result.Comments = comments
	if sent := h.push.Sent(); len(sent) > 0 {
		result.Pushes = sent
	}
	return nil
}

// sequence yields "<prefix>-0001", "<prefix>-0002", ... so that IDs sort in
// creation order, which the store uses to break timestamp ties.
type sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", s.prefix, s.n)
}

func statsMap(s pipeline.Stats) map[string]int {
	return map[string]int{
		"dequeued":      s.Dequeued,
		"processed":     s.Processed,
		"emitted":       s.Emitted,
		"skippedBudget": s.SkippedBudget,
		"skippedDedupe": s.SkippedDedupe,
		"failed":        s.Failed,
		"dead":          s.Dead,
	}
}

var statsOrder = []string{"dequeued", "processed", "emitted", "skippedBudget", "skippedDedupe", "failed", "dead"}

func formatStats(m map[string]int) string {
	var b []byte
	for i, name := range statsOrder {
		if i > 0 {
			b = append(b, ' ')
		}
		b = fmt.Appendf(b, "%s=%d", name, m[name])
	}
	return string(b)
}
