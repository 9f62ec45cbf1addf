package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/budget"
	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/dispatch"
	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/metrics"
)

// Queue is the durable event queue.
type Queue interface {
	InsertEvent(ctx context.Context, ev domain.Event) (id string, inserted bool, err error)
	FetchEligible(ctx context.Context, f domain.EligibleFilter) ([]domain.Event, error)
	ClaimEvent(ctx context.Context, id string, now time.Time) (*domain.Event, error)
	CompleteEvent(ctx context.Context, id string, now time.Time) error
	FailEvent(ctx context.Context, id, lastError string, nextAttemptAt, now time.Time) error
	KillEvent(ctx context.Context, id, lastError string, now time.Time) error
	RequeueEvent(ctx context.Context, id string, now time.Time) error
	RecoverStale(ctx context.Context, olderThan, now time.Time, maxAttempts int) (int64, error)
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context, f domain.ListFilter) ([]domain.Event, error)
	Ping(ctx context.Context) error
}

// Audit is the append-only rule-run log.
type Audit interface {
	WriteRuleRun(ctx context.Context, run domain.RuleRun) error
	ListRuleRuns(ctx context.Context, eventID string) ([]domain.RuleRun, error)
}

// Directory supplies the lobby names and identities rules render with.
type Directory interface {
	LoadLobby(ctx context.Context, lobbyID string) (domain.Lobby, error)
}

// Store is everything the pipeline persists. store.Store and memstore.Store
// both satisfy it.
type Store interface {
	Queue
	Audit
	Directory
	budget.History
	dispatch.Ledger
	dispatch.CommentSink
}

// PayloadValidator checks an event payload against its schema.
type PayloadValidator interface {
	Validate(t domain.EventType, raw json.RawMessage) error
}

type validatorFunc func(domain.EventType, json.RawMessage) error

func (f validatorFunc) Validate(t domain.EventType, raw json.RawMessage) error { return f(t, raw) }

// Pipeline is the ingest and processing entry point.
//
// Thread-safety: all methods are safe for concurrent use.
type Pipeline struct {
	store      Store
	budget     *budget.Checker
	dispatcher *dispatch.Dispatcher
	validator  PayloadValidator
	clock      clock.Clock
	ids        domain.IDGenerator
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// async counts ProcessQueueAsync runs still in flight.
	async sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock for every timestamp the pipeline writes.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithIDGenerator sets the generator for event and comment IDs.
//
// Use domain.NewFixedGenerator in tests for reproducible IDs.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the Prometheus collectors. Default: none.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithValidator replaces the CUE payload validator.
func WithValidator(v PayloadValidator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// New creates a pipeline over s, delivering pushes through push.
func New(s Store, push dispatch.PushSender, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     s,
		validator: validatorFunc(domain.ValidatePayload),
		clock:     clock.System{},
		ids:       domain.UUIDv7Generator{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.budget = budget.NewChecker(s)
	p.dispatcher = dispatch.New(s, s, push,
		dispatch.WithClock(p.clock),
		dispatch.WithIDGenerator(p.ids),
		dispatch.WithLogger(p.logger),
	)
	return p
}
