package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/domain"
)

// Ledger is the per-effect compare-and-swap.
type Ledger interface {
	ClaimDispatch(ctx context.Context, c domain.DedupeClaim) (claimed bool, err error)
}

// CommentSink stores narrative comments.
type CommentSink interface {
	InsertComment(ctx context.Context, c domain.Comment) error
}

// Notification is the transport-neutral body of a push.
type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	URL     string `json:"url,omitempty"`
	RuleID  string `json:"ruleId"`
	EventID string `json:"eventId"`
}

// PushSender delivers push notifications.
type PushSender interface {
	SendToUser(ctx context.Context, userID string, n Notification) error
	SendToLobby(ctx context.Context, lobbyID, excludeUserID string, n Notification) error
}

// Result reports what Dispatch did.
type Result struct {
	Emitted   bool
	Duplicate bool
}

// Dispatcher claims and performs side effects.
type Dispatcher struct {
	ledger   Ledger
	comments CommentSink
	push     PushSender
	clock    clock.Clock
	ids      domain.IDGenerator
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used to stamp claims and comments.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithIDGenerator sets the comment ID generator.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(d *Dispatcher) { d.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher.
func New(ledger Ledger, comments CommentSink, push PushSender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:   ledger,
		comments: comments,
		push:     push,
		clock:    clock.System{},
		ids:      domain.UUIDv7Generator{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch claims out's dedupe ticket and, if the claim is new, performs the
// effect. Errors are *Error values.
func (d *Dispatcher) Dispatch(ctx context.Context, out domain.DispatchOutput, eventID string) (Result, error) {
	now := d.clock.Now()

	claimed, err := d.ledger.ClaimDispatch(ctx, domain.DedupeClaim{
		LobbyID:   out.LobbyID,
		RuleKey:   out.RuleKey(),
		DedupeKey: out.DedupeKey,
		EventID:   eventID,
		CreatedAt: now,
	})
	if err != nil {
		return Result{}, newError(ErrCodeClaimFailed, out, err)
	}
	if !claimed {
		d.logger.Debug("dispatch duplicate",
			zap.String("event_id", eventID),
			zap.String("rule_id", out.RuleID),
			zap.String("dedupe_key", out.DedupeKey))
		return Result{Duplicate: true}, nil
	}

	if err := d.perform(ctx, out, eventID, now); err != nil {
		return Result{}, err
	}
	return Result{Emitted: true}, nil
}

func (d *Dispatcher) perform(ctx context.Context, out domain.DispatchOutput, eventID string, now time.Time) error {
	switch out.Channel {
	case domain.ChannelFeed, domain.ChannelHistory:
		if out.Comment == nil {
			return newError(ErrCodeUnsupported, out, fmt.Errorf("no comment payload"))
		}
		c := out.Comment
		return d.effect(out, d.comments.InsertComment(ctx, domain.Comment{
			ID:            d.ids.NewID(),
			LobbyID:       out.LobbyID,
			EventID:       eventID,
			RuleID:        out.RuleID,
			Kind:          c.Kind,
			Body:          c.Body,
			Visibility:    c.Visibility,
			ActivityID:    c.ActivityID,
			ActorPlayerID: c.ActorPlayerID,
			CreatedAt:     now,
		}))

	case domain.ChannelPush:
		if out.Push == nil {
			return newError(ErrCodeUnsupported, out, fmt.Errorf("no push payload"))
		}
		p := out.Push
		n := Notification{Title: p.Title, Body: p.Body, URL: p.URL, RuleID: out.RuleID, EventID: eventID}
		switch p.Mode {
		case domain.PushToUser:
			return d.effect(out, d.push.SendToUser(ctx, p.TargetUserID, n))
		case domain.PushToLobby:
			lobbyID := p.LobbyID
			if lobbyID == "" {
				lobbyID = out.LobbyID
			}
			return d.effect(out, d.push.SendToLobby(ctx, lobbyID, p.ExcludeUserID, n))
		}
		return newError(ErrCodeUnsupported, out, fmt.Errorf("push mode %q", p.Mode))
	}
	return newError(ErrCodeUnsupported, out, fmt.Errorf("channel %q", out.Channel))
}

func (d *Dispatcher) effect(out domain.DispatchOutput, err error) error {
	if err != nil {
		return newError(ErrCodeEffectFailed, out, err)
	}
	return nil
}
