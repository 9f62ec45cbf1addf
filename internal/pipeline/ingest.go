package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/store"
)

// EnqueueResult reports the outcome of Enqueue.
type EnqueueResult struct {
	Enqueued  bool   `json:"enqueued"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"eventId,omitempty"`
}

// Enqueue records a domain event for asynchronous narration.
//
// Enqueueing the same (lobbyID, type, key) twice is safe: the second call
// reports Duplicate with the original event's ID and changes nothing.
//
// Returns an error wrapping domain.ErrInvalidEvent for unknown types, blank
// lobby or key, and payloads that fail schema validation. Returns a
// *QueueUnavailableError when the store is not provisioned or closed.
func (p *Pipeline) Enqueue(ctx context.Context, lobbyID string, t domain.EventType, key string, payload json.RawMessage) (EnqueueResult, error) {
	lobbyID = strings.TrimSpace(lobbyID)
	key = strings.TrimSpace(key)

	if err := p.validate(lobbyID, t, key, payload); err != nil {
		p.metrics.Enqueued(string(t), "rejected")
		return EnqueueResult{}, err
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	now := p.clock.Now()
	id, inserted, err := p.store.InsertEvent(ctx, domain.Event{
		ID:            p.ids.NewID(),
		LobbyID:       lobbyID,
		Type:          t,
		Key:           key,
		Payload:       payload,
		Status:        domain.StatusQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	if err != nil {
		return EnqueueResult{}, p.storeErr("enqueue", err)
	}

	if !inserted {
		p.metrics.Enqueued(string(t), "duplicate")
		p.logger.Debug("enqueue duplicate",
			zap.String("event_id", id),
			zap.String("lobby_id", lobbyID),
			zap.String("type", string(t)),
			zap.String("key", key))
		return EnqueueResult{Duplicate: true, EventID: id}, nil
	}

	p.metrics.Enqueued(string(t), "enqueued")
	p.logger.Debug("event enqueued",
		zap.String("event_id", id),
		zap.String("lobby_id", lobbyID),
		zap.String("type", string(t)))
	return EnqueueResult{Enqueued: true, EventID: id}, nil
}

func (p *Pipeline) validate(lobbyID string, t domain.EventType, key string, payload json.RawMessage) error {
	if lobbyID == "" {
		return fmt.Errorf("%w: lobby id is required", domain.ErrInvalidEvent)
	}
	if key == "" {
		return fmt.Errorf("%w: key is required", domain.ErrInvalidEvent)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidEvent, t)
	}
	if err := p.validator.Validate(t, payload); err != nil {
		return err
	}
	return nil
}

// storeErr converts infrastructure failures into QueueUnavailableError.
func (p *Pipeline) storeErr(op string, err error) error {
	if store.IsUnavailable(err) {
		p.metrics.Unavailable()
		p.logger.Warn("queue unavailable", zap.String("op", op), zap.Error(err))
		return &QueueUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
