package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/narrator/internal/domain"
)

const eventColumns = `id, lobby_id, type, event_key, payload, status, attempts,
	next_attempt_at, last_error, created_at, updated_at, processed_at`

// InsertEvent appends a queued event.
// Uses ON CONFLICT(lobby_id, type, event_key) DO NOTHING for idempotency. If
// the logical occurrence already exists, returns the existing ID and
// inserted=false.
func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) (id string, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, wrapErr("insert event: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	payload := string(ev.Payload)
	if payload == "" {
		payload = "{}"
	}
	status := ev.Status
	if status == "" {
		status = domain.StatusQueued
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, lobby_id, type, event_key, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT(lobby_id, type, event_key) DO NOTHING
	`,
		ev.ID,
		ev.LobbyID,
		string(ev.Type),
		ev.Key,
		payload,
		string(status),
		ev.Attempts,
		toMillis(ev.NextAttemptAt),
		toMillis(ev.CreatedAt),
		toMillis(ev.CreatedAt),
	)
	if err != nil {
		return "", false, wrapErr("insert event", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", false, wrapErr("insert event: rows affected", err)
	}

	if rowsAffected > 0 {
		id, inserted = ev.ID, true
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM events
			WHERE lobby_id = ? AND type = ? AND event_key = ?
		`, ev.LobbyID, string(ev.Type), ev.Key).Scan(&id)
		if err != nil {
			return "", false, wrapErr("insert event: select existing", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, wrapErr("insert event: commit", err)
	}
	return id, inserted, nil
}

// FetchEligible returns up to f.Limit claimable events (queued or failed and
// due at f.Now), ordered by creation time.
func (s *Store) FetchEligible(ctx context.Context, f domain.EligibleFilter) ([]domain.Event, error) {
	var (
		where = []string{"status IN ('queued', 'failed')", "next_attempt_at <= ?"}
		args  = []any{toMillis(f.Now)}
	)
	if f.LobbyID != "" {
		where = append(where, "lobby_id = ?")
		args = append(args, f.LobbyID)
	}
	order := "ASC"
	if f.NewestFirst {
		order = "DESC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE %s
		ORDER BY created_at %s, id COLLATE BINARY %s
		LIMIT ?
	`, eventColumns, strings.Join(where, " AND "), order, order)

	return s.queryEvents(ctx, "fetch eligible", query, args...)
}

// ClaimEvent atomically moves an eligible event to processing and increments
// its attempt count. Returns (nil, nil) if the event is not claimable: another
// processor owns it, it is terminal, or it is not yet due.
func (s *Store) ClaimEvent(ctx context.Context, id string, now time.Time) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE events
		SET status = 'processing', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'failed') AND next_attempt_at <= ?
		RETURNING %s
	`, eventColumns), toMillis(now), id, toMillis(now))

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("claim event", err)
	}
	return &ev, nil
}

// CompleteEvent marks a processing event done.
func (s *Store) CompleteEvent(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = 'done', last_error = '', processed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, toMillis(now), toMillis(now), id)
	return wrapErr("complete event", err)
}

// FailEvent marks a processing event failed and schedules its next attempt.
func (s *Store) FailEvent(ctx context.Context, id, lastError string, nextAttemptAt, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = 'failed', last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, lastError, toMillis(nextAttemptAt), toMillis(now), id)
	return wrapErr("fail event", err)
}

// KillEvent moves a processing event to the terminal dead state.
func (s *Store) KillEvent(ctx context.Context, id, lastError string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = 'dead', last_error = ?, processed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, lastError, toMillis(now), toMillis(now), id)
	return wrapErr("kill event", err)
}

// RequeueEvent resets a dead or failed event to queued with a fresh attempt
// budget. Returns domain.ErrNotFound if no such event is in either state.
func (s *Store) RequeueEvent(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = 'queued', attempts = 0, next_attempt_at = ?, updated_at = ?, processed_at = NULL
		WHERE id = ? AND status IN ('dead', 'failed')
	`, toMillis(now), toMillis(now), id)
	if err != nil {
		return wrapErr("requeue event", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return wrapErr("requeue event: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("requeue event %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// RecoverStale returns processing events whose claim has not been touched
// since olderThan to the failed state, due immediately. A processor that
// crashed mid-event otherwise leaves the row owned forever. Events that have
// already used maxAttempts claims go to dead instead.
func (s *Store) RecoverStale(ctx context.Context, olderThan, now time.Time, maxAttempts int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = CASE WHEN attempts >= ? THEN 'dead' ELSE 'failed' END,
		    processed_at = CASE WHEN attempts >= ? THEN ? ELSE processed_at END,
		    last_error = 'claim expired', next_attempt_at = ?, updated_at = ?
		WHERE status = 'processing' AND updated_at < ?
	`, maxAttempts, maxAttempts, toMillis(now), toMillis(now), toMillis(now), toMillis(olderThan))
	if err != nil {
		return 0, wrapErr("recover stale", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, wrapErr("recover stale: rows affected", err)
	}
	return n, nil
}

// GetEvent retrieves a single event by ID.
// Returns domain.ErrNotFound if it does not exist.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM events WHERE id = ?`, eventColumns), id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("get event %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Event{}, wrapErr("get event", err)
	}
	return ev, nil
}

// ListEvents returns events for inspection, newest first.
func (s *Store) ListEvents(ctx context.Context, f domain.ListFilter) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.LobbyID != "" {
		where = append(where, "lobby_id = ?")
		args = append(args, f.LobbyID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM events
		%s
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, eventColumns, clause)

	return s.queryEvents(ctx, "list events", query, args...)
}

func (s *Store) queryEvents(ctx context.Context, op, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, wrapErr(op+": scan", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op+": iterate", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (domain.Event, error) {
	var (
		ev                                  domain.Event
		evType, status, payload             string
		nextAttemptAt, createdAt, updatedAt int64
		processedAt                         sql.NullInt64
	)
	if err := r.Scan(
		&ev.ID, &ev.LobbyID, &evType, &ev.Key, &payload, &status, &ev.Attempts,
		&nextAttemptAt, &ev.LastError, &createdAt, &updatedAt, &processedAt,
	); err != nil {
		return domain.Event{}, err
	}

	ev.Type = domain.EventType(evType)
	ev.Status = domain.Status(status)
	ev.Payload = []byte(payload)
	ev.NextAttemptAt = fromMillis(nextAttemptAt)
	ev.CreatedAt = fromMillis(createdAt)
	ev.UpdatedAt = fromMillis(updatedAt)
	if processedAt.Valid {
		t := fromMillis(processedAt.Int64)
		ev.ProcessedAt = &t
	}
	return ev, nil
}
