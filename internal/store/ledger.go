package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/narrator/internal/domain"
)

// ClaimDispatch inserts a permanent claim ticket for one side effect.
// Uses ON CONFLICT DO NOTHING on (lobby_id, rule_key, dedupe_key): claimed is
// true only for the single caller whose insert affected a row.
func (s *Store) ClaimDispatch(ctx context.Context, c domain.DedupeClaim) (claimed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_dedupe
		(lobby_id, rule_key, dedupe_key, event_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(lobby_id, rule_key, dedupe_key) DO NOTHING
	`,
		c.LobbyID,
		c.RuleKey,
		c.DedupeKey,
		c.EventID,
		toMillis(c.CreatedAt),
	)
	if err != nil {
		return false, wrapErr("claim dispatch", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr("claim dispatch: rows affected", err)
	}
	return rowsAffected > 0, nil
}

// WriteRuleRun appends one audit row.
func (s *Store) WriteRuleRun(ctx context.Context, run domain.RuleRun) error {
	meta, err := run.MetaJSON()
	if err != nil {
		return fmt.Errorf("write rule run: marshal meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_runs
		(event_id, lobby_id, rule_id, channel, decision, score, target_user_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.EventID,
		run.LobbyID,
		run.RuleID,
		string(run.Channel),
		string(run.Decision),
		run.Score,
		run.TargetUserID,
		meta,
		toMillis(run.CreatedAt),
	)
	return wrapErr("write rule run", err)
}

// ListRuleRuns returns the audit rows for an event in insertion order.
func (s *Store) ListRuleRuns(ctx context.Context, eventID string) ([]domain.RuleRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, lobby_id, rule_id, channel, decision, score, target_user_id, meta, created_at
		FROM rule_runs
		WHERE event_id = ?
		ORDER BY id ASC
	`, eventID)
	if err != nil {
		return nil, wrapErr("list rule runs", err)
	}
	defer rows.Close()

	runs := []domain.RuleRun{}
	for rows.Next() {
		var (
			run                     domain.RuleRun
			channel, decision, meta string
			createdAt               int64
		)
		if err := rows.Scan(
			&run.ID, &run.EventID, &run.LobbyID, &run.RuleID, &channel, &decision,
			&run.Score, &run.TargetUserID, &meta, &createdAt,
		); err != nil {
			return nil, wrapErr("list rule runs: scan", err)
		}
		run.Channel = domain.Channel(channel)
		run.Decision = domain.Decision(decision)
		run.CreatedAt = fromMillis(createdAt)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &run.Meta); err != nil {
				return nil, fmt.Errorf("list rule runs: unmarshal meta: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list rule runs: iterate", err)
	}
	return runs, nil
}

// CountEmittedPushes counts user-mode pushes emitted to userID at or after since.
func (s *Store) CountEmittedPushes(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rule_runs
		WHERE target_user_id = ? AND channel = 'push' AND decision = 'emitted' AND created_at >= ?
	`, userID, toMillis(since)).Scan(&count)
	if err != nil {
		return 0, wrapErr("count emitted pushes", err)
	}
	return count, nil
}
