package store

import (
	"context"
	"time"

	"github.com/roach88/narrator/internal/domain"
)

// InsertComment appends a narrative comment.
func (s *Store) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments
		(id, lobby_id, event_id, rule_id, kind, body, visibility, activity_id, actor_player_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.LobbyID,
		c.EventID,
		c.RuleID,
		c.Kind,
		c.Body,
		string(c.Visibility),
		c.ActivityID,
		c.ActorPlayerID,
		toMillis(c.CreatedAt),
	)
	return wrapErr("insert comment", err)
}

// CountFeedCommentsSince counts feed-visible comments in a lobby created
// strictly after since.
func (s *Store) CountFeedCommentsSince(ctx context.Context, lobbyID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM comments
		WHERE lobby_id = ? AND visibility IN ('feed', 'both') AND created_at > ?
	`, lobbyID, toMillis(since)).Scan(&count)
	if err != nil {
		return 0, wrapErr("count feed comments", err)
	}
	return count, nil
}

// CountActivityFeedComments counts feed-visible comments tagged with activityID.
func (s *Store) CountActivityFeedComments(ctx context.Context, lobbyID, activityID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM comments
		WHERE lobby_id = ? AND activity_id = ? AND visibility IN ('feed', 'both')
	`, lobbyID, activityID).Scan(&count)
	if err != nil {
		return 0, wrapErr("count activity comments", err)
	}
	return count, nil
}

// ListComments returns a lobby's comments in creation order.
func (s *Store) ListComments(ctx context.Context, lobbyID string) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lobby_id, event_id, rule_id, kind, body, visibility, activity_id, actor_player_id, created_at
		FROM comments
		WHERE lobby_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, lobbyID)
	if err != nil {
		return nil, wrapErr("list comments", err)
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		var (
			c          domain.Comment
			visibility string
			createdAt  int64
		)
		if err := rows.Scan(
			&c.ID, &c.LobbyID, &c.EventID, &c.RuleID, &c.Kind, &c.Body,
			&visibility, &c.ActivityID, &c.ActorPlayerID, &createdAt,
		); err != nil {
			return nil, wrapErr("list comments: scan", err)
		}
		c.Visibility = domain.Visibility(visibility)
		c.CreatedAt = fromMillis(createdAt)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list comments: iterate", err)
	}
	return comments, nil
}
