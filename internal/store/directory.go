package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/narrator/internal/domain"
)

// UpsertLobby records or renames a lobby.
func (s *Store) UpsertLobby(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lobbies (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	return wrapErr("upsert lobby", err)
}

// UpsertMember records or updates a lobby member's display name and identity.
func (s *Store) UpsertMember(ctx context.Context, m domain.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lobby_members (lobby_id, player_id, display_name, user_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lobby_id, player_id) DO UPDATE
		SET display_name = excluded.display_name, user_id = excluded.user_id
	`, m.LobbyID, m.PlayerID, m.DisplayName, m.UserID)
	return wrapErr("upsert member", err)
}

// LoadLobby returns the lobby and its members ordered by player ID.
// An unknown lobby yields an empty directory entry, not an error: narration
// falls back to generic names.
func (s *Store) LoadLobby(ctx context.Context, lobbyID string) (domain.Lobby, error) {
	lobby := domain.Lobby{ID: lobbyID, Members: []domain.Member{}}

	err := s.db.QueryRowContext(ctx, `SELECT name FROM lobbies WHERE id = ?`, lobbyID).Scan(&lobby.Name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Lobby{}, wrapErr("load lobby", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lobby_id, player_id, display_name, user_id
		FROM lobby_members
		WHERE lobby_id = ?
		ORDER BY player_id COLLATE BINARY ASC
	`, lobbyID)
	if err != nil {
		return domain.Lobby{}, wrapErr("load lobby members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.LobbyID, &m.PlayerID, &m.DisplayName, &m.UserID); err != nil {
			return domain.Lobby{}, wrapErr("load lobby members: scan", err)
		}
		lobby.Members = append(lobby.Members, m)
	}
	if err := rows.Err(); err != nil {
		return domain.Lobby{}, wrapErr("load lobby members: iterate", err)
	}
	return lobby, nil
}
