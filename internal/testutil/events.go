package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/domain"
)

// Event builds a queued event whose payload is the JSON encoding of payload.
//
// The event type is taken from the payload, so fixtures cannot disagree with
// the decoder. The event is due at createdAt.
//
// Example:
//
//	ev := testutil.Event(t, "evt-1", "L1", "A1", &domain.ActivityLogged{ActivityID: "A1", PlayerID: "p1"}, now)
func Event(t testing.TB, id, lobbyID, key string, payload domain.Payload, createdAt time.Time) domain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Event{
		ID:            id,
		LobbyID:       lobbyID,
		Type:          payload.EventType(),
		Key:           key,
		Payload:       raw,
		Status:        domain.StatusQueued,
		NextAttemptAt: createdAt,
		CreatedAt:     createdAt,
	}
}

// Lobby builds a directory entry from alternating player ID and display name
// pairs. Every player gets the user ID "user-<playerID>".
func Lobby(id, name string, playerNames ...string) domain.Lobby {
	lobby := domain.Lobby{ID: id, Name: name, Members: []domain.Member{}}
	for i := 0; i+1 < len(playerNames); i += 2 {
		lobby.Members = append(lobby.Members, domain.Member{
			LobbyID:     id,
			PlayerID:    playerNames[i],
			DisplayName: playerNames[i+1],
			UserID:      "user-" + playerNames[i],
		})
	}
	return lobby
}
