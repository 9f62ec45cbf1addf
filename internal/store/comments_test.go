package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/domain"
)

func TestComments_BudgetCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insert := func(id string, vis domain.Visibility, activityID string, at time.Time) {
		require.NoError(t, s.InsertComment(ctx, domain.Comment{
			ID: id, LobbyID: "L1", EventID: "e", RuleID: "r", Kind: "k", Body: "b",
			Visibility: vis, ActivityID: activityID, CreatedAt: at,
		}))
	}
	insert("c1", domain.VisibilityFeed, "A1", t0.Add(-90*time.Second)) // outside window
	insert("c2", domain.VisibilityBoth, "", t0.Add(-30*time.Second))
	insert("c3", domain.VisibilityHistory, "A2", t0.Add(-20*time.Second)) // not feed-visible
	insert("c4", domain.VisibilityFeed, "A3", t0.Add(-10*time.Second))

	n, err := s.CountFeedCommentsSince(ctx, "L1", t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountFeedCommentsSince(ctx, "L2", t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.CountActivityFeedComments(ctx, "L1", "A1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountActivityFeedComments(ctx, "L1", "A2")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "history-only comments do not count as highlights")

	comments, err := s.ListComments(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, comments, 4)
	assert.Equal(t, "c1", comments[0].ID)
	assert.Equal(t, domain.VisibilityBoth, comments[1].Visibility)
}

func TestDirectory_LoadLobby(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	lobby, err := s.LoadLobby(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", lobby.ID)
	assert.Empty(t, lobby.Members)

	require.NoError(t, s.UpsertLobby(ctx, "L1", "Iron Temple"))
	require.NoError(t, s.UpsertMember(ctx, domain.Member{LobbyID: "L1", PlayerID: "p2", DisplayName: "Bo"}))
	require.NoError(t, s.UpsertMember(ctx, domain.Member{LobbyID: "L1", PlayerID: "p1", DisplayName: "Ana", UserID: "u1"}))
	require.NoError(t, s.UpsertMember(ctx, domain.Member{LobbyID: "L1", PlayerID: "p1", DisplayName: "Ana B", UserID: "u1"}))

	lobby, err = s.LoadLobby(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Iron Temple", lobby.Name)
	require.Len(t, lobby.Members, 2)
	assert.Equal(t, "Ana B", lobby.Members[0].DisplayName)
	assert.Equal(t, "u1", lobby.Members[0].UserID)
	assert.Equal(t, "", lobby.Members[1].UserID)
}
