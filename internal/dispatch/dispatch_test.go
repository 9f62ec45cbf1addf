package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/store/memstore"
)

var t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(s *memstore.Store, push PushSender) *Dispatcher {
	return New(s, s, push,
		WithClock(clock.Func(func() time.Time { return t0 })),
		WithIDGenerator(domain.NewFixedGenerator("cmt")),
	)
}

func feedOut() domain.DispatchOutput {
	return domain.DispatchOutput{
		RuleID: "workout_highlight", LobbyID: "L1", Channel: domain.ChannelFeed, Score: 80,
		DedupeKey: "activity:A1", BudgetType: domain.BudgetFeedPerWorkout,
		Comment: &domain.CommentPayload{Kind: "workout_highlight", Body: "Ana logged a run.", Visibility: domain.VisibilityFeed, ActivityID: "A1", ActorPlayerID: "p1"},
	}
}

func userPush() domain.DispatchOutput {
	return domain.DispatchOutput{
		RuleID: "spin_push", LobbyID: "L1", Channel: domain.ChannelPush, Score: 65, DedupeKey: "spin:S1",
		Push: &domain.PushPayload{Mode: domain.PushToUser, TargetUserID: "u1", Title: "Crew", Body: "The wheel picked squats for you.", URL: "/lobbies/L1"},
	}
}

func lobbyPush() domain.DispatchOutput {
	return domain.DispatchOutput{
		RuleID: "workout_push", LobbyID: "L1", Channel: domain.ChannelPush, Score: 70, DedupeKey: "activity:A1",
		Push: &domain.PushPayload{Mode: domain.PushToLobby, LobbyID: "L1", ExcludeUserID: "u1", Title: "Crew", Body: "Ana just logged a run."},
	}
}

func TestDispatch_Comment(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	d := newTestDispatcher(s, NewMemoryPushSender())

	res, err := d.Dispatch(ctx, feedOut(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, Result{Emitted: true}, res)

	comments, err := s.ListComments(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, domain.Comment{
		ID: "cmt-1", LobbyID: "L1", EventID: "evt-1", RuleID: "workout_highlight", Kind: "workout_highlight",
		Body: "Ana logged a run.", Visibility: domain.VisibilityFeed, ActivityID: "A1", ActorPlayerID: "p1", CreatedAt: t0,
	}, comments[0])

	claimed, err := s.ClaimDispatch(ctx, domain.DedupeClaim{
		LobbyID: "L1", RuleKey: "rule:workout_highlight:feed", DedupeKey: "activity:A1", EventID: "evt-2",
	})
	require.NoError(t, err)
	assert.False(t, claimed, "the first dispatch holds the claim ticket")
}

func TestDispatch_SecondCallIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	push := NewMemoryPushSender()
	d := newTestDispatcher(s, push)

	for _, out := range []domain.DispatchOutput{feedOut(), userPush(), lobbyPush()} {
		res, err := d.Dispatch(ctx, out, "evt-1")
		require.NoError(t, err)
		assert.True(t, res.Emitted, out.RuleID)

		res, err = d.Dispatch(ctx, out, "evt-2")
		require.NoError(t, err)
		assert.Equal(t, Result{Duplicate: true}, res, out.RuleID)
	}

	comments, _ := s.ListComments(ctx, "L1")
	assert.Len(t, comments, 1)
	assert.Len(t, push.Sent(), 2)
}

func TestDispatch_ConcurrentCallersEmitOnce(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	push := NewMemoryPushSender()
	d := newTestDispatcher(s, push)

	var (
		wg      sync.WaitGroup
		emitted atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Dispatch(ctx, lobbyPush(), "evt-1")
			assert.NoError(t, err)
			if res.Emitted {
				emitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), emitted.Load())
	assert.Len(t, push.Sent(), 1)
}

func TestDispatch_PushRouting(t *testing.T) {
	ctx := context.Background()
	push := NewMemoryPushSender()
	d := newTestDispatcher(memstore.New(), push)

	_, err := d.Dispatch(ctx, userPush(), "evt-1")
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, lobbyPush(), "evt-1")
	require.NoError(t, err)

	sent := push.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.PushToUser, sent[0].Mode)
	assert.Equal(t, "u1", sent[0].UserID)
	assert.Equal(t, Notification{Title: "Crew", Body: "The wheel picked squats for you.", URL: "/lobbies/L1", RuleID: "spin_push", EventID: "evt-1"}, sent[0].Notification)
	assert.Equal(t, domain.PushToLobby, sent[1].Mode)
	assert.Equal(t, "L1", sent[1].LobbyID)
	assert.Equal(t, "u1", sent[1].ExcludeUserID)
}

func TestDispatch_ClaimFailure(t *testing.T) {
	s := memstore.New()
	s.FailOn("ClaimDispatch", errors.New("locked"))
	d := newTestDispatcher(s, NewMemoryPushSender())

	_, err := d.Dispatch(context.Background(), feedOut(), "evt-1")
	require.Error(t, err)
	assert.True(t, IsDispatchError(err))
	assert.False(t, IsEffectError(err))
	assert.ErrorContains(t, err, "CLAIM_FAILED")
}

func TestDispatch_EffectFailureKeepsClaim(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	push := NewMemoryPushSender()
	push.FailWith(errors.New("gateway down"))
	d := newTestDispatcher(s, push)

	_, err := d.Dispatch(ctx, userPush(), "evt-1")
	require.Error(t, err)
	assert.True(t, IsEffectError(err))

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "spin_push", de.RuleID)
	assert.Equal(t, domain.ChannelPush, de.Channel)

	// The claim was committed before the effect: a retry reports a duplicate
	// and the push is not re-sent.
	push.FailWith(nil)
	res, err := d.Dispatch(ctx, userPush(), "evt-1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, push.Sent())
}

func TestDispatch_Unsupported(t *testing.T) {
	d := newTestDispatcher(memstore.New(), NewMemoryPushSender())

	out := userPush()
	out.Push.Mode = "carrier-pigeon"
	_, err := d.Dispatch(context.Background(), out, "evt-1")
	assert.ErrorContains(t, err, "UNSUPPORTED_OUTPUT")

	out = feedOut()
	out.DedupeKey = "other"
	out.Comment = nil
	_, err = d.Dispatch(context.Background(), out, "evt-1")
	assert.ErrorContains(t, err, "UNSUPPORTED_OUTPUT")
}
