package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/domain"
)

func testLobby() *LobbyContext {
	return NewLobbyContext(domain.Lobby{
		ID:   "L1",
		Name: "Iron Temple",
		Members: []domain.Member{
			{LobbyID: "L1", PlayerID: "p1", DisplayName: "Ana", UserID: "u1"},
			{LobbyID: "L1", PlayerID: "p2", DisplayName: "Bo", UserID: "u2"},
			{LobbyID: "L1", PlayerID: "p3", DisplayName: "Cy"},
		},
	})
}

func event(t *testing.T, key string, p domain.Payload) domain.Event {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return domain.Event{ID: "evt-1", LobbyID: "L1", Type: p.EventType(), Key: key, Payload: raw}
}

func build(t *testing.T, key string, p domain.Payload) []domain.DispatchOutput {
	t.Helper()
	outs, err := Build(event(t, key, p), testLobby())
	require.NoError(t, err)
	return outs
}

func ruleIDs(outs []domain.DispatchOutput) []string {
	ids := make([]string, len(outs))
	for i, o := range outs {
		ids[i] = o.RuleID
	}
	return ids
}

// renderGolden prints outputs in a stable, reviewable layout.
func renderGolden(outs []domain.DispatchOutput) []byte {
	var b bytes.Buffer
	for _, o := range outs {
		fmt.Fprintf(&b, "%s channel=%s score=%d budget=%s dedupe=%s\n", o.RuleID, o.Channel, o.Score, o.BudgetType, o.DedupeKey)
		if o.DayKey != "" {
			fmt.Fprintf(&b, "  day=%s\n", o.DayKey)
		}
		if c := o.Comment; c != nil {
			fmt.Fprintf(&b, "  comment visibility=%s activity=%s actor=%s\n  > %s\n", c.Visibility, c.ActivityID, c.ActorPlayerID, c.Body)
		}
		if p := o.Push; p != nil {
			fmt.Fprintf(&b, "  push mode=%s target=%s exclude=%s title=%q\n  > %s\n", p.Mode, p.TargetUserID, p.ExcludeUserID, p.Title, p.Body)
		}
	}
	return b.Bytes()
}

func TestHandlers_CoverEveryEventType(t *testing.T) {
	for _, et := range domain.AllEventTypes {
		_, ok := handlers[et]
		assert.True(t, ok, "no rule handler for %s", et)
	}
	assert.Len(t, handlers, len(domain.AllEventTypes))
}

func TestBuild_EveryTypeWithEmptyPayload(t *testing.T) {
	// Rules must not panic on a minimal payload.
	for _, et := range domain.AllEventTypes {
		ev := domain.Event{ID: "e", LobbyID: "L1", Type: et, Key: "k", Payload: []byte(`{}`)}
		_, err := Build(ev, testLobby())
		assert.NoError(t, err, et)
	}
}

func TestBuild_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name    string
		key     string
		payload domain.Payload
	}{
		{"activity_marathon", "A1", &domain.ActivityLogged{ActivityID: "A1", PlayerID: "p1", ActivityType: "run", DurationMinutes: 95, DistanceKm: 18.4}},
		{"pot_increase", "pot-7", &domain.PotChanged{PreviousPot: 1200, NewPot: 1250, Reason: "late penalty", PlayerID: "p2"}},
		{"vote_rejected_unlinked", "A9", &domain.VoteResolved{ActivityID: "A9", PlayerID: "p3", VotesFor: 1, VotesAgainst: 3}},
		{"weekly_perfect", "2026-W42", &domain.WeeklyGroup{Type: domain.EventWeeklyPerfectWeek, WeekKey: "2026-W42", PlayerIDs: []string{"p1", "p2", "p3"}}},
		{"daily_reminder", "p2:2026-10-18", &domain.DailyReminderDue{PlayerID: "p2", DayKey: "2026-10-18", WorkoutsRemaining: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Assert(t, tt.name, renderGolden(build(t, tt.key, tt.payload)))
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := &domain.SpinResolved{SpinID: "S1", PlayerID: "p1", Outcome: "50 burpees"}
	first := build(t, "S1", p)
	second := build(t, "S1", p)
	assert.Equal(t, first, second, "retries must reproduce identical outputs and keys")
}

func TestBuild_UndecodablePayload(t *testing.T) {
	ev := domain.Event{ID: "e", LobbyID: "L1", Type: domain.EventVoteResolved, Key: "k", Payload: []byte(`{"votesFor":"many"}`)}
	_, err := Build(ev, testLobby())
	assert.Error(t, err)

	ev.Type = "BOGUS"
	_, err = Build(ev, testLobby())
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestActivityLogged_ShortWorkout(t *testing.T) {
	outs := build(t, "A2", &domain.ActivityLogged{ActivityID: "A2", PlayerID: "p2", DurationMinutes: 30})

	assert.Equal(t, []string{"workout_highlight", "workout_push"}, ruleIDs(outs))
	assert.Equal(t, "Bo logged a workout for 30 min.", outs[0].Comment.Body)
	assert.Equal(t, "A2", outs[0].Comment.ActivityID)
	assert.Equal(t, domain.BudgetFeedPerWorkout, outs[0].BudgetType)
	assert.Equal(t, "u2", outs[1].Push.ExcludeUserID)
	assert.Equal(t, domain.PushToLobby, outs[1].Push.Mode)
	assert.False(t, outs[1].Malformed())
}

func TestDailyReminder_RequiresLinkableTarget(t *testing.T) {
	outs := build(t, "p3:2026-10-18", &domain.DailyReminderDue{PlayerID: "p3", DayKey: "2026-10-18"})
	assert.Empty(t, outs)

	outs = build(t, "p1:2026-10-18", &domain.DailyReminderDue{PlayerID: "p1", DayKey: "2026-10-18"})
	require.Len(t, outs, 1)
	assert.Equal(t, "Don't break the streak. Log a workout today.", outs[0].Push.Body)
	assert.Equal(t, "u1", outs[0].TargetUserID())
	assert.Equal(t, "reminder:p1:2026-10-18", outs[0].DedupeKey)
}

func TestReadyState(t *testing.T) {
	outs := build(t, "round-1", &domain.ReadyStateChanged{PlayerID: "p1", Ready: true, AllReady: true})
	assert.Equal(t, []string{"lobby_ready", "lobby_ready_push"}, ruleIDs(outs))
	assert.Equal(t, "ready:round-1", outs[0].DedupeKey)
	assert.Equal(t, "Everyone in Iron Temple is ready. Let the season begin.", outs[0].Comment.Body)

	outs = build(t, "round-1", &domain.ReadyStateChanged{PlayerID: "p2", Ready: false})
	require.Len(t, outs, 1)
	assert.Equal(t, "player_ready", outs[0].RuleID)
	assert.Equal(t, "ready:p2:round-1", outs[0].DedupeKey)
	assert.Equal(t, "Bo is no longer ready.", outs[0].Comment.Body)
}

func TestPotDecrease_HistoryOnly(t *testing.T) {
	outs := build(t, "pot-8", &domain.PotChanged{PreviousPot: 500, NewPot: 400})
	require.Len(t, outs, 1)
	assert.Equal(t, "pot_ledger", outs[0].RuleID)
	assert.Equal(t, domain.VisibilityHistory, outs[0].Comment.Visibility)
	assert.Equal(t, "The pot went from 500 to 400.", outs[0].Comment.Body)
}

func TestEliminationAndPunishment(t *testing.T) {
	outs := build(t, "p2", &domain.PlayerEliminated{PlayerID: "p2", Reason: "missed two weeks"})
	assert.Equal(t, []string{"elimination", "elimination_push"}, ruleIDs(outs))
	assert.Equal(t, "Bo has been eliminated (missed two weeks).", outs[0].Comment.Body)
	assert.Equal(t, "u2", outs[1].Push.ExcludeUserID)

	outs = build(t, "P1", &domain.PunishmentResolved{PunishmentID: "P1", PlayerID: "p1", Description: "100 squats", Completed: true})
	require.Len(t, outs, 1)
	assert.Equal(t, "punishment:P1", outs[0].DedupeKey)
	assert.Equal(t, "Ana completed their punishment: 100 squats.", outs[0].Comment.Body)
}

func TestWeeklyAggregates(t *testing.T) {
	outs := build(t, "2026-W42", &domain.WeeklyGroup{Type: domain.EventWeeklyTargetHit, WeekKey: "2026-W42", PlayerIDs: []string{"p1", "p2"}, Target: 4})
	require.Len(t, outs, 1)
	assert.Equal(t, "week:2026-W42:hit", outs[0].DedupeKey)
	assert.Equal(t, "Week 2026-W42: Ana and Bo hit the target of 4 workouts.", outs[0].Comment.Body)
	assert.Equal(t, domain.VisibilityBoth, outs[0].Comment.Visibility)

	outs = build(t, "2026-W42", &domain.WeeklyGroup{Type: domain.EventWeeklyGhosted, WeekKey: "2026-W42"})
	require.Len(t, outs, 1)
	assert.Equal(t, "Week 2026-W42: Nobody ghosted the lobby. Zero workouts.", outs[0].Comment.Body)
	assert.Equal(t, 55, outs[0].Score)

	outs = build(t, "2026-W42", &domain.WeeklyTightRace{WeekKey: "2026-W42", LeaderID: "p1", RunnerUpID: "p9", Gap: 1})
	require.Len(t, outs, 1)
	assert.Equal(t, "Week 2026-W42 came down to the wire: Ana edged out Someone by 1 workout.", outs[0].Comment.Body)

	outs = build(t, "2026-W42", &domain.WeeklyTopPerformer{WeekKey: "2026-W42", PlayerID: "p2", Workouts: 1234})
	require.Len(t, outs, 1)
	assert.Equal(t, "week:2026-W42:top", outs[0].DedupeKey)
	assert.Equal(t, "Week 2026-W42 belongs to Bo with 1,234 workouts.", outs[0].Comment.Body)
}

func TestDedupeKeys_NFCNormalized(t *testing.T) {
	composed := build(t, "k", &domain.SpinResolved{SpinID: "caf\u00e9", PlayerID: "p1"})
	decomposed := build(t, "k", &domain.SpinResolved{SpinID: "cafe\u0301", PlayerID: "p1"})
	assert.Equal(t, composed[0].DedupeKey, decomposed[0].DedupeKey)
	assert.Equal(t, "spin:caf\u00e9", decomposed[0].DedupeKey)
}

func TestLobbyContext_Fallbacks(t *testing.T) {
	lc := NewLobbyContext(domain.Lobby{ID: "L9"})
	assert.Equal(t, "Someone", lc.Name("p1"))
	assert.Equal(t, "", lc.UserID("p1"))
	assert.Equal(t, "the lobby", lc.LobbyName())
	assert.Equal(t, "Lobby update", lc.Title())
	assert.Equal(t, "L9", lc.LobbyID())

	// A nil context renders with fallbacks rather than failing.
	ev := event(t, "S1", &domain.SpinResolved{SpinID: "S1", PlayerID: "p1", Outcome: "a lap"})
	outs, err := Build(ev, nil)
	require.NoError(t, err)
	assert.Equal(t, "The wheel has spoken: Someone must do a lap.", outs[0].Comment.Body)
	assert.True(t, outs[1].Malformed(), "unlinked user push lacks a target")
}
