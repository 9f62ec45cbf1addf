package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllEventTypes_HaveDecoderAndSchema(t *testing.T) {
	assert.Len(t, AllEventTypes, 14)
	for _, et := range AllEventTypes {
		_, hasDecoder := payloadDecoders[et]
		assert.True(t, hasDecoder, "missing payload decoder for %s", et)
		_, hasSchema := schemaDefinitions[et]
		assert.True(t, hasSchema, "missing schema definition for %s", et)
	}
	assert.Len(t, payloadDecoders, len(AllEventTypes))
	assert.Len(t, schemaDefinitions, len(AllEventTypes))
}

func TestParseEventType(t *testing.T) {
	et, err := ParseEventType("ACTIVITY_LOGGED")
	require.NoError(t, err)
	assert.Equal(t, EventActivityLogged, et)

	_, err = ParseEventType("activity_logged")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestStatus_Claimable(t *testing.T) {
	assert.True(t, StatusQueued.Claimable())
	assert.True(t, StatusFailed.Claimable())
	assert.False(t, StatusProcessing.Claimable())
	assert.False(t, StatusDone.Claimable())
	assert.False(t, StatusDead.Claimable())
	assert.False(t, Status("paused").Valid())
}

func TestDecodePayload_TypedUnion(t *testing.T) {
	p, err := DecodePayload(EventActivityLogged, json.RawMessage(`{"activityId":"A1","playerId":"p1","durationMinutes":45}`))
	require.NoError(t, err)
	act, ok := p.(*ActivityLogged)
	require.True(t, ok)
	assert.Equal(t, "A1", act.ActivityID)
	assert.Equal(t, 45, act.DurationMinutes)
	assert.Equal(t, EventActivityLogged, act.EventType())

	p, err = DecodePayload(EventWeeklyGhosted, json.RawMessage(`{"weekKey":"2026-W42","playerIds":["p1"]}`))
	require.NoError(t, err)
	group, ok := p.(*WeeklyGroup)
	require.True(t, ok)
	assert.Equal(t, EventWeeklyGhosted, group.EventType())
	assert.Equal(t, []string{"p1"}, group.PlayerIDs)
}

func TestDecodePayload_Errors(t *testing.T) {
	_, err := DecodePayload(EventType("NOPE"), nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = DecodePayload(EventSpinResolved, json.RawMessage(`{"spinId": 7}`))
	assert.Error(t, err)
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		et      EventType
		payload string
		wantErr bool
	}{
		{"activity ok", EventActivityLogged, `{"activityId":"A1","playerId":"p1"}`, false},
		{"activity extra fields allowed", EventActivityLogged, `{"activityId":"A1","playerId":"p1","source":"watch"}`, false},
		{"activity missing id", EventActivityLogged, `{"playerId":"p1"}`, true},
		{"activity empty id", EventActivityLogged, `{"activityId":"","playerId":"p1"}`, true},
		{"activity negative duration", EventActivityLogged, `{"activityId":"A1","playerId":"p1","durationMinutes":-5}`, true},
		{"reminder ok", EventDailyReminderDue, `{"playerId":"p1","dayKey":"2026-10-18"}`, false},
		{"reminder bad day key", EventDailyReminderDue, `{"playerId":"p1","dayKey":"yesterday"}`, true},
		{"weekly group ok", EventWeeklyPerfectWeek, `{"weekKey":"2026-W42","playerIds":["p1","p2"]}`, false},
		{"vote wrong type", EventVoteResolved, `{"activityId":"A1","playerId":"p1","approved":"yes"}`, true},
		{"not an object", EventPotChanged, `[1,2]`, true},
		{"empty", EventPotChanged, ``, true},
		{"not json", EventPotChanged, `{previousPot:`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.et, json.RawMessage(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDispatchOutput_Malformed(t *testing.T) {
	feed := DispatchOutput{Channel: ChannelFeed, Comment: &CommentPayload{Body: "hi", Visibility: VisibilityFeed}}
	assert.False(t, feed.Malformed())

	assert.True(t, DispatchOutput{Channel: ChannelFeed}.Malformed())
	assert.True(t, DispatchOutput{Channel: ChannelHistory, Comment: &CommentPayload{}}.Malformed())
	assert.True(t, DispatchOutput{Channel: ChannelPush}.Malformed())
	assert.True(t, DispatchOutput{Channel: ChannelPush, Push: &PushPayload{Mode: PushToUser, Body: "x"}}.Malformed())
	assert.False(t, DispatchOutput{Channel: ChannelPush, Push: &PushPayload{Mode: PushToUser, TargetUserID: "u1", Body: "x"}}.Malformed())
	assert.False(t, DispatchOutput{Channel: ChannelPush, Push: &PushPayload{Mode: PushToLobby, Body: "x"}}.Malformed())
	assert.True(t, DispatchOutput{Channel: "sms", Push: &PushPayload{Mode: PushToLobby, Body: "x"}}.Malformed())
}

func TestRuleKeyAndNormalizeKey(t *testing.T) {
	out := DispatchOutput{RuleID: "workout_highlight", Channel: ChannelFeed}
	assert.Equal(t, "rule:workout_highlight:feed", out.RuleKey())

	// "é" precomposed vs e + combining acute accent
	assert.Equal(t, NormalizeKey("activity", "caf\u00e9"), NormalizeKey("activity", " cafe\u0301 "))
	assert.Equal(t, "week:2026-W42:hit", NormalizeKey("week", "2026-W42", "hit"))
}

func TestRuleRun_MetaJSON(t *testing.T) {
	s, err := RuleRun{}.MetaJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	s, err = RuleRun{Meta: map[string]string{"reason": ReasonLowerPriority}}.MetaJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason":"lower_priority_same_channel"}`, s)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("evt", "first")
	assert.Equal(t, "first", g.NewID())
	assert.Equal(t, "evt-2", g.NewID())
	assert.Equal(t, "evt-3", g.NewID())

	id := UUIDv7Generator{}.NewID()
	assert.Len(t, id, 36)
}
