package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/narrator/internal/domain"
)

func out(rule string, ch domain.Channel, score int) domain.DispatchOutput {
	return domain.DispatchOutput{RuleID: rule, Channel: ch, Score: score}
}

func TestPickTopByChannel(t *testing.T) {
	tests := []struct {
		name    string
		in      []domain.DispatchOutput
		chosen  []string
		dropped []string
	}{
		{
			name: "empty",
		},
		{
			name:   "one per channel",
			in:     []domain.DispatchOutput{out("a", domain.ChannelFeed, 10), out("b", domain.ChannelPush, 5), out("c", domain.ChannelHistory, 1)},
			chosen: []string{"a", "b", "c"},
		},
		{
			name:    "highest score wins",
			in:      []domain.DispatchOutput{out("low", domain.ChannelFeed, 80), out("high", domain.ChannelFeed, 90), out("push", domain.ChannelPush, 70)},
			chosen:  []string{"high", "push"},
			dropped: []string{"low"},
		},
		{
			name:    "ties go to first seen",
			in:      []domain.DispatchOutput{out("first", domain.ChannelFeed, 50), out("second", domain.ChannelFeed, 50)},
			chosen:  []string{"first"},
			dropped: []string{"second"},
		},
		{
			name: "chosen keep input order",
			in: []domain.DispatchOutput{
				out("push", domain.ChannelPush, 1),
				out("feed-a", domain.ChannelFeed, 1),
				out("feed-b", domain.ChannelFeed, 2),
				out("push-b", domain.ChannelPush, 0),
			},
			chosen:  []string{"push", "feed-b"},
			dropped: []string{"feed-a", "push-b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, dropped := PickTopByChannel(tt.in)
			assert.Equal(t, len(tt.chosen), len(chosen))
			assert.Equal(t, len(tt.dropped), len(dropped))
			if len(tt.chosen) > 0 {
				assert.Equal(t, tt.chosen, ruleIDs(chosen))
			}
			if len(tt.dropped) > 0 {
				assert.Equal(t, tt.dropped, ruleIDs(dropped))
			}
		})
	}
}

func TestPickTopByChannel_AtMostOnePerChannel(t *testing.T) {
	outs := build(t, "A1", &domain.ActivityLogged{ActivityID: "A1", PlayerID: "p1", DurationMinutes: 120})
	chosen, dropped := PickTopByChannel(outs)

	seen := map[domain.Channel]bool{}
	for _, o := range chosen {
		assert.False(t, seen[o.Channel], "two outputs chosen for %s", o.Channel)
		seen[o.Channel] = true
	}
	assert.Equal(t, []string{"workout_marathon", "workout_push"}, ruleIDs(chosen))
	assert.Equal(t, []string{"workout_highlight"}, ruleIDs(dropped))
	assert.Equal(t, len(outs), len(chosen)+len(dropped))
}
