package rules

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/narrator/internal/domain"
)

// Rule scores. Higher wins within a channel.
const (
	scoreWorkoutMarathon   = 90
	scoreElimination       = 85
	scoreWorkoutHighlight  = 80
	scoreEliminationPush   = 80
	scoreSpinResult        = 75
	scoreWorkoutPush       = 70
	scoreSpinPush          = 65
	scoreVoteVerdict       = 60
	scorePunishmentResult  = 60
	scoreWeeklyPerfect     = 60
	scoreLobbyReady        = 55
	scoreWeeklyGhosted     = 55
	scoreVoteVerdictPush   = 50
	scoreLobbyReadyPush    = 50
	scoreWeeklyGroup       = 50
	scorePotHype           = 45
	scorePotLedger         = 40
	scoreWeeklyPerfectPush = 40
	scoreDailyReminder     = 30
	scorePlayerReady       = 20
)

const (
	marathonMinutes         = 90
	defaultActivityTypeName = "workout"
)

// handler renders the candidate outputs for one decoded payload.
type handler func(r *renderer, ev domain.Event, p domain.Payload) []domain.DispatchOutput

// on adapts a handler written against a concrete payload type.
func on[P domain.Payload](fn func(r *renderer, ev domain.Event, p P) []domain.DispatchOutput) handler {
	return func(r *renderer, ev domain.Event, p domain.Payload) []domain.DispatchOutput {
		typed, ok := p.(P)
		if !ok {
			return nil
		}
		return fn(r, ev, typed)
	}
}

var handlers = map[domain.EventType]handler{
	domain.EventActivityLogged:     on(activityLogged),
	domain.EventVoteResolved:       on(voteResolved),
	domain.EventPotChanged:         on(potChanged),
	domain.EventSpinResolved:       on(spinResolved),
	domain.EventReadyStateChanged:  on(readyStateChanged),
	domain.EventPunishmentResolved: on(punishmentResolved),
	domain.EventPlayerEliminated:   on(playerEliminated),
	domain.EventDailyReminderDue:   on(dailyReminderDue),
	domain.EventWeeklyTargetHit:    on(weeklyGroup),
	domain.EventWeeklyTargetMissed: on(weeklyGroup),
	domain.EventWeeklyGhosted:      on(weeklyGroup),
	domain.EventWeeklyPerfectWeek:  on(weeklyGroup),
	domain.EventWeeklyTightRace:    on(weeklyTightRace),
	domain.EventWeeklyTopPerformer: on(weeklyTopPerformer),
}

// Build decodes ev's payload and returns the candidate outputs for it.
//
// An error means the payload cannot be decoded or the type has no handler;
// retrying will not change the result.
func Build(ev domain.Event, lc *LobbyContext) ([]domain.DispatchOutput, error) {
	h, ok := handlers[ev.Type]
	if !ok {
		return nil, fmt.Errorf("build %s: %w: no rule handler", ev.ID, domain.ErrInvalidEvent)
	}
	payload, err := domain.DecodePayload(ev.Type, ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", ev.ID, err)
	}
	if lc == nil {
		lc = NewLobbyContext(domain.Lobby{ID: ev.LobbyID})
	}
	r := &renderer{
		lc:      lc,
		lobbyID: ev.LobbyID,
		typ:     ev.Type,
		p:       message.NewPrinter(language.English),
	}
	return h(r, ev, payload), nil
}

// renderer carries per-call state shared by handlers.
type renderer struct {
	lc      *LobbyContext
	lobbyID string
	typ     domain.EventType
	p       *message.Printer
}

func (r *renderer) sprintf(format string, args ...any) string {
	return r.p.Sprintf(format, args...)
}

func (r *renderer) output(ruleID string, ch domain.Channel, score int, budget domain.BudgetType, dedupeKey string) domain.DispatchOutput {
	return domain.DispatchOutput{
		RuleID:     ruleID,
		EventType:  r.typ,
		LobbyID:    r.lobbyID,
		Channel:    ch,
		Score:      score,
		DedupeKey:  dedupeKey,
		BudgetType: budget,
	}
}

// comment builds a feed or history output carrying a rendered comment.
func (r *renderer) comment(ruleID string, ch domain.Channel, vis domain.Visibility, score int, budget domain.BudgetType, dedupeKey string, c domain.CommentPayload) domain.DispatchOutput {
	out := r.output(ruleID, ch, score, budget, dedupeKey)
	c.Kind = ruleID
	c.Visibility = vis
	out.Comment = &c
	return out
}

// pushToUser builds a single-recipient push output.
func (r *renderer) pushToUser(ruleID string, score int, budget domain.BudgetType, dedupeKey, userID, body string) domain.DispatchOutput {
	out := r.output(ruleID, domain.ChannelPush, score, budget, dedupeKey)
	out.Push = &domain.PushPayload{
		Mode:         domain.PushToUser,
		TargetUserID: userID,
		Title:        r.lc.Title(),
		Body:         body,
		URL:          r.url(),
	}
	return out
}

// pushToLobby builds a broadcast push output that skips excludeUserID.
func (r *renderer) pushToLobby(ruleID string, score int, dedupeKey, excludeUserID, body string) domain.DispatchOutput {
	out := r.output(ruleID, domain.ChannelPush, score, domain.BudgetNone, dedupeKey)
	out.Push = &domain.PushPayload{
		Mode:          domain.PushToLobby,
		LobbyID:       r.lobbyID,
		ExcludeUserID: excludeUserID,
		Title:         r.lc.Title(),
		Body:          body,
		URL:           r.url(),
	}
	return out
}

func (r *renderer) url() string {
	return "/lobbies/" + r.lobbyID
}

// names renders a list of players as "A", "A and B" or "A, B and C".
func (r *renderer) names(playerIDs []string) string {
	names := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		names[i] = r.lc.Name(id)
	}
	switch len(names) {
	case 0:
		return "Nobody"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// plural renders n with a singular or plural noun.
func (r *renderer) plural(n int, one, many string) string {
	if n == 1 {
		return r.sprintf("%d %s", n, one)
	}
	return r.sprintf("%d %s", n, many)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
