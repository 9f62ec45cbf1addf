package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the typed body of an event. Exactly one implementation exists per
// EventType; the set is closed.
type Payload interface {
	EventType() EventType
}

// ActivityLogged reports a workout submitted by a player.
type ActivityLogged struct {
	ActivityID      string  `json:"activityId"`
	PlayerID        string  `json:"playerId"`
	ActivityType    string  `json:"activityType,omitempty"`
	DurationMinutes int     `json:"durationMinutes,omitempty"`
	DistanceKm      float64 `json:"distanceKm,omitempty"`
	Caption         string  `json:"caption,omitempty"`
}

// VoteResolved reports the outcome of the lobby vote on a logged workout.
type VoteResolved struct {
	ActivityID   string `json:"activityId"`
	PlayerID     string `json:"playerId"`
	Approved     bool   `json:"approved"`
	VotesFor     int    `json:"votesFor"`
	VotesAgainst int    `json:"votesAgainst"`
}

// PotChanged reports a change to the lobby prize pot.
type PotChanged struct {
	PreviousPot int    `json:"previousPot"`
	NewPot      int    `json:"newPot"`
	Reason      string `json:"reason,omitempty"`
	PlayerID    string `json:"playerId,omitempty"`
}

// SpinResolved reports the result of a punishment-wheel spin.
type SpinResolved struct {
	SpinID   string `json:"spinId"`
	PlayerID string `json:"playerId"`
	Outcome  string `json:"outcome"`
}

// ReadyStateChanged reports a player toggling ready, and whether the whole
// lobby is now ready.
type ReadyStateChanged struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
	AllReady bool   `json:"allReady"`
}

// PunishmentResolved reports that an assigned punishment was completed or
// abandoned.
type PunishmentResolved struct {
	PunishmentID string `json:"punishmentId"`
	PlayerID     string `json:"playerId"`
	Description  string `json:"description,omitempty"`
	Completed    bool   `json:"completed"`
}

// PlayerEliminated reports a player knocked out of the season.
type PlayerEliminated struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

// DailyReminderDue asks for a nudge to a player who has not trained today.
type DailyReminderDue struct {
	PlayerID          string `json:"playerId"`
	DayKey            string `json:"dayKey"`
	WorkoutsRemaining int    `json:"workoutsRemaining,omitempty"`
}

// WeeklyGroup is shared by the weekly aggregate events that name a set of
// players: target hit, target missed, ghosted and perfect week.
type WeeklyGroup struct {
	Type      EventType `json:"-"`
	WeekKey   string    `json:"weekKey"`
	PlayerIDs []string  `json:"playerIds"`
	Target    int       `json:"target,omitempty"`
}

// WeeklyTightRace reports a close finish between the top two players.
type WeeklyTightRace struct {
	WeekKey    string `json:"weekKey"`
	LeaderID   string `json:"leaderId"`
	RunnerUpID string `json:"runnerUpId"`
	Gap        int    `json:"gap"`
}

// WeeklyTopPerformer reports the player with the most workouts in a week.
type WeeklyTopPerformer struct {
	WeekKey  string `json:"weekKey"`
	PlayerID string `json:"playerId"`
	Workouts int    `json:"workouts"`
}

func (ActivityLogged) EventType() EventType     { return EventActivityLogged }
func (VoteResolved) EventType() EventType       { return EventVoteResolved }
func (PotChanged) EventType() EventType         { return EventPotChanged }
func (SpinResolved) EventType() EventType       { return EventSpinResolved }
func (ReadyStateChanged) EventType() EventType  { return EventReadyStateChanged }
func (PunishmentResolved) EventType() EventType { return EventPunishmentResolved }
func (PlayerEliminated) EventType() EventType   { return EventPlayerEliminated }
func (DailyReminderDue) EventType() EventType   { return EventDailyReminderDue }
func (g WeeklyGroup) EventType() EventType      { return g.Type }
func (WeeklyTightRace) EventType() EventType    { return EventWeeklyTightRace }
func (WeeklyTopPerformer) EventType() EventType { return EventWeeklyTopPerformer }

// payloadDecoders maps every event type to a constructor for its payload.
var payloadDecoders = map[EventType]func() Payload{
	EventActivityLogged:     func() Payload { return &ActivityLogged{} },
	EventVoteResolved:       func() Payload { return &VoteResolved{} },
	EventPotChanged:         func() Payload { return &PotChanged{} },
	EventSpinResolved:       func() Payload { return &SpinResolved{} },
	EventReadyStateChanged:  func() Payload { return &ReadyStateChanged{} },
	EventPunishmentResolved: func() Payload { return &PunishmentResolved{} },
	EventPlayerEliminated:   func() Payload { return &PlayerEliminated{} },
	EventDailyReminderDue:   func() Payload { return &DailyReminderDue{} },
	EventWeeklyTargetHit:    func() Payload { return &WeeklyGroup{Type: EventWeeklyTargetHit} },
	EventWeeklyTargetMissed: func() Payload { return &WeeklyGroup{Type: EventWeeklyTargetMissed} },
	EventWeeklyGhosted:      func() Payload { return &WeeklyGroup{Type: EventWeeklyGhosted} },
	EventWeeklyPerfectWeek:  func() Payload { return &WeeklyGroup{Type: EventWeeklyPerfectWeek} },
	EventWeeklyTightRace:    func() Payload { return &WeeklyTightRace{} },
	EventWeeklyTopPerformer: func() Payload { return &WeeklyTopPerformer{} },
}

// DecodePayload parses raw into the payload struct registered for t.
// The returned value is a pointer to the concrete struct.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	ctor, ok := payloadDecoders[t]
	if !ok {
		return nil, fmt.Errorf("%w: no payload for event type %q", ErrInvalidEvent, t)
	}
	p := ctor()
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
