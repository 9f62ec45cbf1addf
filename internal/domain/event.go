package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of domain occurrence reported by producers.
type EventType string

const (
	EventActivityLogged     EventType = "ACTIVITY_LOGGED"
	EventVoteResolved       EventType = "VOTE_RESOLVED"
	EventPotChanged         EventType = "POT_CHANGED"
	EventSpinResolved       EventType = "SPIN_RESOLVED"
	EventReadyStateChanged  EventType = "READY_STATE_CHANGED"
	EventPunishmentResolved EventType = "PUNISHMENT_RESOLVED"
	EventPlayerEliminated   EventType = "PLAYER_ELIMINATED"
	EventDailyReminderDue   EventType = "DAILY_REMINDER_DUE"
	EventWeeklyTargetHit    EventType = "WEEKLY_TARGET_HIT"
	EventWeeklyTargetMissed EventType = "WEEKLY_TARGET_MISSED"
	EventWeeklyGhosted      EventType = "WEEKLY_GHOSTED"
	EventWeeklyPerfectWeek  EventType = "WEEKLY_PERFECT_WEEK"
	EventWeeklyTightRace    EventType = "WEEKLY_TIGHT_RACE"
	EventWeeklyTopPerformer EventType = "WEEKLY_TOP_PERFORMER"
)

// AllEventTypes lists every event type in declaration order.
var AllEventTypes = []EventType{
	EventActivityLogged,
	EventVoteResolved,
	EventPotChanged,
	EventSpinResolved,
	EventReadyStateChanged,
	EventPunishmentResolved,
	EventPlayerEliminated,
	EventDailyReminderDue,
	EventWeeklyTargetHit,
	EventWeeklyTargetMissed,
	EventWeeklyGhosted,
	EventWeeklyPerfectWeek,
	EventWeeklyTightRace,
	EventWeeklyTopPerformer,
}

// Valid reports whether t is a member of the enumeration.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEventType converts a producer-supplied string into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, s)
	}
	return t, nil
}

// Status is the lifecycle state of a queued event.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusDead       Status = "dead"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusFailed, StatusDead:
		return true
	}
	return false
}

// Claimable reports whether an event in this status may be claimed by a processor.
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusFailed
}

// Event is one row of the durable queue.
//
// (LobbyID, Type, Key) is unique: re-enqueueing the same logical occurrence
// never creates a second row.
type Event struct {
	ID            string          `json:"id"`
	LobbyID       string          `json:"lobbyId"`
	Type          EventType       `json:"type"`
	Key           string          `json:"key"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
}

// EligibleFilter selects claimable events for a processing batch.
type EligibleFilter struct {
	LobbyID     string // optional
	Limit       int
	NewestFirst bool
	Now         time.Time
}

// ListFilter selects events for inspection.
type ListFilter struct {
	LobbyID string
	Status  Status
	Limit   int
}
