package domain

import (
	"encoding/json"
	"time"
)

// Decision is the outcome recorded for one evaluated candidate output.
type Decision string

const (
	DecisionEmitted          Decision = "emitted"
	DecisionSkippedBudget    Decision = "skipped_budget"
	DecisionSkippedDedupe    Decision = "skipped_dedupe"
	DecisionSkippedCondition Decision = "skipped_condition"
	DecisionError            Decision = "error"
)

// Audit meta reasons.
const (
	ReasonLowerPriority  = "lower_priority_same_channel"
	ReasonMissingPayload = "missing_payload"
	ReasonDecodeFailed   = "payload_decode_failed"
)

// RuleRun is one append-only audit row.
type RuleRun struct {
	ID           int64             `json:"id,omitempty"`
	EventID      string            `json:"eventId"`
	LobbyID      string            `json:"lobbyId"`
	RuleID       string            `json:"ruleId"`
	Channel      Channel           `json:"channel"`
	Decision     Decision          `json:"decision"`
	Score        int               `json:"score"`
	TargetUserID string            `json:"targetUserId,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// MetaJSON serialises Meta for storage. A nil map becomes "{}".
func (r RuleRun) MetaJSON() (string, error) {
	if len(r.Meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(r.Meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DedupeClaim is the permanent ticket authorising one side effect.
type DedupeClaim struct {
	LobbyID   string
	RuleKey   string
	DedupeKey string
	EventID   string
	CreatedAt time.Time
}

// Comment is one narrative row written to the comment store.
type Comment struct {
	ID            string     `json:"id"`
	LobbyID       string     `json:"lobbyId"`
	EventID       string     `json:"eventId"`
	RuleID        string     `json:"ruleId"`
	Kind          string     `json:"kind"`
	Body          string     `json:"body"`
	Visibility    Visibility `json:"visibility"`
	ActivityID    string     `json:"activityId,omitempty"`
	ActorPlayerID string     `json:"actorPlayerId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Member is a lobby participant as seen by the rule engine.
type Member struct {
	LobbyID     string `json:"lobbyId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	// UserID is the linkable identity used for push delivery. Empty when the
	// player has no account that can receive notifications.
	UserID string `json:"userId,omitempty"`
}

// Lobby is the directory entry for a lobby.
type Lobby struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}
