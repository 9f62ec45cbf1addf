package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Channel is an output surface. At most one output per channel is emitted
// for a single event.
type Channel string

const (
	ChannelFeed    Channel = "feed"
	ChannelHistory Channel = "history"
	ChannelPush    Channel = "push"
)

// Channels lists the output channels in arbitration order.
var Channels = []Channel{ChannelFeed, ChannelHistory, ChannelPush}

// BudgetType selects the rate policy applied before an output is dispatched.
type BudgetType string

const (
	BudgetNone                   BudgetType = "none"
	BudgetFeedPerLobbyPerMinute  BudgetType = "feed_per_lobby_per_minute"
	BudgetFeedPerWorkout         BudgetType = "feed_per_workout"
	BudgetDailyPushPerUserPerDay BudgetType = "daily_push_per_user_per_day"
)

// Visibility controls where a narrative comment is shown.
type Visibility string

const (
	VisibilityFeed    Visibility = "feed"
	VisibilityHistory Visibility = "history"
	VisibilityBoth    Visibility = "both"
)

// InFeed reports whether comments with this visibility appear in the live feed.
func (v Visibility) InFeed() bool {
	return v == VisibilityFeed || v == VisibilityBoth
}

// PushMode selects between a single recipient and a lobby broadcast.
type PushMode string

const (
	PushToUser  PushMode = "user"
	PushToLobby PushMode = "lobby"
)

// CommentPayload is a fully rendered narrative comment.
type CommentPayload struct {
	Kind          string     `json:"kind"`
	Body          string     `json:"body"`
	Visibility    Visibility `json:"visibility"`
	ActivityID    string     `json:"activityId,omitempty"`
	ActorPlayerID string     `json:"actorPlayerId,omitempty"`
}

// PushPayload is a fully rendered push notification.
//
// In user mode TargetUserID is the single recipient. In lobby mode the
// notification goes to every member of LobbyID except ExcludeUserID.
type PushPayload struct {
	Mode          PushMode `json:"mode"`
	LobbyID       string   `json:"lobbyId,omitempty"`
	TargetUserID  string   `json:"targetUserId,omitempty"`
	ExcludeUserID string   `json:"excludeUserId,omitempty"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	URL           string   `json:"url,omitempty"`
}

// DispatchOutput is one candidate side effect produced by a rule. It is
// computed per event and never persisted.
type DispatchOutput struct {
	RuleID     string          `json:"ruleId"`
	EventType  EventType       `json:"eventType"`
	LobbyID    string          `json:"lobbyId"`
	Channel    Channel         `json:"channel"`
	Score      int             `json:"score"`
	DedupeKey  string          `json:"dedupeKey"`
	BudgetType BudgetType      `json:"budgetType"`
	DayKey     string          `json:"dayKey,omitempty"`
	Comment    *CommentPayload `json:"comment,omitempty"`
	Push       *PushPayload    `json:"push,omitempty"`
}

// RuleKey is the dedupe ledger namespace for this output's rule and channel.
func (o DispatchOutput) RuleKey() string {
	return RuleKey(o.RuleID, o.Channel)
}

// Malformed reports whether the output lacks the payload its channel needs.
func (o DispatchOutput) Malformed() bool {
	switch o.Channel {
	case ChannelFeed, ChannelHistory:
		return o.Comment == nil || o.Comment.Body == ""
	case ChannelPush:
		if o.Push == nil || o.Push.Body == "" {
			return true
		}
		if o.Push.Mode == PushToUser {
			return o.Push.TargetUserID == ""
		}
		return o.Push.Mode != PushToLobby
	}
	return true
}

// TargetUserID returns the push recipient for user-mode pushes, or "".
func (o DispatchOutput) TargetUserID() string {
	if o.Push != nil && o.Push.Mode == PushToUser {
		return o.Push.TargetUserID
	}
	return ""
}

// RuleKey builds the "rule:<ruleId>:<channel>" ledger namespace.
func RuleKey(ruleID string, ch Channel) string {
	return "rule:" + ruleID + ":" + string(ch)
}

// NormalizeKey joins key parts with ":" after trimming whitespace and
// applying NFC normalisation, so equivalent keys compare equal byte-for-byte.
func NormalizeKey(parts ...string) string {
	cleaned := make([]string, len(parts))
	for i, p := range parts {
		cleaned[i] = norm.NFC.String(strings.TrimSpace(p))
	}
	return strings.Join(cleaned, ":")
}
