package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/domain"
)

// LogPushSender writes pushes to the log. It is the default transport for
// local runs.
type LogPushSender struct {
	logger *zap.Logger
}

// NewLogPushSender creates a sender logging through l.
func NewLogPushSender(l *zap.Logger) *LogPushSender {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogPushSender{logger: l}
}

// SendToUser logs a single-recipient push.
func (s *LogPushSender) SendToUser(ctx context.Context, userID string, n Notification) error {
	s.logger.Info("push to user",
		zap.String("user_id", userID),
		zap.String("rule_id", n.RuleID),
		zap.String("event_id", n.EventID),
		zap.String("title", n.Title),
		zap.String("body", n.Body))
	return nil
}

// SendToLobby logs a lobby broadcast.
func (s *LogPushSender) SendToLobby(ctx context.Context, lobbyID, excludeUserID string, n Notification) error {
	s.logger.Info("push to lobby",
		zap.String("lobby_id", lobbyID),
		zap.String("exclude_user_id", excludeUserID),
		zap.String("rule_id", n.RuleID),
		zap.String("event_id", n.EventID),
		zap.String("title", n.Title),
		zap.String("body", n.Body))
	return nil
}

// Envelope is the JSON document RedisPushSender pushes onto a delivery list.
type Envelope struct {
	Mode          domain.PushMode `json:"mode"`
	UserID        string          `json:"userId,omitempty"`
	LobbyID       string          `json:"lobbyId,omitempty"`
	ExcludeUserID string          `json:"excludeUserId,omitempty"`
	Notification
	SentAt time.Time `json:"sentAt"`
}

// RedisPushSender hands pushes to a delivery worker through Redis lists.
//
// User pushes go to "<prefix>:user:<userID>", lobby broadcasts to
// "<prefix>:lobby:<lobbyID>". Each list is trimmed to MaxLen entries so an
// absent consumer cannot grow memory without bound.
type RedisPushSender struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
	now    func() time.Time
}

// DefaultMaxLen caps each delivery list.
const DefaultMaxLen = 1000

// NewRedisPushSender creates a sender writing under prefix.
func NewRedisPushSender(client redis.UniversalClient, prefix string) *RedisPushSender {
	if prefix == "" {
		prefix = "narrator:push"
	}
	return &RedisPushSender{
		client: client,
		prefix: prefix,
		maxLen: DefaultMaxLen,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UserKey returns the list key for a user's pushes.
func (s *RedisPushSender) UserKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

// LobbyKey returns the list key for a lobby's broadcasts.
func (s *RedisPushSender) LobbyKey(lobbyID string) string {
	return fmt.Sprintf("%s:lobby:%s", s.prefix, lobbyID)
}

// SendToUser enqueues a single-recipient push.
func (s *RedisPushSender) SendToUser(ctx context.Context, userID string, n Notification) error {
	return s.enqueue(ctx, s.UserKey(userID), Envelope{
		Mode:         domain.PushToUser,
		UserID:       userID,
		Notification: n,
		SentAt:       s.now(),
	})
}

// SendToLobby enqueues a lobby broadcast.
func (s *RedisPushSender) SendToLobby(ctx context.Context, lobbyID, excludeUserID string, n Notification) error {
	return s.enqueue(ctx, s.LobbyKey(lobbyID), Envelope{
		Mode:          domain.PushToLobby,
		LobbyID:       lobbyID,
		ExcludeUserID: excludeUserID,
		Notification:  n,
		SentAt:        s.now(),
	})
}

func (s *RedisPushSender) enqueue(ctx context.Context, key string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal push envelope: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, s.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push %s: %w", key, err)
	}
	return nil
}

// Sent is one push recorded by MemoryPushSender.
type Sent struct {
	Mode          domain.PushMode
	UserID        string
	LobbyID       string
	ExcludeUserID string
	Notification  Notification
}

// MemoryPushSender records pushes in memory. Used by tests and scenario runs.
type MemoryPushSender struct {
	mu   sync.Mutex
	sent []Sent
	err  error
}

// NewMemoryPushSender creates an empty recorder.
func NewMemoryPushSender() *MemoryPushSender {
	return &MemoryPushSender{}
}

// FailWith makes later sends return err. A nil err restores delivery.
func (s *MemoryPushSender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SendToUser records a single-recipient push.
func (s *MemoryPushSender) SendToUser(ctx context.Context, userID string, n Notification) error {
	return s.record(Sent{Mode: domain.PushToUser, UserID: userID, Notification: n})
}

// SendToLobby records a lobby broadcast.
func (s *MemoryPushSender) SendToLobby(ctx context.Context, lobbyID, excludeUserID string, n Notification) error {
	return s.record(Sent{Mode: domain.PushToLobby, LobbyID: lobbyID, ExcludeUserID: excludeUserID, Notification: n})
}

func (s *MemoryPushSender) record(sent Sent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *MemoryPushSender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}
