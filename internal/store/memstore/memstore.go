// Package memstore is an in-memory implementation of the queue, ledger,
// comment and directory operations of store.Store.
//
// It exists for unit tests of the processing pipeline: every operation takes
// one mutex, so conditional claims behave exactly like the SQLite versions
// under concurrency. Faults can be injected per operation to drive retry and
// degradation paths.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/store"
)

type dedupeKey struct {
	lobbyID, ruleKey, dedupeKey string
}

type eventKey struct {
	lobbyID string
	typ     domain.EventType
	key     string
}

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu sync.Mutex

	events   map[string]*domain.Event
	byKey    map[eventKey]string
	order    []string
	claims   map[dedupeKey]domain.DedupeClaim
	runs     []domain.RuleRun
	comments []domain.Comment
	lobbies  map[string]string
	members  map[string]map[string]domain.Member

	faults      map[string]error
	unavailable bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:  make(map[string]*domain.Event),
		byKey:   make(map[eventKey]string),
		claims:  make(map[dedupeKey]domain.DedupeClaim),
		lobbies: make(map[string]string),
		members: make(map[string]map[string]domain.Member),
		faults:  make(map[string]error),
	}
}

// FailOn makes every later call to the named operation (e.g. "InsertComment")
// return err. Pass a nil err to clear the fault.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// SetUnavailable makes every operation fail with store.ErrUnavailable.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Store) fault(op string) error {
	if s.unavailable {
		return fmt.Errorf("%s: %w", op, store.ErrUnavailable)
	}
	return s.faults[op]
}

// Ping reports injected unavailability.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault("Ping")
}

// InsertEvent appends ev unless (LobbyID, Type, Key) already exists.
func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertEvent"); err != nil {
		return "", false, err
	}

	k := eventKey{ev.LobbyID, ev.Type, ev.Key}
	if id, ok := s.byKey[k]; ok {
		return id, false, nil
	}
	if ev.Status == "" {
		ev.Status = domain.StatusQueued
	}
	ev.UpdatedAt = ev.CreatedAt
	ev.Payload = append([]byte(nil), ev.Payload...)
	s.events[ev.ID] = &ev
	s.byKey[k] = ev.ID
	s.order = append(s.order, ev.ID)
	return ev.ID, true, nil
}

// FetchEligible returns claimable events due at f.Now in creation order.
func (s *Store) FetchEligible(ctx context.Context, f domain.EligibleFilter) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FetchEligible"); err != nil {
		return nil, err
	}

	var out []domain.Event
	for _, ev := range s.sorted(f.NewestFirst) {
		if !ev.Status.Claimable() || ev.NextAttemptAt.After(f.Now) {
			continue
		}
		if f.LobbyID != "" && ev.LobbyID != f.LobbyID {
			continue
		}
		out = append(out, *ev)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimEvent moves an eligible event to processing. Returns (nil, nil) when
// the event is not claimable.
func (s *Store) ClaimEvent(ctx context.Context, id string, now time.Time) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ClaimEvent"); err != nil {
		return nil, err
	}

	ev, ok := s.events[id]
	if !ok || !ev.Status.Claimable() || ev.NextAttemptAt.After(now) {
		return nil, nil
	}
	ev.Status = domain.StatusProcessing
	ev.Attempts++
	ev.UpdatedAt = now
	claimed := *ev
	return &claimed, nil
}

// CompleteEvent marks a processing event done.
func (s *Store) CompleteEvent(ctx context.Context, id string, now time.Time) error {
	return s.transition("CompleteEvent", id, func(ev *domain.Event) {
		ev.Status = domain.StatusDone
		ev.LastError = ""
		ev.ProcessedAt = &now
		ev.UpdatedAt = now
	})
}

// FailEvent marks a processing event failed and schedules its retry.
func (s *Store) FailEvent(ctx context.Context, id, lastError string, nextAttemptAt, now time.Time) error {
	return s.transition("FailEvent", id, func(ev *domain.Event) {
		ev.Status = domain.StatusFailed
		ev.LastError = lastError
		ev.NextAttemptAt = nextAttemptAt
		ev.UpdatedAt = now
	})
}

// KillEvent moves a processing event to dead.
func (s *Store) KillEvent(ctx context.Context, id, lastError string, now time.Time) error {
	return s.transition("KillEvent", id, func(ev *domain.Event) {
		ev.Status = domain.StatusDead
		ev.LastError = lastError
		ev.ProcessedAt = &now
		ev.UpdatedAt = now
	})
}

func (s *Store) transition(op, id string, apply func(*domain.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(op); err != nil {
		return err
	}
	if ev, ok := s.events[id]; ok && ev.Status == domain.StatusProcessing {
		apply(ev)
	}
	return nil
}

// RequeueEvent resets a dead or failed event to queued.
func (s *Store) RequeueEvent(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RequeueEvent"); err != nil {
		return err
	}
	ev, ok := s.events[id]
	if !ok || (ev.Status != domain.StatusDead && ev.Status != domain.StatusFailed) {
		return fmt.Errorf("requeue event %s: %w", id, domain.ErrNotFound)
	}
	ev.Status = domain.StatusQueued
	ev.Attempts = 0
	ev.NextAttemptAt = now
	ev.UpdatedAt = now
	ev.ProcessedAt = nil
	return nil
}

// RecoverStale fails processing events not touched since olderThan, or kills
// them once they have used maxAttempts claims.
func (s *Store) RecoverStale(ctx context.Context, olderThan, now time.Time, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RecoverStale"); err != nil {
		return 0, err
	}
	var n int64
	for _, ev := range s.events {
		if ev.Status == domain.StatusProcessing && ev.UpdatedAt.Before(olderThan) {
			ev.Status = domain.StatusFailed
			if ev.Attempts >= maxAttempts {
				ev.Status = domain.StatusDead
				ev.ProcessedAt = &now
			}
			ev.LastError = "claim expired"
			ev.NextAttemptAt = now
			ev.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// GetEvent returns a copy of the event.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetEvent"); err != nil {
		return domain.Event{}, err
	}
	ev, ok := s.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("get event %s: %w", id, domain.ErrNotFound)
	}
	return *ev, nil
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, f domain.ListFilter) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListEvents"); err != nil {
		return nil, err
	}
	out := []domain.Event{}
	for _, ev := range s.sorted(true) {
		if f.LobbyID != "" && ev.LobbyID != f.LobbyID {
			continue
		}
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		out = append(out, *ev)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) sorted(newestFirst bool) []*domain.Event {
	evs := make([]*domain.Event, 0, len(s.order))
	for _, id := range s.order {
		evs = append(evs, s.events[id])
	}
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return evs
}

// ClaimDispatch records a claim ticket. claimed is false if one exists.
func (s *Store) ClaimDispatch(ctx context.Context, c domain.DedupeClaim) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ClaimDispatch"); err != nil {
		return false, err
	}
	k := dedupeKey{c.LobbyID, c.RuleKey, c.DedupeKey}
	if _, ok := s.claims[k]; ok {
		return false, nil
	}
	s.claims[k] = c
	return true, nil
}

// WriteRuleRun appends an audit row.
func (s *Store) WriteRuleRun(ctx context.Context, run domain.RuleRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("WriteRuleRun"); err != nil {
		return err
	}
	run.ID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, run)
	return nil
}

// ListRuleRuns returns the audit rows for an event in insertion order.
func (s *Store) ListRuleRuns(ctx context.Context, eventID string) ([]domain.RuleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.RuleRun{}
	for _, r := range s.runs {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, s.fault("ListRuleRuns")
}

// RuleRuns returns every audit row in insertion order.
func (s *Store) RuleRuns() []domain.RuleRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RuleRun(nil), s.runs...)
}

// CountEmittedPushes counts emitted pushes targeted at userID since since.
func (s *Store) CountEmittedPushes(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CountEmittedPushes"); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range s.runs {
		if r.TargetUserID == userID && r.Channel == domain.ChannelPush &&
			r.Decision == domain.DecisionEmitted && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// InsertComment appends a comment.
func (s *Store) InsertComment(ctx context.Context, c domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertComment"); err != nil {
		return err
	}
	s.comments = append(s.comments, c)
	return nil
}

// CountFeedCommentsSince counts feed-visible comments created after since.
func (s *Store) CountFeedCommentsSince(ctx context.Context, lobbyID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CountFeedCommentsSince"); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range s.comments {
		if c.LobbyID == lobbyID && c.Visibility.InFeed() && c.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// CountActivityFeedComments counts feed-visible comments for an activity.
func (s *Store) CountActivityFeedComments(ctx context.Context, lobbyID, activityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CountActivityFeedComments"); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range s.comments {
		if c.LobbyID == lobbyID && c.ActivityID == activityID && c.Visibility.InFeed() {
			n++
		}
	}
	return n, nil
}

// ListComments returns a lobby's comments in insertion order.
func (s *Store) ListComments(ctx context.Context, lobbyID string) ([]domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Comment{}
	for _, c := range s.comments {
		if c.LobbyID == lobbyID {
			out = append(out, c)
		}
	}
	return out, s.fault("ListComments")
}

// UpsertLobby records or renames a lobby.
func (s *Store) UpsertLobby(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertLobby"); err != nil {
		return err
	}
	s.lobbies[id] = name
	return nil
}

// UpsertMember records or updates a lobby member.
func (s *Store) UpsertMember(ctx context.Context, m domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertMember"); err != nil {
		return err
	}
	if s.members[m.LobbyID] == nil {
		s.members[m.LobbyID] = make(map[string]domain.Member)
	}
	s.members[m.LobbyID][m.PlayerID] = m
	return nil
}

// LoadLobby returns the lobby with members ordered by player ID.
func (s *Store) LoadLobby(ctx context.Context, lobbyID string) (domain.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("LoadLobby"); err != nil {
		return domain.Lobby{}, err
	}
	lobby := domain.Lobby{ID: lobbyID, Name: s.lobbies[lobbyID], Members: []domain.Member{}}
	for _, m := range s.members[lobbyID] {
		lobby.Members = append(lobby.Members, m)
	}
	sort.Slice(lobby.Members, func(i, j int) bool {
		return lobby.Members[i].PlayerID < lobby.Members[j].PlayerID
	})
	return lobby, nil
}
