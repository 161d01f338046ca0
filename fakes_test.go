package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uniroomie/backend/matcher"
)

// Initialize JWT secret for tests
func init() {
	jwtSecret = []byte("test-secret-key-for-testing")
}

// fakeStore is the in-memory Store used by handler and pipeline tests.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*User
	profiles  map[string]*Profile
	decisions map[string]map[string]DecisionKind // actor -> target -> kind
	snapshots map[string]map[string]*Profile     // actor -> target -> frozen profile
	matches   map[string]*Match
	messages  map[string][]MatchMessage
	reports   []*Report

	// candidateQueries records every exclusion chunk passed to
	// QueryProfilesExcluding, in call order.
	candidateQueries [][]string
	failCandidates   bool
	failDecisions    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*User),
		profiles:  make(map[string]*Profile),
		decisions: make(map[string]map[string]DecisionKind),
		snapshots: make(map[string]map[string]*Profile),
		matches:   make(map[string]*Match),
		messages:  make(map[string][]MatchMessage),
	}
}

var errFakeDown = &fakeError{"store down"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

func (s *fakeStore) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return "", ErrEmailExists
		}
	}
	id := newUserID()
	s.users[id] = &User{ID: id, Email: email, PasswordHash: passwordHash, LastOnline: time.Now(), CreatedAt: time.Now()}
	return id, nil
}

func (s *fakeStore) Credentials(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) TouchLastOnline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastOnline = time.Now()
	return nil
}

func (s *fakeStore) OnlineNow(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	return time.Since(u.LastOnline) < 90*time.Second, nil
}

func (s *fakeStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	delete(s.users, userID)
	delete(s.profiles, userID)
	delete(s.decisions, userID)
	return nil
}

func (s *fakeStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakeStore) UpsertProfile(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	copied.UpdatedAt = time.Now()
	s.profiles[p.UserID] = &copied
	return nil
}

func (s *fakeStore) ProfilesByIDs(ctx context.Context, ids []string) (map[string]*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			copied := *p
			out[id] = &copied
		}
	}
	return out, nil
}

func (s *fakeStore) QueryProfilesExcluding(ctx context.Context, excluded []string, actorID string) ([]*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCandidates {
		return nil, errFakeDown
	}
	s.candidateQueries = append(s.candidateQueries, append([]string(nil), excluded...))

	var out []*Profile
	for id, p := range s.profiles {
		if id == actorID || !p.Complete() || matcher.Excluded(excluded, id) {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *fakeStore) DecisionTargets(ctx context.Context, actorID string, kind DecisionKind) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDecisions {
		return nil, errFakeDown
	}
	var out []string
	for target, k := range s.decisions[actorID] {
		if k == kind {
			out = append(out, target)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) setDecision(actorID, targetID string, kind DecisionKind) {
	if s.decisions[actorID] == nil {
		s.decisions[actorID] = make(map[string]DecisionKind)
	}
	s.decisions[actorID][targetID] = kind
}

func (s *fakeStore) setSnapshot(actorID string, target *Profile) {
	if s.snapshots[actorID] == nil {
		s.snapshots[actorID] = make(map[string]*Profile)
	}
	copied := *target
	s.snapshots[actorID][target.UserID] = &copied
}

func (s *fakeStore) RecordPass(ctx context.Context, actorID string, target *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDecision(actorID, target.UserID, DecisionPass)
	s.setSnapshot(actorID, target)
	return nil
}

func (s *fakeStore) RecordLike(ctx context.Context, actorID string, target *Profile) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	targetID := target.UserID
	s.setDecision(actorID, targetID, DecisionLike)
	s.setSnapshot(actorID, target)

	if s.decisions[targetID][actorID] != DecisionLike {
		return nil, nil
	}

	id := MatchID(actorID, targetID)
	if m, ok := s.matches[id]; ok {
		copied := *m
		return &copied, nil
	}
	users := make(map[string]*Profile, 2)
	targetCopy := *target
	users[targetID] = &targetCopy
	if p, ok := s.profiles[actorID]; ok {
		copied := *p
		users[actorID] = &copied
	} else {
		users[actorID] = &Profile{UserID: actorID}
	}
	m := &Match{
		ID:            id,
		UserIDs:       []string{actorID, targetID},
		Users:         users,
		Confirmations: map[string]bool{},
		CreatedAt:     time.Now(),
	}
	s.matches[id] = m
	copied := *m
	return &copied, nil
}

func (s *fakeStore) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *fakeStore) MatchesForUser(ctx context.Context, userID string) ([]*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Match
	for _, m := range s.matches {
		if m.Has(userID) {
			copied := *m
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) ConfirmMatch(ctx context.Context, matchID, userID string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok || !m.Has(userID) {
		return nil, ErrNotFound
	}
	m.Confirmations[userID] = true
	copied := *m
	return &copied, nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, msg *MatchMessage) (*MatchMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = int64(len(s.messages[msg.MatchID]) + 1)
	msg.CreatedAt = time.Now()
	s.messages[msg.MatchID] = append(s.messages[msg.MatchID], *msg)
	return msg, nil
}

func (s *fakeStore) Messages(ctx context.Context, matchID string, limit int, before time.Time) ([]MatchMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []MatchMessage
	for _, m := range s.messages[matchID] {
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) LastMessage(ctx context.Context, matchID string) (*MatchMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[matchID]
	if len(msgs) == 0 {
		return nil, nil
	}
	copied := msgs[len(msgs)-1]
	return &copied, nil
}

func (s *fakeStore) CreateReport(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = int64(len(s.reports) + 1)
	r.CreatedAt = time.Now()
	s.reports = append(s.reports, r)
	return nil
}

// --- test data helpers ---

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

// seedUser registers a user row and a complete profile in one go.
func seedUser(s *fakeStore, id, name string) {
	s.users[id] = &User{ID: id, Email: id + "@example.com", LastOnline: time.Now(), CreatedAt: time.Now()}
	s.profiles[id] = completeProfile(id, name)
}

func completeProfile(id, name string) *Profile {
	return &Profile{
		UserID:      id,
		DisplayName: strPtr(name),
		Age:         intPtr(21),
		Gender:      strPtr("Female"),
		Occupation:  strPtr("Student"),
		University:  strPtr("TalTech"),
		Lifestyle: Lifestyle{
			Diet:    strPtr("Veg"),
			Sleep:   strPtr("Early Bird"),
			Fitness: strPtr("Daily"),
			Social:  strPtr("Ambivert"),
		},
		Hobbies:   []string{"Traveling"},
		UpdatedAt: time.Now(),
	}
}
