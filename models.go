package main

import (
	"time"

	"github.com/uniroomie/backend/matcher"
)

// Profile is a user's matching profile. Fields the user has not filled in
// yet are nil pointers, so "unanswered" is distinct from an empty answer.
type Profile struct {
	UserID      string    `json:"user_id"`
	DisplayName *string   `json:"display_name"`
	Age         *int      `json:"age"`
	Gender      *string   `json:"gender"`
	Occupation  *string   `json:"occupation"`
	University  *string   `json:"university"`
	AboutMe     *string   `json:"about_me"`
	Lifestyle   Lifestyle `json:"lifestyle"`
	Hobbies     []string  `json:"hobbies"`
	Photos      []string  `json:"photos"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Lifestyle holds the categorical questionnaire answers plus the two
// numeric self-ratings. Each answer is independently optional.
type Lifestyle struct {
	Diet        *string `json:"diet"`
	Sleep       *string `json:"sleep"`
	Fitness     *string `json:"fitness"`
	Social      *string `json:"social"`
	Cleanliness *int    `json:"cleanliness"`
	NoiseLevel  *int    `json:"noise_level"`
}

// Complete reports whether the profile is eligible for matching. Incomplete
// profiles are gated onto onboarding and never enter anyone's deck.
func (p *Profile) Complete() bool {
	if p == nil {
		return false
	}
	return p.DisplayName != nil && p.Age != nil && p.Gender != nil &&
		p.University != nil && p.Occupation != nil &&
		p.Lifestyle.Diet != nil && p.Lifestyle.Sleep != nil &&
		p.Lifestyle.Fitness != nil && p.Lifestyle.Social != nil
}

// Features maps the profile onto the matcher's attribute view.
func (p *Profile) Features() *matcher.Attributes {
	if p == nil {
		return nil
	}
	return &matcher.Attributes{
		ID:         p.UserID,
		Gender:     p.Gender,
		University: p.University,
		Diet:       p.Lifestyle.Diet,
		Fitness:    p.Lifestyle.Fitness,
		Sleep:      p.Lifestyle.Sleep,
		Social:     p.Lifestyle.Social,
		Hobbies:    p.Hobbies,
	}
}

// FirstPhoto returns the lead photo URL, or "" when none is set.
func (p *Profile) FirstPhoto() string {
	if p == nil || len(p.Photos) == 0 {
		return ""
	}
	return p.Photos[0]
}

// DecisionKind is the swipe direction stored with a decision.
type DecisionKind string

const (
	DecisionPass DecisionKind = "pass"
	DecisionLike DecisionKind = "like"
)

// Decision records one swipe: actor decided kind about target. Snapshot
// freezes the target's profile as it looked at decision time; a repeated
// swipe overwrites it.
type Decision struct {
	ActorID   string       `json:"actor_id"`
	TargetID  string       `json:"target_id"`
	Kind      DecisionKind `json:"kind"`
	Snapshot  *Profile     `json:"snapshot"`
	CreatedAt time.Time    `json:"created_at"`
}

// Match is a mutual like between two users. Users freezes both profiles as
// they looked at match time; Confirmations is the monotonic per-user
// roommate handshake.
type Match struct {
	ID            string              `json:"id"`
	UserIDs       []string            `json:"user_ids"`
	Users         map[string]*Profile `json:"users"`
	Confirmations map[string]bool     `json:"confirmations"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Peer returns the other participant's ID, or "" if uid is not on the match.
func (m *Match) Peer(uid string) string {
	for _, id := range m.UserIDs {
		if id != uid {
			return id
		}
	}
	return ""
}

// Has reports whether uid participates in the match.
func (m *Match) Has(uid string) bool {
	for _, id := range m.UserIDs {
		if id == uid {
			return true
		}
	}
	return false
}

// MatchMessage is one chat message inside a match.
type MatchMessage struct {
	ID          int64     `json:"id"`
	MatchID     string    `json:"match_id"`
	SenderID    string    `json:"sender_id"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Report is an abuse report filed against the other side of a match, with
// a snapshot of the recent messages at filing time.
type Report struct {
	ID         int64          `json:"id"`
	MatchID    string         `json:"match_id"`
	ReporterID string         `json:"reporter_id"`
	Reason     string         `json:"reason"`
	Messages   []MatchMessage `json:"messages"`
	CreatedAt  time.Time      `json:"created_at"`
}

// User is an account row. The profile lives separately.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	LastOnline   time.Time
	CreatedAt    time.Time
}
