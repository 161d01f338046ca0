package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailExists is returned on registration with a taken email.
	ErrEmailExists = errors.New("email already registered")
)

// Store is the persistence surface the handlers and the deck pipeline are
// built against. Handlers receive it by injection so tests can swap in the
// in-memory fake.
type Store interface {
	// Users & auth.
	CreateUser(ctx context.Context, email, passwordHash string) (string, error)
	Credentials(ctx context.Context, email string) (*User, error)
	TouchLastOnline(ctx context.Context, userID string) error
	OnlineNow(ctx context.Context, userID string) (bool, error)
	DeleteUser(ctx context.Context, userID string) error

	// Profiles.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]*Profile, error)
	// QueryProfilesExcluding returns complete profiles whose IDs are not in
	// excluded (one chunk, at most matcher.ExclusionBatchSize entries) and
	// that do not belong to actorID.
	QueryProfilesExcluding(ctx context.Context, excluded []string, actorID string) ([]*Profile, error)

	// Decisions & matches. The writes take the target's profile so every
	// decision row freezes a snapshot of what the actor swiped on; a
	// repeated swipe overwrites the snapshot instead of duplicating.
	DecisionTargets(ctx context.Context, actorID string, kind DecisionKind) ([]string, error)
	RecordPass(ctx context.Context, actorID string, target *Profile) error
	// RecordLike stores the like and, when the target already liked the
	// actor, creates the match. Returns the match or nil.
	RecordLike(ctx context.Context, actorID string, target *Profile) (*Match, error)
	GetMatch(ctx context.Context, matchID string) (*Match, error)
	MatchesForUser(ctx context.Context, userID string) ([]*Match, error)
	ConfirmMatch(ctx context.Context, matchID, userID string) (*Match, error)

	// Chat & reports.
	AppendMessage(ctx context.Context, msg *MatchMessage) (*MatchMessage, error)
	Messages(ctx context.Context, matchID string, limit int, before time.Time) ([]MatchMessage, error)
	LastMessage(ctx context.Context, matchID string) (*MatchMessage, error)
	CreateReport(ctx context.Context, r *Report) error
}

// MatchID builds the deterministic, order-independent key for a user pair.
// Both like orders produce the same ID, so a pair can only ever hold one
// match row.
func MatchID(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

type pgStore struct {
	db *sql.DB
}

// NewPgStore wraps an open connection pool in the Store interface.
func NewPgStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

// --- Users ---

func (s *pgStore) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	id := newUserID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)
	`, id, email, passwordHash)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrEmailExists
		}
		return "", err
	}
	return id, nil
}

func (s *pgStore) Credentials(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, last_online, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.LastOnline, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *pgStore) TouchLastOnline(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_online = now() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) OnlineNow(ctx context.Context, userID string) (bool, error) {
	var online bool
	err := s.db.QueryRowContext(ctx, `
		SELECT last_online > now() - interval '90 seconds'
		FROM users WHERE id = $1
	`, userID).Scan(&online)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return online, nil
}

func (s *pgStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Profiles ---

const profileColumns = `
	user_id, display_name, age, gender, occupation, university, about_me,
	diet, sleep, fitness, social, cleanliness, noise_level,
	hobbies, photos, updated_at`

func scanProfile(row interface{ Scan(...interface{}) error }) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.UserID, &p.DisplayName, &p.Age, &p.Gender, &p.Occupation,
		&p.University, &p.AboutMe,
		&p.Lifestyle.Diet, &p.Lifestyle.Sleep, &p.Lifestyle.Fitness,
		&p.Lifestyle.Social, &p.Lifestyle.Cleanliness, &p.Lifestyle.NoiseLevel,
		pq.Array(&p.Hobbies), pq.Array(&p.Photos), &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *pgStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *pgStore) UpsertProfile(ctx context.Context, p *Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (
			user_id, display_name, age, gender, occupation, university, about_me,
			diet, sleep, fitness, social, cleanliness, noise_level,
			hobbies, photos, is_complete, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			age          = EXCLUDED.age,
			gender       = EXCLUDED.gender,
			occupation   = EXCLUDED.occupation,
			university   = EXCLUDED.university,
			about_me     = EXCLUDED.about_me,
			diet         = EXCLUDED.diet,
			sleep        = EXCLUDED.sleep,
			fitness      = EXCLUDED.fitness,
			social       = EXCLUDED.social,
			cleanliness  = EXCLUDED.cleanliness,
			noise_level  = EXCLUDED.noise_level,
			hobbies      = EXCLUDED.hobbies,
			photos       = EXCLUDED.photos,
			is_complete  = EXCLUDED.is_complete,
			updated_at   = now()
	`, p.UserID, p.DisplayName, p.Age, p.Gender, p.Occupation, p.University,
		p.AboutMe, p.Lifestyle.Diet, p.Lifestyle.Sleep, p.Lifestyle.Fitness,
		p.Lifestyle.Social, p.Lifestyle.Cleanliness, p.Lifestyle.NoiseLevel,
		pq.Array(p.Hobbies), pq.Array(p.Photos), p.Complete())
	return err
}

func (s *pgStore) ProfilesByIDs(ctx context.Context, ids []string) (map[string]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Profile, len(ids))
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

func (s *pgStore) QueryProfilesExcluding(ctx context.Context, excluded []string, actorID string) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE is_complete
		  AND user_id <> $1
		  AND user_id <> ALL($2)
		ORDER BY user_id
	`, actorID, pq.Array(excluded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Decisions & matches ---

func (s *pgStore) DecisionTargets(ctx context.Context, actorID string, kind DecisionKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id FROM decisions WHERE actor_id = $1 AND kind = $2
	`, actorID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *pgStore) RecordPass(ctx context.Context, actorID string, target *Profile) error {
	snapshot, err := json.Marshal(target)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (actor_id, target_id, kind, snapshot)
		VALUES ($1, $2, 'pass', $3)
		ON CONFLICT (actor_id, target_id, kind) DO UPDATE SET snapshot = EXCLUDED.snapshot
	`, actorID, target.UserID, snapshot)
	return err
}

// RecordLike runs the whole like/reciprocity/match sequence in a single
// transaction holding an advisory lock on the pair key, so two users liking
// each other at the same instant cannot both miss the reciprocal like.
func (s *pgStore) RecordLike(ctx context.Context, actorID string, target *Profile) (*Match, error) {
	targetID := target.UserID
	pairID := MatchID(actorID, targetID)
	snapshot, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	var match *Match

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, pairID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decisions (actor_id, target_id, kind, snapshot)
			VALUES ($1, $2, 'like', $3)
			ON CONFLICT (actor_id, target_id, kind) DO UPDATE SET snapshot = EXCLUDED.snapshot
		`, actorID, targetID, snapshot); err != nil {
			return err
		}

		var reciprocal bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM decisions
				WHERE actor_id = $1 AND target_id = $2 AND kind = 'like'
			)
		`, targetID, actorID).Scan(&reciprocal); err != nil {
			return err
		}
		if !reciprocal {
			return nil
		}

		// Both full profiles are frozen onto the match as they look right
		// now; later edits never rewrite match history.
		users := map[string]*Profile{targetID: target}
		actorProfile, err := scanProfile(tx.QueryRowContext(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, actorID))
		if err == sql.ErrNoRows {
			actorProfile = &Profile{UserID: actorID}
		} else if err != nil {
			return err
		}
		users[actorID] = actorProfile
		usersJSON, err := json.Marshal(users)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO matches (id, user_ids, users, confirmations)
			VALUES ($1, $2, $3, '{}')
			ON CONFLICT (id) DO NOTHING
		`, pairID, pq.Array([]string{actorID, targetID}), usersJSON); err != nil {
			return err
		}

		m, err := scanMatch(tx.QueryRowContext(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE id = $1`, pairID))
		if err != nil {
			return err
		}
		match = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

const matchColumns = `id, user_ids, users, confirmations, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*Match, error) {
	var (
		m             Match
		usersJSON     []byte
		confirmations []byte
	)
	err := row.Scan(&m.ID, pq.Array(&m.UserIDs), &usersJSON, &confirmations, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(usersJSON, &m.Users); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(confirmations, &m.Confirmations); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *pgStore) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *pgStore) MatchesForUser(ctx context.Context, userID string) ([]*Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE $1 = ANY(user_ids)
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ConfirmMatch sets the caller's confirmation flag to true. The flag is
// monotonic: confirming twice is a no-op and there is no way to revert.
func (s *pgStore) ConfirmMatch(ctx context.Context, matchID, userID string) (*Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, `
		UPDATE matches
		SET confirmations = jsonb_set(confirmations, ARRAY[$2], 'true'::jsonb)
		WHERE id = $1 AND $2 = ANY(user_ids)
		RETURNING `+matchColumns, matchID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// --- Chat & reports ---

func (s *pgStore) AppendMessage(ctx context.Context, msg *MatchMessage) (*MatchMessage, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO match_messages (match_id, sender_id, display_name, photo_url, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, msg.MatchID, msg.SenderID, msg.DisplayName, msg.PhotoURL, msg.Body).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *pgStore) Messages(ctx context.Context, matchID string, limit int, before time.Time) ([]MatchMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, sender_id, display_name, photo_url, body, created_at
		FROM match_messages
		WHERE match_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, matchID, nullTime(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchMessage
	for rows.Next() {
		var m MatchMessage
		if err := rows.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.DisplayName,
			&m.PhotoURL, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first for the client.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *pgStore) LastMessage(ctx context.Context, matchID string) (*MatchMessage, error) {
	var m MatchMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, match_id, sender_id, display_name, photo_url, body, created_at
		FROM match_messages
		WHERE match_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, matchID).Scan(&m.ID, &m.MatchID, &m.SenderID, &m.DisplayName,
		&m.PhotoURL, &m.Body, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *pgStore) CreateReport(ctx context.Context, r *Report) error {
	snapshot, err := json.Marshal(r.Messages)
	if err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO reports (match_id, reporter_id, reason, messages)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, r.MatchID, r.ReporterID, r.Reason, snapshot).Scan(&r.ID, &r.CreatedAt)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
