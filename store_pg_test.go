package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"
)

// openTestStore connects to the database named by TEST_DATABASE_URL and
// runs migrations. Without the variable the pg-backed tests are skipped,
// so the suite passes on machines without Postgres.
func openTestStore(t *testing.T) (Store, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping pg-backed store tests")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := runMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPgStore(db), db
}

func pgTestUser(t *testing.T, store Store, db *sql.DB) string {
	t.Helper()
	email := fmt.Sprintf("pgtest-%d@example.com", time.Now().UnixNano())
	id, err := store.CreateUser(context.Background(), email, "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM users WHERE id = $1", id) })
	if err := store.UpsertProfile(context.Background(), completeProfile(id, "PG Test")); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	return id
}

func TestPgStoreProfileRoundtrip(t *testing.T) {
	store, db := openTestStore(t)
	id := pgTestUser(t, store, db)

	p, err := store.GetProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.DisplayName == nil || *p.DisplayName != "PG Test" {
		t.Fatalf("display name lost in roundtrip: %+v", p)
	}
	if !p.Complete() {
		t.Fatal("seeded profile should be complete")
	}
}

func TestPgStoreMutualLike(t *testing.T) {
	store, db := openTestStore(t)
	a := pgTestUser(t, store, db)
	b := pgTestUser(t, store, db)
	t.Cleanup(func() { db.Exec("DELETE FROM matches WHERE id = $1", MatchID(a, b)) })

	profileA, err := store.GetProfile(context.Background(), a)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	profileB, err := store.GetProfile(context.Background(), b)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}

	m, err := store.RecordLike(context.Background(), a, profileB)
	if err != nil {
		t.Fatalf("first like: %v", err)
	}
	if m != nil {
		t.Fatal("one-sided like must not create a match")
	}

	// The like row freezes the swiped profile.
	var snapshotName string
	err = db.QueryRow(`
		SELECT snapshot->>'display_name' FROM decisions
		WHERE actor_id = $1 AND target_id = $2 AND kind = 'like'
	`, a, b).Scan(&snapshotName)
	if err != nil || snapshotName != "PG Test" {
		t.Fatalf("expected the target profile snapshot on the decision, got %q (%v)", snapshotName, err)
	}

	m, err = store.RecordLike(context.Background(), b, profileA)
	if err != nil {
		t.Fatalf("reciprocal like: %v", err)
	}
	if m == nil || m.ID != MatchID(a, b) {
		t.Fatalf("expected match %s, got %+v", MatchID(a, b), m)
	}
	if snap := m.Users[a]; snap == nil || snap.DisplayName == nil {
		t.Fatalf("expected full profile snapshots on the match, got %+v", m.Users)
	}

	// Confirmations stick.
	updated, err := store.ConfirmMatch(context.Background(), m.ID, a)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !updated.Confirmations[a] || updated.Confirmations[b] {
		t.Fatalf("unexpected confirmations %v", updated.Confirmations)
	}
}

func TestPgStoreCandidateQueryExcludes(t *testing.T) {
	store, db := openTestStore(t)
	me := pgTestUser(t, store, db)
	other := pgTestUser(t, store, db)
	excludedUser := pgTestUser(t, store, db)

	out, err := store.QueryProfilesExcluding(context.Background(), []string{excludedUser}, me)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var sawOther bool
	for _, p := range out {
		if p.UserID == me {
			t.Fatal("actor leaked into own candidate query")
		}
		if p.UserID == excludedUser {
			t.Fatal("excluded user returned")
		}
		if p.UserID == other {
			sawOther = true
		}
	}
	if !sawOther {
		t.Fatal("expected the non-excluded user in the results")
	}
}
