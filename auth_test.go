package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func registerTestUser(t *testing.T, store Store, email, password string) (id, token string) {
	t.Helper()

	reqBody := []byte(fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	registerHandler(store).ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed for %s: status %d (%s)", email, w.Code, w.Body)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["token"] == "" || resp["id"] == "" {
		t.Fatalf("expected token and id in register response, got %v", resp)
	}
	return resp["id"], resp["token"]
}

func TestRegisterAndLogin(t *testing.T) {
	store := newFakeStore()
	id, token := registerTestUser(t, store, "alice@example.com", "hunter22")

	// The registration token authenticates as the new user.
	if got, ok := parseToken(token); !ok || got != id {
		t.Fatalf("register token resolves to %q (ok=%v), want %q", got, ok, id)
	}

	reqBody := []byte(`{"email":"alice@example.com","password":"hunter22"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()
	loginHandler(store).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: status %d (%s)", w.Code, w.Body)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["id"] != id {
		t.Fatalf("login returned id %q, want %q", resp["id"], id)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	registerTestUser(t, store, "alice@example.com", "hunter22")

	reqBody := []byte(`{"email":"alice@example.com","password":"other"}`)
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()
	registerHandler(store).ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", w.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := newFakeStore()
	registerTestUser(t, store, "alice@example.com", "hunter22")

	reqBody := []byte(`{"email":"alice@example.com","password":"nope"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()
	loginHandler(store).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", w.Code)
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	store := newFakeStore()
	id, token := registerTestUser(t, store, "alice@example.com", "hunter22")

	var gotID string
	handler := authenticate(store, func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = userIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || gotID != id {
		t.Fatalf("expected pass-through with user %q, got status %d user %q", id, w.Code, gotID)
	}

	// Missing and garbage tokens both bounce.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me/profile", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", w.Code)
	}
}

func TestDeleteMe(t *testing.T) {
	store := newFakeStore()
	events := NewLocalEvents()
	id, _ := registerTestUser(t, store, "alice@example.com", "hunter22")

	var published []string
	events.SubscribeChanged(func(uid string) { published = append(published, uid) })

	w := httptest.NewRecorder()
	deleteMeHandler(store, events).ServeHTTP(w, requestAs(t, http.MethodDelete, "/me", id))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, err := store.Credentials(context.Background(), "alice@example.com"); err != ErrNotFound {
		t.Fatal("account should be gone after deletion")
	}
	if len(published) != 1 || published[0] != id {
		t.Fatalf("deletion must announce a profile change, got %v", published)
	}
}
