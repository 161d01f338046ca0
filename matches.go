package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MatchSummary is one row of the match list: the match itself, the peer's
// profile, both confirmation flags and the latest message.
type MatchSummary struct {
	ID              string        `json:"id"`
	Peer            *Profile      `json:"peer"`
	PeerOnline      bool          `json:"peer_online"`
	ConfirmedByMe   bool          `json:"confirmed_by_me"`
	ConfirmedByPeer bool          `json:"confirmed_by_peer"`
	LastMessage     *MatchMessage `json:"last_message"`
	CreatedAt       time.Time     `json:"created_at"`
}

// matchesHandler serves GET /matches for the authenticated user.
func matchesHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		matches, err := store.MatchesForUser(r.Context(), userID)
		if err != nil {
			log.Println("Error listing matches:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		// One batched profile query for all peers instead of one per match.
		loader := newProfileLoader(store)
		thunks := make(map[string]func() (*Profile, error), len(matches))
		for _, m := range matches {
			peer := m.Peer(userID)
			thunks[peer] = loader.Load(r.Context(), peer)
		}

		summaries := make([]MatchSummary, 0, len(matches))
		for _, m := range matches {
			peerID := m.Peer(userID)

			peer, err := thunks[peerID]()
			if err != nil && err != ErrNotFound {
				log.Println("Error loading peer profile:", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			online, err := store.OnlineNow(r.Context(), peerID)
			if err != nil && err != ErrNotFound {
				log.Println("Error checking peer presence:", err)
			}
			last, err := store.LastMessage(r.Context(), m.ID)
			if err != nil {
				log.Println("Error loading last message:", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}

			summaries = append(summaries, MatchSummary{
				ID:              m.ID,
				Peer:            peer,
				PeerOnline:      online,
				ConfirmedByMe:   m.Confirmations[userID],
				ConfirmedByPeer: m.Confirmations[peerID],
				LastMessage:     last,
				CreatedAt:       m.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// matchActionsRouter handles the per-match endpoints:
//
//	GET  /matches/{id}/messages?limit=50&before=2026-08-01T08:00:00Z
//	POST /matches/{id}/confirm
//	POST /matches/{id}/report
func matchActionsRouter(store Store, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/matches"), "/"), "/")
		if len(parts) != 2 {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		matchID, action := parts[0], parts[1]

		match, err := store.GetMatch(r.Context(), matchID)
		if err == ErrNotFound {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			log.Println("Error loading match:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		// Non-participants get the same answer as a missing match.
		if !match.Has(userID) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		switch action {
		case "messages":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
				return
			}
			messagesHandler(store, match)(w, r)
		case "confirm":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
				return
			}
			confirmMatchHandler(store, hub, match, userID)(w, r)
		case "report":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
				return
			}
			reportMatchHandler(store, match, userID)(w, r)
		default:
			writeError(w, http.StatusNotFound, "not_found")
		}
	}
}

func messagesHandler(store Store, match *Match) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		var before time.Time
		if s := r.URL.Query().Get("before"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				before = t
			}
		}

		msgs, err := store.Messages(r.Context(), match.ID, limit, before)
		if err != nil {
			log.Println("Error loading messages:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if msgs == nil {
			msgs = []MatchMessage{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// confirmMatchHandler flips the caller's roommate confirmation to true.
// The flag never goes back; repeating the call just returns current state.
func confirmMatchHandler(store Store, hub *Hub, match *Match, userID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := store.ConfirmMatch(r.Context(), match.ID, userID)
		if err != nil {
			log.Println("Error confirming match:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if hub != nil {
			hub.SendToUser(updated.Peer(userID), ServerEvent{Type: "confirmed", From: userID, Data: updated})
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// validReportReasons are the reasons the client's report dialog offers.
var validReportReasons = map[string]bool{
	"harassment":    true,
	"spam":          true,
	"fake_profile":  true,
	"inappropriate": true,
	"other":         true,
}

// reportMatchHandler files an abuse report against the peer, snapshotting
// the ten most recent messages so moderation sees the conversation as it
// was at filing time.
func reportMatchHandler(store Store, match *Match, userID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if !validReportReasons[req.Reason] {
			writeError(w, http.StatusBadRequest, "invalid_reason")
			return
		}

		recent, err := store.Messages(r.Context(), match.ID, 10, time.Time{})
		if err != nil {
			log.Println("Error snapshotting messages for report:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		report := &Report{
			MatchID:    match.ID,
			ReporterID: userID,
			Reason:     req.Reason,
			Messages:   recent,
		}
		if err := store.CreateReport(r.Context(), report); err != nil {
			log.Println("Error creating report:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "reported", "id": report.ID})
	}
}
