package main

import (
	"log"
	"net/http"
	"strings"
)

// swipesRouter handles POST /swipes/{targetID}/pass and
// POST /swipes/{targetID}/like for the authenticated user.
func swipesRouter(store Store, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		actorID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/swipes"), "/"), "/")
		if len(parts) != 2 {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		targetID, action := parts[0], parts[1]
		if targetID == "" || targetID == actorID {
			writeError(w, http.StatusBadRequest, "invalid_target")
			return
		}
		target, err := store.GetProfile(r.Context(), targetID)
		if err != nil {
			if err == ErrNotFound {
				writeError(w, http.StatusBadRequest, "invalid_target")
				return
			}
			log.Println("Error checking swipe target:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		switch action {
		case "pass":
			// Re-swiping only refreshes the stored snapshot, never errors.
			if err := store.RecordPass(r.Context(), actorID, target); err != nil {
				log.Println("Error recording pass:", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			swipesTotal.WithLabelValues("pass").Inc()
			writeJSON(w, http.StatusOK, map[string]string{"status": "passed"})

		case "like":
			match, err := store.RecordLike(r.Context(), actorID, target)
			if err != nil {
				log.Println("Error recording like:", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			swipesTotal.WithLabelValues("like").Inc()

			if match == nil {
				writeJSON(w, http.StatusOK, map[string]string{"status": "liked"})
				return
			}
			matchesCreatedTotal.Inc()
			if hub != nil {
				for _, uid := range match.UserIDs {
					hub.SendToUser(uid, ServerEvent{Type: "matched", Data: match})
				}
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"status": "matched",
				"match":  match,
			})

		default:
			writeError(w, http.StatusNotFound, "not_found")
		}
	}
}
