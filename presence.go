package main

import (
	"net/http"
)

// mePingHandler keeps the caller's last_online fresh; the client pings
// every minute while foregrounded. Online = pinged within 90 seconds.
func mePingHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		_ = store.TouchLastOnline(r.Context(), userID)
		w.WriteHeader(http.StatusNoContent)
	}
}
