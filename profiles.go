package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

func profileResponse(p *Profile) map[string]interface{} {
	return map[string]interface{}{
		"profile":     p,
		"is_complete": p.Complete(),
	}
}

// meProfileHandler serves GET and PUT /me/profile. A PUT only touches the
// base fields; lifestyle, hobbies and photos have their own endpoints.
func meProfileHandler(store Store, events ProfileEvents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		switch r.Method {
		case http.MethodGet:
			p, err := store.GetProfile(r.Context(), userID)
			if err == ErrNotFound {
				// No profile yet: the client starts onboarding.
				writeJSON(w, http.StatusOK, profileResponse(&Profile{UserID: userID}))
				return
			}
			if err != nil {
				log.Println("Error loading profile:", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			writeJSON(w, http.StatusOK, profileResponse(p))

		case http.MethodPut:
			var req struct {
				DisplayName *string `json:"display_name"`
				Age         *int    `json:"age"`
				Gender      *string `json:"gender"`
				Occupation  *string `json:"occupation"`
				University  *string `json:"university"`
				AboutMe     *string `json:"about_me"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
			if req.Age != nil && (*req.Age < 16 || *req.Age > 120) {
				writeError(w, http.StatusBadRequest, "invalid_age")
				return
			}

			p := loadOrEmptyProfile(r, store, userID)
			if p == nil {
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			p.DisplayName = req.DisplayName
			p.Age = req.Age
			p.Gender = req.Gender
			p.Occupation = req.Occupation
			p.University = req.University
			p.AboutMe = req.AboutMe

			saveProfile(w, r, store, events, p)

		default:
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		}
	}
}

// meLifestyleHandler serves PUT /me/lifestyle. The questionnaire answers
// are replaced wholesale; answers outside the suggested options are kept
// verbatim (they just score as "other" in matching).
func meLifestyleHandler(store Store, events ProfileEvents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req Lifestyle
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.Cleanliness != nil && (*req.Cleanliness < 1 || *req.Cleanliness > 5) {
			writeError(w, http.StatusBadRequest, "invalid_rating")
			return
		}
		if req.NoiseLevel != nil && (*req.NoiseLevel < 1 || *req.NoiseLevel > 5) {
			writeError(w, http.StatusBadRequest, "invalid_rating")
			return
		}

		p := loadOrEmptyProfile(r, store, userID)
		if p == nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		p.Lifestyle = req

		saveProfile(w, r, store, events, p)
	}
}

// meHobbiesHandler serves PUT /me/hobbies. Free-form entries are stored
// as given; only the curated vocabulary influences the match score.
func meHobbiesHandler(store Store, events ProfileEvents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			Hobbies []string `json:"hobbies"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		hobbies := make([]string, 0, len(req.Hobbies))
		seen := make(map[string]bool, len(req.Hobbies))
		for _, h := range req.Hobbies {
			h = strings.TrimSpace(h)
			if h == "" || seen[h] {
				continue
			}
			seen[h] = true
			hobbies = append(hobbies, h)
		}

		p := loadOrEmptyProfile(r, store, userID)
		if p == nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		p.Hobbies = hobbies

		saveProfile(w, r, store, events, p)
	}
}

// mePhotosHandler serves PUT /me/photos with an ordered URL list. Uploads
// happen elsewhere; this only records where the images live.
func mePhotosHandler(store Store, events ProfileEvents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			Photos []string `json:"photos"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		photos := make([]string, 0, len(req.Photos))
		for _, u := range req.Photos {
			if u = strings.TrimSpace(u); u != "" {
				photos = append(photos, u)
			}
		}

		p := loadOrEmptyProfile(r, store, userID)
		if p == nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		p.Photos = photos

		saveProfile(w, r, store, events, p)
	}
}

// userHandler serves GET /users/{id}: the public view another user sees.
func userHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		targetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users"), "/")
		if targetID == "" || strings.Contains(targetID, "/") {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		p, err := store.GetProfile(r.Context(), targetID)
		if err == ErrNotFound {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			log.Println("Error loading user profile:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		online, err := store.OnlineNow(r.Context(), targetID)
		if err != nil && err != ErrNotFound {
			log.Println("Error checking presence:", err)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"profile": p,
			"online":  online,
		})
	}
}

func loadOrEmptyProfile(r *http.Request, store Store, userID string) *Profile {
	p, err := store.GetProfile(r.Context(), userID)
	if err == ErrNotFound {
		return &Profile{UserID: userID}
	}
	if err != nil {
		log.Println("Error loading profile:", err)
		return nil
	}
	return p
}

func saveProfile(w http.ResponseWriter, r *http.Request, store Store, events ProfileEvents, p *Profile) {
	if err := store.UpsertProfile(r.Context(), p); err != nil {
		log.Println("Error saving profile:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	// Other users' decks must pick the change up.
	if err := events.PublishChanged(p.UserID); err != nil {
		log.Println("Failed to publish profile change:", err)
	}
	writeJSON(w, http.StatusOK, profileResponse(p))
}
