package main

import (
	"log"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
)

// JWT secret from environment variable or fallback
func getJWTSecret() []byte {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("your_secret_key_please_change_in_production")
}

var jwtSecret = getJWTSecret()

func main() {
	db := initDB()
	store := NewPgStore(db)

	// Profile change feed: NATS when configured, in-process otherwise.
	var events ProfileEvents
	if url := os.Getenv("NATS_URL"); url != "" {
		ev, err := NewNATSEvents(url)
		if err != nil {
			log.Fatal("Cannot connect to NATS:", err)
		}
		events = ev
	} else {
		log.Println("Warning: NATS_URL not set, profile events stay in-process")
		events = NewLocalEvents()
	}
	defer events.Close()

	// Deck cache is optional; without Redis every request builds live.
	var cache *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cache = redis.NewClient(&redis.Options{Addr: addr})
	} else {
		log.Println("Warning: REDIS_ADDR not set, deck caching disabled")
	}

	hub := NewHub()
	decks := NewDeckService(store, cache, hub)
	if err := decks.Watch(events); err != nil {
		log.Fatal("Cannot subscribe to profile events:", err)
	}
	defer decks.Stop()

	mux := http.NewServeMux()

	// Auth & account
	mux.Handle("/register", registerHandler(store))
	mux.Handle("/login", loginHandler(store))
	mux.Handle("/me", authenticate(store, deleteMeHandler(store, events))) // DELETE
	mux.Handle("/me/ping", authenticate(store, mePingHandler(store)))      // POST

	// Profile & onboarding
	mux.Handle("/me/profile", authenticate(store, meProfileHandler(store, events)))
	mux.Handle("/me/lifestyle", authenticate(store, meLifestyleHandler(store, events)))
	mux.Handle("/me/hobbies", authenticate(store, meHobbiesHandler(store, events)))
	mux.Handle("/me/photos", authenticate(store, mePhotosHandler(store, events)))
	mux.Handle("/users/", authenticate(store, userHandler(store)))

	// Matching
	mux.Handle("/deck", authenticate(store, deckHandler(decks)))
	mux.Handle("/swipes/", authenticate(store, swipesRouter(store, hub))) // /swipes/{id}/pass|like

	// Matches & chat
	mux.Handle("/matches", authenticate(store, matchesHandler(store)))
	mux.Handle("/matches/", authenticate(store, matchActionsRouter(store, hub)))
	mux.Handle("/ws", wsHandler(store, hub))

	// Ops
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	log.Println("Starting UniRoomie backend on port 8080...")
	http.ListenAndServe(":8080", withCORS(mux))
}
