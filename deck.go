package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uniroomie/backend/matcher"
)

var (
	// errStoreUnavailable marks a transient store failure. Deck requests
	// surface it as 503 so the client retries instead of treating the
	// account as empty.
	errStoreUnavailable = errors.New("store unavailable")
	// errIncompleteProfile gates users onto onboarding.
	errIncompleteProfile = errors.New("incomplete profile")
)

const (
	deckCacheTTL   = 2 * time.Minute
	deckVersionKey = "deck:version"
	rebuildWindow  = 500 * time.Millisecond
)

// DeckEntry is one scored candidate in the matched pool.
type DeckEntry struct {
	Profile *Profile `json:"profile"`
	Score   float64  `json:"score"`
}

// Deck is the swipe deck built for one user. Other holds candidates that
// passed the hard filters but scored below the similarity threshold; the
// client currently surfaces only Matched, but the split is the caller's
// call. NoMoreProfiles is the explicit exhausted state, not an error.
type Deck struct {
	Matched        []DeckEntry `json:"matched"`
	Other          []*Profile  `json:"other"`
	NoMoreProfiles bool        `json:"no_more_profiles"`
}

// DeckService builds swipe decks: exclusion set from past decisions,
// chunked candidate fetch, encode + rank. Profile-change events trigger
// debounced rebuild pushes to connected users; each rebuild wave carries a
// generation, and waves overtaken by a newer one are dropped unpushed.
type DeckService struct {
	store      Store
	cache      *redis.Client // nil disables caching
	hub        *Hub
	generation atomic.Uint64
	rebuild    *debouncer
}

func NewDeckService(store Store, cache *redis.Client, hub *Hub) *DeckService {
	s := &DeckService{store: store, cache: cache, hub: hub}
	s.rebuild = newDebouncer(rebuildWindow, s.pushAll)
	return s
}

// Watch subscribes the service to the profile-change feed.
func (s *DeckService) Watch(events ProfileEvents) error {
	return events.SubscribeChanged(func(userID string) {
		s.bumpVersion(context.Background())
		s.rebuild.Trigger()
	})
}

// Build runs the full pipeline for one user.
func (s *DeckService) Build(ctx context.Context, userID string) (*Deck, error) {
	start := time.Now()

	me, err := s.store.GetProfile(ctx, userID)
	if err == ErrNotFound {
		return nil, errIncompleteProfile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}
	if !me.Complete() {
		return nil, errIncompleteProfile
	}

	passes, err := s.store.DecisionTargets(ctx, userID, DecisionPass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}
	likes, err := s.store.DecisionTargets(ctx, userID, DecisionLike)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}
	exclusion := matcher.BuildExclusionList(passes, likes)

	candidates, err := s.fetchCandidates(ctx, userID, exclusion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStoreUnavailable, err)
	}

	attrs := make([]*matcher.Attributes, 0, len(candidates))
	byID := make(map[string]*Profile, len(candidates))
	for _, c := range candidates {
		attrs = append(attrs, c.Features())
		byID[c.UserID] = c
	}
	ranking := matcher.Rank(me.Features(), attrs)

	deck := &Deck{}
	for _, scored := range ranking.Matched {
		deck.Matched = append(deck.Matched, DeckEntry{Profile: byID[scored.ID], Score: scored.Score})
	}
	for _, id := range ranking.Other {
		deck.Other = append(deck.Other, byID[id])
	}
	deck.NoMoreProfiles = len(deck.Matched) == 0 && len(deck.Other) == 0

	deckBuildsTotal.Inc()
	deckBuildSeconds.Observe(time.Since(start).Seconds())
	return deck, nil
}

// fetchCandidates runs one query per exclusion chunk, then re-filters the
// union against the full exclusion set. A single chunk can only exclude 10
// IDs, so without the re-filter a candidate excluded by chunk A would leak
// back in through chunk B's query.
func (s *DeckService) fetchCandidates(ctx context.Context, userID string, exclusion []string) ([]*Profile, error) {
	var union []*Profile
	for _, chunk := range matcher.Chunk(exclusion, matcher.ExclusionBatchSize) {
		batch, err := s.store.QueryProfilesExcluding(ctx, chunk, userID)
		if err != nil {
			return nil, err
		}
		union = append(union, batch...)
	}

	seen := make(map[string]struct{}, len(union))
	out := make([]*Profile, 0, len(union))
	for _, p := range union {
		if p.UserID == userID || matcher.Excluded(exclusion, p.UserID) {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// BuildCached serves the deck from Redis when a fresh copy exists. Cache
// keys are versioned by the global deck version, which every profile change
// bumps, so stale entries simply stop being addressed. Cache failures are
// logged and fall through to a live build.
func (s *DeckService) BuildCached(ctx context.Context, userID string) (*Deck, error) {
	if s.cache == nil {
		return s.Build(ctx, userID)
	}

	key := fmt.Sprintf("deck:%s:%d", userID, s.deckVersion(ctx))
	if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var deck Deck
		if err := json.Unmarshal(raw, &deck); err == nil {
			return &deck, nil
		}
	} else if err != redis.Nil {
		log.Println("deck cache get:", err)
	}

	deck, err := s.Build(ctx, userID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(deck); err == nil {
		if err := s.cache.Set(ctx, key, raw, deckCacheTTL).Err(); err != nil {
			log.Println("deck cache set:", err)
		}
	}
	return deck, nil
}

func (s *DeckService) deckVersion(ctx context.Context) int64 {
	if s.cache == nil {
		return 0
	}
	v, err := s.cache.Get(ctx, deckVersionKey).Int64()
	if err != nil && err != redis.Nil {
		log.Println("deck version get:", err)
	}
	return v
}

func (s *DeckService) bumpVersion(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, deckVersionKey).Err(); err != nil {
		log.Println("deck version bump:", err)
	}
}

// pushAll rebuilds and pushes decks for every connected user. The wave is
// tagged with a generation; if another wave starts before a build finishes,
// the older build's result is dropped instead of overwriting newer data.
func (s *DeckService) pushAll() {
	if s.hub == nil {
		return
	}
	gen := s.generation.Add(1)
	for _, userID := range s.hub.ConnectedUsers() {
		go func(uid string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			deck, err := s.Build(ctx, uid)
			if err != nil {
				if err != errIncompleteProfile {
					log.Println("deck rebuild for", uid, "failed:", err)
				}
				return
			}
			if s.generation.Load() != gen {
				deckStaleDropsTotal.Inc()
				return
			}
			s.hub.SendToUser(uid, ServerEvent{Type: "deck", Data: deck})
		}(userID)
	}
}

// Stop cancels any pending rebuild wave.
func (s *DeckService) Stop() {
	s.rebuild.Stop()
}

// deckHandler serves GET /deck for the authenticated user.
func deckHandler(svc *DeckService) http.HandlerFunc {
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

		deck, err := svc.BuildCached(r.Context(), userID)
		switch {
		case errors.Is(err, errIncompleteProfile):
			writeError(w, http.StatusForbidden, "incomplete_profile")
			return
		case errors.Is(err, errStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "store_unavailable")
			return
		case err != nil:
			log.Println("deck build:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		writeJSON(w, http.StatusOK, deck)
	}
}
