package matcher

import (
	"math"
	"sort"
)

// MatchThreshold is the minimum cosine similarity for the matched pool.
const MatchThreshold = 0.2

// Scored is a candidate that cleared the threshold, with its similarity.
type Scored struct {
	ID    string
	Score float64
}

// Ranking partitions the candidate pool. Matched is ordered by score
// descending, ties broken by ID so output is stable. Other holds candidates
// that passed the hard filters but scored below the threshold.
type Ranking struct {
	Matched []Scored
	Other   []string
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector has
// zero magnitude (all-missing profiles must not divide by zero).
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		magA += v * v
	}
	for _, v := range b {
		magB += v * v
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func equalField(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// passesHardFilter reports whether a candidate is admissible at all:
// gender, diet and university must match the actor's exactly. A mismatch on
// any of them excludes the candidate from both pools.
func passesHardFilter(actor, candidate *Attributes) bool {
	return equalField(actor.Gender, candidate.Gender) &&
		equalField(actor.Diet, candidate.Diet) &&
		equalField(actor.University, candidate.University)
}

// Rank scores candidates against the actor and splits them into the matched
// and other pools. Hard-filtered candidates appear in neither.
func Rank(actor *Attributes, candidates []*Attributes) Ranking {
	var out Ranking
	if actor == nil {
		return out
	}
	actorVec := Encode(actor)
	for _, cand := range candidates {
		if cand == nil || !passesHardFilter(actor, cand) {
			continue
		}
		score := CosineSimilarity(actorVec, Encode(cand))
		if score >= MatchThreshold {
			out.Matched = append(out.Matched, Scored{ID: cand.ID, Score: score})
		} else {
			out.Other = append(out.Other, cand.ID)
		}
	}
	sort.Slice(out.Matched, func(i, j int) bool {
		if out.Matched[i].Score != out.Matched[j].Score {
			return out.Matched[i].Score > out.Matched[j].Score
		}
		return out.Matched[i].ID < out.Matched[j].ID
	})
	sort.Strings(out.Other)
	return out
}
