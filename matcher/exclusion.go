package matcher

// ExclusionBatchSize caps how many IDs one candidate query may exclude;
// larger exclusion sets are split into consecutive chunks.
const ExclusionBatchSize = 10

// ExclusionFallbackID is the placeholder used when a user has no decisions
// yet, so candidate queries always have a non-empty exclusion clause.
const ExclusionFallbackID = "fallback"

// BuildExclusionList unions the target IDs of the user's passes and likes.
// An empty union yields the fallback sentinel.
func BuildExclusionList(passes, likes []string) []string {
	seen := make(map[string]struct{}, len(passes)+len(likes))
	out := make([]string, 0, len(passes)+len(likes))
	for _, id := range passes {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range likes {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return []string{ExclusionFallbackID}
	}
	return out
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}

// Excluded reports whether id is in the exclusion set. Candidate queries
// only exclude one chunk at a time, so results are re-checked against the
// full set before ranking.
func Excluded(set []string, id string) bool {
	for _, e := range set {
		if e == id {
			return true
		}
	}
	return false
}
