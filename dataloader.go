package main

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"
)

// newProfileLoader coalesces the per-match peer lookups of one request
// into a single batched profile query.
func newProfileLoader(store Store) *dataloader.Loader[string, *Profile] {
	return dataloader.NewBatchedLoader(profileBatchFn(store),
		dataloader.WithWait[string, *Profile](16*time.Millisecond))
}

// profileBatchFn creates a batch function for loading profiles
func profileBatchFn(store Store) dataloader.BatchFunc[string, *Profile] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*Profile] {
		results := make([]*dataloader.Result[*Profile], len(keys))

		profiles, err := store.ProfilesByIDs(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[*Profile]{Error: err}
			}
			return results
		}

		// Results must line up with the requested keys.
		for i, key := range keys {
			if p, ok := profiles[key]; ok {
				results[i] = &dataloader.Result[*Profile]{Data: p}
			} else {
				results[i] = &dataloader.Result[*Profile]{Error: ErrNotFound}
			}
		}
		return results
	}
}
