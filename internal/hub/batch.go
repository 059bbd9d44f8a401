package hub

import (
	"context"
	"sync"
)

// Each runs fn for every channel concurrently and returns the outcomes in the
// order of channelIDs. One failing channel never stops the others.
func Each[T any](ctx context.Context, channelIDs []string, fn func(ctx context.Context, channelID string) T) []T {
	out := make([]T, len(channelIDs))
	var wg sync.WaitGroup
	for i, id := range channelIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			out[i] = fn(ctx, id)
		}(i, id)
	}
	wg.Wait()
	return out
}

// Failed returns the unsuccessful results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}
