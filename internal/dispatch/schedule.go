package dispatch

import (
	"context"
	"iter"
	"time"
)

// Schedule yields the wait before each of maxAttempts attempts.
// The first attempt starts immediately; attempt n+1 waits 2^(n-1) seconds,
// giving 0, 1s, 2s, 4s, ...
func Schedule(maxAttempts int) iter.Seq[time.Duration] {
	return func(yield func(time.Duration) bool) {
		for i := 0; i < maxAttempts; i++ {
			var wait time.Duration
			if i > 0 {
				wait = time.Duration(1<<(i-1)) * time.Second
			}
			if !yield(wait) {
				return
			}
		}
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
