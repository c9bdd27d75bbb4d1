package deployment

import (
	"context"
	"time"
)

// MaxBackoff caps a single retry delay
const MaxBackoff = 5 * time.Minute

// maxShift keeps 2^n seconds inside time.Duration
const maxShift = 30

// Backoff returns the delay before the retry that follows attempt
// attemptIndex (0-based): 1s, 2s, 4s, ... capped at MaxBackoff
func Backoff(attemptIndex int) time.Duration {
	shift := min(max(attemptIndex, 0), maxShift)
	return min(time.Duration(1<<shift)*time.Second, MaxBackoff)
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
