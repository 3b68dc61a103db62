package utils

import (
	"context"
	"time"
)

// Sleep on the given clock until the duration passes or the context
// is done.
func SleepWithClock(ctx context.Context, clock Clock,
	duration time.Duration) {
	if duration <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-clock.After(duration):
	}
}
