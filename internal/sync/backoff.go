package sync

import (
	"context"
	"time"
)

// BackoffDelay returns min(base * 2^retry, maxDelay). retry counts the
// failures already seen in a row, starting at zero.
func BackoffDelay(base, maxDelay time.Duration, retry int) time.Duration {
	if base <= 0 || base >= maxDelay {
		return maxDelay
	}

	d := base
	for range retry {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}

	return d
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Engine.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
