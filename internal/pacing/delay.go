package pacing

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d. It returns ctx.Err() as soon as ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitUntil polls cond every interval until it returns true or ctx is done.
// cond is checked before the first wait.
func WaitUntil(ctx context.Context, sleep SleepFunc, interval time.Duration, cond func() bool) error {
	if sleep == nil {
		sleep = Sleep
	}
	for !cond() {
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
	return ctx.Err()
}
