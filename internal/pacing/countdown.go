package pacing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FormatCountdown renders d as HH:MM:SS, rounding partial seconds down.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Countdown publishes the remaining time once per second through onTick.
// It is independent of the wait it describes; call Stop when that wait ends.
type Countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func StartCountdown(ctx context.Context, total time.Duration, onTick func(string)) *Countdown {
	cctx, cancel := context.WithCancel(ctx)
	c := &Countdown{cancel: cancel, done: make(chan struct{})}
	if onTick == nil {
		close(c.done)
		return c
	}

	go func() {
		defer close(c.done)
		remaining := total
		onTick(FormatCountdown(remaining))
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for remaining > 0 {
			select {
			case <-cctx.Done():
				return
			case <-ticker.C:
				remaining -= time.Second
				onTick(FormatCountdown(remaining))
			}
		}
	}()
	return c
}

// Stop ends the ticker goroutine and waits for it to exit. Safe to call twice.
func (c *Countdown) Stop() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
}
