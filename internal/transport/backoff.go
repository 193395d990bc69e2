package transport

import (
	"context"
	"time"
)

const (
	minRetryDelay = 5 * time.Millisecond
	maxRetryDelay = time.Second
)

// Backoff paces a read loop over repeated transport errors. The delay
// doubles after every failure up to a ceiling and resets on success.
type Backoff struct {
	delay time.Duration
}

// Wait sleeps for the current delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) {
	if b.delay == 0 {
		b.delay = minRetryDelay
	}
	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	b.delay = min(2*b.delay, maxRetryDelay)
}

func (b *Backoff) Reset() {
	b.delay = 0
}

// Delay is the wait the next failure will incur.
func (b *Backoff) Delay() time.Duration {
	if b.delay == 0 {
		return minRetryDelay
	}
	return b.delay
}
