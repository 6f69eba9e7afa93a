package chat

import (
	"context"
	"errors"
	"time"
)

// ErrRetriesExhausted is returned once every reconnection attempt has
// failed.
var ErrRetriesExhausted = errors.New("reconnection attempts exhausted")

// Backoff computes reconnection delays: the initial delay doubles on
// every attempt and is capped at Max.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff yields the schedule 1s, 2s, 4s, 8s, 10s.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     time.Second,
		Max:         10 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before attempt n, where n starts at 0.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial << uint(attempt)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}

// Retry runs fn up to MaxAttempts times, sleeping the backoff delay
// before each try. It stops early on success or context cancellation.
func (b Backoff) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	if lastErr != nil {
		return errors.Join(ErrRetriesExhausted, lastErr)
	}
	return ErrRetriesExhausted
}
