package rate

import (
	"context"
	"fmt"
	"time"
)

// WindowStore is a fixed-window counter, typically Redis INCR+EXPIRE.
type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// KeyFunc derives the window key for a user.
type KeyFunc func(userID uint64) string

// Limiter enforces a minimum spacing between a user's state-mutating calls.
// One event per interval is allowed; excess events are rejected with a
// retry-after hint. This is the only serialization the core provides, which
// keeps overlapping mutations from the same user rare enough to tolerate.
type Limiter struct {
	store    WindowStore
	keyFor   KeyFunc
	interval time.Duration
}

func NewLimiter(store WindowStore, keyFor KeyFunc, interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Limiter{store: store, keyFor: keyFor, interval: interval}
}

// Allow reports whether the user may proceed. When denied, retryAfterSec
// carries the remaining window, rounded up to a full second.
func (l *Limiter) Allow(ctx context.Context, userID uint64) (retryAfterSec int64, ok bool, err error) {
	if userID == 0 {
		return 0, false, fmt.Errorf("invalid user id")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, l.keyFor(userID), l.interval)
	if err != nil {
		return 0, false, err
	}
	if count > 1 {
		return ceilSeconds(ttl), false, nil
	}
	return 0, true, nil
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
