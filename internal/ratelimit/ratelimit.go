// Package ratelimit gates command entry points with a per-user fixed-window
// counter. The first command opens a window; the limit-th command in it is
// the last one allowed; a command after the window elapsed opens a new one.
// Bursts straddling a window boundary can pass up to twice the limit.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Store records one hit in the user's window and returns the window's
// count. Counts stop growing past limit.
type Store interface {
	Hit(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (int, error)
	Reset(ctx context.Context, userID string) error
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func New(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, limit: limit, window: window, now: time.Now}
}

// Allow records a command from userID and reports whether it may run
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, error) {
	count, err := l.store.Hit(ctx, userID, l.now(), l.window, l.limit)
	if err != nil {
		return false, err
	}
	allowed := count <= l.limit
	if !allowed {
		limitedCommands.Inc()
		log.Debug().Str("user_id", userID).Int("count", count).Msg("command rate limited")
	}
	return allowed, nil
}

// Reset forgets the user's current window
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	return l.store.Reset(ctx, userID)
}

// Limit returns the allowed commands per window
func (l *Limiter) Limit() int { return l.limit }

func (l *Limiter) Window() time.Duration { return l.window }
