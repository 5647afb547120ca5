package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fairguard/backend/internal/database/dbtest"
	"github.com/fairguard/backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "100000000000000001"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"sql":   repository.NewRateLimitRepository(dbtest.New(t)),
		"redis": NewRedisStore(client),
	}
}

func TestFixedWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			l := New(store, 5, time.Minute)
			l.now = c.Now

			for i := 1; i <= 5; i++ {
				ok, err := l.Allow(ctx, user)
				require.NoError(t, err)
				assert.True(t, ok, "command %d", i)
				c.Advance(time.Second)
			}

			ok, err := l.Allow(ctx, user)
			require.NoError(t, err)
			assert.False(t, ok, "sixth command in the window")

			ok, err = l.Allow(ctx, "100000000000000002")
			require.NoError(t, err)
			assert.True(t, ok, "other users have their own window")

			c.Advance(56 * time.Second)
			ok, err = l.Allow(ctx, user)
			require.NoError(t, err)
			assert.True(t, ok, "window elapsed")

			for i := 2; i <= 5; i++ {
				ok, err = l.Allow(ctx, user)
				require.NoError(t, err)
				assert.True(t, ok)
			}
			ok, err = l.Allow(ctx, user)
			require.NoError(t, err)
			assert.False(t, ok, "count restarted at one")
		})
	}
}

func TestReset(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store, 1, time.Minute)

			ok, err := l.Allow(ctx, user)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = l.Allow(ctx, user)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, l.Reset(ctx, user))
			ok, err = l.Allow(ctx, user)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestDeniedCountStaysBounded(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			for i := 0; i < 20; i++ {
				_, err := store.Hit(ctx, user, now, time.Minute, 3)
				require.NoError(t, err)
			}
			n, err := store.Hit(ctx, user, now, time.Minute, 3)
			require.NoError(t, err)
			assert.Equal(t, 4, n)
		})
	}
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := New(store, 5, time.Minute)

			var wg sync.WaitGroup
			var mu sync.Mutex
			allowed := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.Allow(context.Background(), user)
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 5, allowed)
		})
	}
}
