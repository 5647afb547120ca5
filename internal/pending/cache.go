// Package pending holds in-flight human decisions keyed by id. Entries live
// in an expirable LRU with one TTL per cache.
//
// An entry leaves the cache exactly once: by Take, a committed Claim, or
// expiry. The expiry callback runs only for entries that expired, never for
// ones that were consumed, so a confirm racing its own timeout has one
// winner.
package pending

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a key is missing, consumed or expired
var ErrNotFound = errors.New("pending entry not found")

const (
	stateLive int32 = iota
	stateClaimed
	stateDone
)

type item[V any] struct {
	value V
	state atomic.Int32
	// evicted is set once the LRU has dropped the item
	evicted atomic.Bool
}

// Cache is a TTL-keyed map safe for concurrent use
type Cache[V any] struct {
	name     string
	ttl      time.Duration
	onExpire func(key string, v V)

	// mu makes lookup-and-remove atomic against Set for the same key
	mu  sync.Mutex
	lru *expirable.LRU[string, *item[V]]
}

// New returns an empty cache whose entries live for ttl. onExpire may be
// nil; when set it runs on its own goroutine after an entry times out.
func New[V any](name string, ttl time.Duration, onExpire func(key string, v V)) *Cache[V] {
	c := &Cache[V]{name: name, ttl: ttl, onExpire: onExpire}
	// size 0: no LRU bound, entries only leave by ttl or consumption
	c.lru = expirable.NewLRU[string, *item[V]](0, c.evicted, ttl)
	return c
}

// TTL is the lifetime of every entry
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Set stores v under key, replacing and disarming any previous entry
func (c *Cache[V]) Set(key string, v V) {
	it := &item[V]{value: v}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		old.state.Store(stateDone)
	}
	c.lru.Add(key, it)
	c.gauge()
}

func (c *Cache[V]) Get(key string) (V, bool) {
	it, ok := c.lru.Peek(key)
	if !ok || it.state.Load() != stateLive {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key without running the expiry callback. It reports
// whether a live entry was removed.
func (c *Cache[V]) Delete(key string) bool {
	_, ok := c.Take(key)
	return ok
}

// Take atomically returns and removes the entry. Of any number of
// concurrent Take or Claim calls on one key at most one succeeds.
func (c *Cache[V]) Take(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.lru.Peek(key)
	if !ok || !it.state.CompareAndSwap(stateLive, stateDone) {
		var zero V
		return zero, false
	}
	c.lru.Remove(key)
	c.gauge()
	return it.value, true
}

// Claim reserves the entry for a resolution that may fail. While claimed
// the entry is invisible to Get, Take and other Claims. The caller must
// end the claim with Commit or Release.
func (c *Cache[V]) Claim(key string) (*Claim[V], bool) {
	it, ok := c.lru.Peek(key)
	if !ok || !it.state.CompareAndSwap(stateLive, stateClaimed) {
		return nil, false
	}
	return &Claim[V]{cache: c, key: key, it: it}, true
}

// Claim is a reserved entry
type Claim[V any] struct {
	cache *Cache[V]
	key   string
	it    *item[V]
}

func (cl *Claim[V]) Value() V { return cl.it.value }

// Commit consumes the entry
func (cl *Claim[V]) Commit() {
	if !cl.it.state.CompareAndSwap(stateClaimed, stateDone) {
		return
	}
	c := cl.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.lru.Peek(cl.key); ok && cur == cl.it {
		c.lru.Remove(cl.key)
	}
	c.gauge()
}

// Release hands the entry back with its original deadline. An entry that
// timed out while claimed expires now.
func (cl *Claim[V]) Release() {
	if !cl.it.state.CompareAndSwap(stateClaimed, stateLive) {
		return
	}
	if cl.it.evicted.Load() && cl.it.state.CompareAndSwap(stateLive, stateDone) {
		go cl.cache.notify(cl.key, cl.it.value)
	}
}

// Cleanup removes every entry past its deadline that the background sweep
// has not reached yet and returns how many it removed. Their expiry
// callbacks run asynchronously.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if _, live := c.lru.Peek(key); live {
			continue
		}
		if c.lru.Remove(key) {
			removed++
		}
	}
	c.gauge()
	return removed
}

func (c *Cache[V]) Len() int { return c.lru.Len() }

// evicted is the LRU callback. It runs under the LRU lock for every
// removal, so consumed entries are filtered by state here.
func (c *Cache[V]) evicted(key string, it *item[V]) {
	it.evicted.Store(true)
	if it.state.CompareAndSwap(stateLive, stateDone) {
		go c.notify(key, it.value)
	}
}

func (c *Cache[V]) gauge() {
	pendingEntries.WithLabelValues(c.name).Set(float64(c.lru.Len()))
}

func (c *Cache[V]) notify(key string, v V) {
	log.Debug().Str("cache", c.name).Str("key", key).Msg("pending entry expired")
	c.gauge()
	if c.onExpire == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("cache", c.name).Str("key", key).Msg("pending expiry handler panicked")
		}
	}()
	c.onExpire(key, v)
}
