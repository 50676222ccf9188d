package tenant

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/danmuck/avlgate/internal/protocol/avl"
)

const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	route     Route
	expiresAt time.Time
}

// CacheEntryInfo is an admin view of one cached route.
type CacheEntryInfo struct {
	DeviceID    string    `json:"imei"`
	TenantLabel string    `json:"tenant"`
	UnitLabel   string    `json:"unit"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Cache holds resolved routes until a fixed time after insertion, regardless of use.
type Cache struct {
	clock quartz.Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[avl.Identity]cacheEntry
}

// NewCache returns a cache whose entries expire ttl after insertion. A nil
// clock uses the real clock.
func NewCache(clock quartz.Clock, ttl time.Duration) *Cache {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[avl.Identity]cacheEntry),
	}
}

// Get returns a live entry. Expired entries are removed on read.
func (c *Cache) Get(id avl.Identity) (Route, bool) {
	now := c.clock.Now()
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[id]; ok && !now.Before(cur.expiresAt) {
			delete(c.entries, id)
		}
		c.mu.Unlock()
		return Route{}, false
	}
	return entry.route, true
}

// Put stores route, restarting its TTL.
func (c *Cache) Put(route Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[route.DeviceID] = cacheEntry{
		route:     route,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

// Sweep drops every expired entry and reports how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len counts entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Delete drops the entry for id so the next handshake hits the registry.
func (c *Cache) Delete(id avl.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	return ok
}

// TTL returns the fixed entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Snapshot lists entries ordered by IMEI without credentials.
func (c *Cache) Snapshot() []CacheEntryInfo {
	c.mu.RLock()
	out := make([]CacheEntryInfo, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, CacheEntryInfo{
			DeviceID:    entry.route.DeviceID.String(),
			TenantLabel: entry.route.TenantLabel,
			UnitLabel:   entry.route.UnitLabel,
			ExpiresAt:   entry.expiresAt,
		})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = c.ttl
	}
	w := c.clock.TickerFunc(ctx, interval, func() error {
		c.Sweep()
		return nil
	}, "tenant", "sweep")
	if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
