package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"email-automation/internal/rules"
)

// DefaultTTL bounds how long a cached message view stays usable.
const DefaultTTL = 5 * time.Minute

type detailsKey struct {
	id     string
	format string
}

// cachedDetails is one in-memory entry with expiry
type cachedDetails struct {
	email     *rules.MatchableEmail
	expiresAt time.Time
}

// IsExpired checks if the cached entry has expired
func (c *cachedDetails) IsExpired() bool {
	return time.Now().After(c.expiresAt)
}

// DetailsCache holds derived message views keyed by message id and fetch
// format, so rules sharing candidates within a run do not refetch details.
// It is in-memory only and meant to be discarded with the run that built it.
type DetailsCache struct {
	memory   sync.Map // map[detailsKey]*cachedDetails
	disabled bool
	ttl      time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	// Cleanup goroutine control
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDetailsCache creates a details cache. A non-positive ttl falls back to
// DefaultTTL.
func NewDetailsCache(disabled bool, ttl time.Duration) *DetailsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())

	cache := &DetailsCache{
		disabled: disabled,
		ttl:      ttl,
		ctx:      ctx,
		cancel:   cancel,
	}

	if !disabled {
		go cache.cleanupLoop()
	}

	return cache
}

// Get retrieves a cached message view, or nil on a miss.
func (c *DetailsCache) Get(id, format string) *rules.MatchableEmail {
	if c.disabled {
		return nil
	}

	key := detailsKey{id: id, format: format}
	if value, ok := c.memory.Load(key); ok {
		cached := value.(*cachedDetails)
		if !cached.IsExpired() {
			c.hits.Add(1)
			return cached.email
		}
		// Remove expired entry
		c.memory.Delete(key)
	}

	c.misses.Add(1)
	return nil
}

// Set stores a message view under its id and fetch format.
func (c *DetailsCache) Set(id, format string, email *rules.MatchableEmail) {
	if c.disabled || email == nil {
		return
	}

	c.memory.Store(detailsKey{id: id, format: format}, &cachedDetails{
		email:     email,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes one cached view.
func (c *DetailsCache) Delete(id, format string) {
	if c.disabled {
		return
	}
	c.memory.Delete(detailsKey{id: id, format: format})
}

// IsEnabled returns true if caching is enabled
func (c *DetailsCache) IsEnabled() bool {
	return !c.disabled
}

// TTL returns the cache TTL duration
func (c *DetailsCache) TTL() time.Duration {
	return c.ttl
}

// cleanupLoop runs periodically to clean up expired entries
func (c *DetailsCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries
func (c *DetailsCache) cleanup() {
	c.memory.Range(func(key, value interface{}) bool {
		cached := value.(*cachedDetails)
		if cached.IsExpired() {
			c.memory.Delete(key)
		}
		return true
	})
}

// Stats returns cache statistics
func (c *DetailsCache) Stats() Stats {
	stats := Stats{
		Disabled: c.disabled,
		TTL:      c.ttl,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}

	if c.disabled {
		return stats
	}

	c.memory.Range(func(key, value interface{}) bool {
		stats.Entries++
		cached := value.(*cachedDetails)
		if cached.IsExpired() {
			stats.Expired++
		}
		return true
	})

	return stats
}

// Close shuts down the cache and its cleanup goroutine
func (c *DetailsCache) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Stats represents cache statistics
type Stats struct {
	Disabled bool          `json:"disabled"`
	TTL      time.Duration `json:"ttl"`
	Entries  int           `json:"entries"`
	Expired  int           `json:"expired"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
}
