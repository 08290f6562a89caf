/*
Package cache provides caching for the backend feed list.

The agent keeps recently fetched feed-list pages in memory together with
the ETag the backend returned for them, so list requests can be answered
locally while fresh and revalidated with a conditional GET once stale.
*/
package cache

import (
	"sync"
	"time"

	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/sirupsen/logrus"
)

// Entry is a cached feed-list page with its validator.
type Entry struct {
	Feeds      []*types.Feed `json:"feeds"`
	TotalCount int           `json:"total_count"`
	ETag       string        `json:"etag,omitempty"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// IsExpired checks if the cache entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// FeedListCache is an in-memory cache of feed-list pages with TTL support.
// Expired entries are kept until cleanup so their ETags can still be used
// for conditional revalidation.
type FeedListCache struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewFeedListCache creates a new feed list cache
func NewFeedListCache(ttl time.Duration, logger *logrus.Logger) *FeedListCache {
	c := &FeedListCache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		logger:  logger,
	}

	// Start cleanup goroutine
	go c.startCleanup()

	return c
}

// Get retrieves a fresh (unexpired) entry.
func (c *FeedListCache) Get(key string) (*Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.IsExpired() {
		if c.logger != nil {
			c.logger.WithField("key", key).Debug("Cache miss for feed list")
		}
		return nil, false
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"key":         key,
			"feeds_count": len(entry.Feeds),
		}).Debug("Cache hit for feed list")
	}
	return entry, true
}

// GetStale retrieves an entry even when expired, for ETag revalidation.
func (c *FeedListCache) GetStale(key string) (*Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.entries[key]
	return entry, exists
}

// Set stores a feed-list page together with its ETag.
func (c *FeedListCache) Set(key string, feeds []*types.Feed, totalCount int, etag string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = &Entry{
		Feeds:      feeds,
		TotalCount: totalCount,
		ETag:       etag,
		ExpiresAt:  time.Now().Add(c.ttl),
	}
}

// Revalidate extends the lifetime of an existing entry after the backend
// answered a conditional GET with 304 Not Modified.
func (c *FeedListCache) Revalidate(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return false
	}
	entry.ExpiresAt = time.Now().Add(c.ttl)
	return true
}

// Invalidate removes one entry.
func (c *FeedListCache) Invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries. Called after mutating feed CRUD and after the
// post-completion list refetch.
func (c *FeedListCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*Entry)
}

// startCleanup periodically removes expired entries
func (c *FeedListCache) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

// cleanup removes entries that expired long enough ago that their ETag is
// unlikely to still validate.
func (c *FeedListCache) cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	for key, entry := range c.entries {
		if entry.ExpiresAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}
