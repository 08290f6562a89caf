package cache

import (
	"testing"
	"time"

	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(ttl time.Duration) *FeedListCache {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewFeedListCache(ttl, logger)
}

func TestCacheSetAndGet(t *testing.T) {
	c := newTestCache(time.Minute)

	feeds := []*types.Feed{{ID: "feed-1", Title: "Example"}}
	c.Set("feeds:page:1:size:100", feeds, 1, `"v1"`)

	entry, ok := c.Get("feeds:page:1:size:100")
	require.True(t, ok)
	assert.Equal(t, feeds, entry.Feeds)
	assert.Equal(t, 1, entry.TotalCount)
	assert.Equal(t, `"v1"`, entry.ETag)
}

func TestCacheGetMissesExpiredEntries(t *testing.T) {
	c := newTestCache(10 * time.Millisecond)

	c.Set("key", nil, 0, `"v1"`)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCacheGetStaleReturnsExpiredEntries(t *testing.T) {
	c := newTestCache(10 * time.Millisecond)

	c.Set("key", nil, 0, `"v1"`)
	time.Sleep(20 * time.Millisecond)

	entry, ok := c.GetStale("key")
	require.True(t, ok)
	assert.Equal(t, `"v1"`, entry.ETag)
	assert.True(t, entry.IsExpired())
}

func TestCacheRevalidateExtendsLifetime(t *testing.T) {
	c := newTestCache(30 * time.Millisecond)

	c.Set("key", nil, 0, `"v1"`)
	time.Sleep(40 * time.Millisecond)

	require.True(t, c.Revalidate("key"))

	entry, ok := c.Get("key")
	require.True(t, ok)
	assert.False(t, entry.IsExpired())
}

func TestCacheRevalidateUnknownKey(t *testing.T) {
	c := newTestCache(time.Minute)

	assert.False(t, c.Revalidate("missing"))
}

func TestCacheInvalidate(t *testing.T) {
	c := newTestCache(time.Minute)

	c.Set("key", nil, 0, "")
	c.Invalidate("key")

	_, ok := c.GetStale("key")
	assert.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(time.Minute)

	c.Set("key-1", nil, 0, "")
	c.Set("key-2", nil, 0, "")
	c.Clear()

	_, ok1 := c.GetStale("key-1")
	_, ok2 := c.GetStale("key-2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestCacheCleanupRemovesLongExpiredEntries(t *testing.T) {
	c := newTestCache(time.Minute)

	c.Set("old", nil, 0, "")
	c.Set("fresh", nil, 0, "")

	// Backdate one entry past the cleanup horizon
	c.mutex.Lock()
	c.entries["old"].ExpiresAt = time.Now().Add(-2 * time.Hour)
	c.mutex.Unlock()

	c.cleanup()

	_, okOld := c.GetStale("old")
	_, okFresh := c.GetStale("fresh")
	assert.False(t, okOld)
	assert.True(t, okFresh)
}
