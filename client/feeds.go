package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/glean-reader/feed-refresh-agent/cache"
	"github.com/glean-reader/feed-refresh-agent/monitoring"
	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/sirupsen/logrus"
)

// ListOptions selects one page of the feed list.
type ListOptions struct {
	Page     int
	PageSize int
}

func (o ListOptions) normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 100
	}
	return o
}

func (o ListOptions) cacheKey() string {
	return fmt.Sprintf("feeds:page:%d:size:%d", o.Page, o.PageSize)
}

// ListFeeds fetches one page of GET /feeds. Fresh cached pages are served
// locally; stale ones are revalidated with If-None-Match.
func (c *Client) ListFeeds(ctx context.Context, opts ListOptions) (*types.FeedPage, error) {
	opts = opts.normalize()
	key := opts.cacheKey()

	if c.feedCache != nil {
		if entry, ok := c.feedCache.Get(key); ok {
			monitoring.RecordCacheHit("list_feeds")
			return pageFromEntry(entry, opts), nil
		}
		monitoring.RecordCacheMiss("list_feeds")
	}

	header := http.Header{}
	var stale *cache.Entry
	if c.feedCache != nil {
		if entry, ok := c.feedCache.GetStale(key); ok && entry.ETag != "" {
			header.Set("If-None-Match", entry.ETag)
			stale = entry
		}
	}

	query := url.Values{}
	query.Set("page", fmt.Sprintf("%d", opts.Page))
	query.Set("page_size", fmt.Sprintf("%d", opts.PageSize))

	resp, err := c.get(ctx, "list_feeds", "/feeds?"+query.Encode(), header)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		resp.Body.Close()
		c.feedCache.Revalidate(key)
		c.logger.WithField("page", opts.Page).Debug("Feed list revalidated via ETag")
		return pageFromEntry(stale, opts), nil
	}

	etag := resp.Header.Get("ETag")
	var page types.FeedPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, err
	}

	if c.feedCache != nil {
		c.feedCache.Set(key, page.Items, page.TotalCount, etag)
	}

	c.logger.WithFields(logrus.Fields{
		"page":        page.Page,
		"page_size":   page.PageSize,
		"items_count": len(page.Items),
		"total_count": page.TotalCount,
	}).Debug("Feed list fetched")

	return &page, nil
}

func pageFromEntry(entry *cache.Entry, opts ListOptions) *types.FeedPage {
	return &types.FeedPage{
		Items:      entry.Feeds,
		TotalCount: entry.TotalCount,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
	}
}

// ListAllFeeds walks every page of the feed list.
func (c *Client) ListAllFeeds(ctx context.Context) ([]*types.Feed, error) {
	var all []*types.Feed
	opts := ListOptions{Page: 1, PageSize: 100}

	for {
		page, err := c.ListFeeds(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(page.Items) < opts.PageSize || len(all) >= page.TotalCount {
			return all, nil
		}
		opts.Page++
	}
}

// RefreshFeed queues a refresh job for one feed.
func (c *Client) RefreshFeed(ctx context.Context, feedID string) (*types.RefreshQueued, error) {
	resp, err := c.post(ctx, "refresh_feed", "/feeds/"+url.PathEscape(feedID)+"/refresh", nil)
	if err != nil {
		return nil, err
	}
	var queued types.RefreshQueued
	if err := decodeJSON(resp, &queued); err != nil {
		return nil, err
	}
	return &queued, nil
}

// RefreshAll queues refresh jobs for every feed.
func (c *Client) RefreshAll(ctx context.Context) (*types.RefreshBatchResult, error) {
	return c.refreshBatch(ctx, "refresh_all", "/feeds/refresh/all")
}

// RefreshErrored queues refresh jobs for feeds currently in error state.
func (c *Client) RefreshErrored(ctx context.Context) (*types.RefreshBatchResult, error) {
	return c.refreshBatch(ctx, "refresh_errored", "/feeds/refresh/errored")
}

func (c *Client) refreshBatch(ctx context.Context, endpoint, path string) (*types.RefreshBatchResult, error) {
	resp, err := c.post(ctx, endpoint, path, nil)
	if err != nil {
		return nil, err
	}
	var result types.RefreshBatchResult
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefreshStatus polls the backend for the status of the given jobs in one
// batched request.
func (c *Client) RefreshStatus(ctx context.Context, keys []types.RefreshStatusKey) ([]types.RefreshStatusItem, error) {
	resp, err := c.post(ctx, "refresh_status", "/feeds/refresh/status", types.RefreshStatusRequest{Items: keys})
	if err != nil {
		return nil, err
	}
	var result types.RefreshStatusResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

// ResetFeedError clears a feed's accumulated error state.
func (c *Client) ResetFeedError(ctx context.Context, feedID string) (*types.Feed, error) {
	resp, err := c.post(ctx, "reset_feed_error", "/feeds/"+url.PathEscape(feedID)+"/reset-error", nil)
	if err != nil {
		return nil, err
	}
	var feed types.Feed
	if err := decodeJSON(resp, &feed); err != nil {
		return nil, err
	}
	c.invalidateFeedCache()
	return &feed, nil
}

// UpdateFeed patches feed metadata.
func (c *Client) UpdateFeed(ctx context.Context, feedID string, patch types.UpdateFeedRequest) (*types.Feed, error) {
	resp, err := c.patch(ctx, "update_feed", "/feeds/"+url.PathEscape(feedID), patch)
	if err != nil {
		return nil, err
	}
	var feed types.Feed
	if err := decodeJSON(resp, &feed); err != nil {
		return nil, err
	}
	c.invalidateFeedCache()
	return &feed, nil
}

// DeleteFeed removes a feed.
func (c *Client) DeleteFeed(ctx context.Context, feedID string) error {
	resp, err := c.delete(ctx, "delete_feed", "/feeds/"+url.PathEscape(feedID))
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return err
	}
	c.invalidateFeedCache()
	return nil
}

// BatchCreateFeeds submits a set of feed URLs for creation.
func (c *Client) BatchCreateFeeds(ctx context.Context, urls []string) (*types.BatchCreateFeedsResult, error) {
	resp, err := c.post(ctx, "batch_create_feeds", "/feeds/batch", types.BatchCreateFeedsRequest{URLs: urls})
	if err != nil {
		return nil, err
	}
	var result types.BatchCreateFeedsResult
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	c.invalidateFeedCache()
	return &result, nil
}

// InvalidateFeedCache drops all cached feed-list pages.
func (c *Client) InvalidateFeedCache() {
	c.invalidateFeedCache()
}

func (c *Client) invalidateFeedCache() {
	if c.feedCache != nil {
		c.feedCache.Clear()
	}
}
