package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glean-reader/feed-refresh-agent/cache"
	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testClient(t *testing.T, handler http.Handler, ttl time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	feedCache := cache.NewFeedListCache(ttl, quietLogger())
	return New(server.URL, "test-token", 5*time.Second, quietLogger(), feedCache), server
}

func feedListHandler(hits *atomic.Int64, etag string) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/feeds", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		json.NewEncoder(w).Encode(types.FeedPage{
			Items:      []*types.Feed{{ID: "feed-1", URL: "https://example.com/rss", Title: "Example"}},
			TotalCount: 1,
			Page:       1,
			PageSize:   100,
		})
	}).Methods("GET")
	return router
}

func TestListFeedsCachesFreshPages(t *testing.T) {
	var hits atomic.Int64
	client, _ := testClient(t, feedListHandler(&hits, `"v1"`), time.Minute)

	page, err := client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "feed-1", page.Items[0].ID)

	// Second call is served from the local cache
	page, err = client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, int64(1), hits.Load())
}

func TestListFeedsRevalidatesWithETag(t *testing.T) {
	var hits atomic.Int64
	client, _ := testClient(t, feedListHandler(&hits, `"v1"`), 20*time.Millisecond)

	_, err := client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)

	// Entry goes stale; the next call must revalidate and get a 304
	time.Sleep(30 * time.Millisecond)

	page, err := client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Example", page.Items[0].Title)
	assert.Equal(t, int64(2), hits.Load())

	// Revalidation refreshed the entry, so this call stays local
	_, err = client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestListFeedsDistinctPagesCachedSeparately(t *testing.T) {
	router := mux.NewRouter()
	var hits atomic.Int64
	router.HandleFunc("/feeds", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(types.FeedPage{Page: 1, PageSize: 2})
	}).Methods("GET")
	client, _ := testClient(t, router, time.Minute)

	_, err := client.ListFeeds(context.Background(), ListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	_, err = client.ListFeeds(context.Background(), ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
}

func TestRefreshFeed(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds/{feedId}/refresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(types.RefreshQueued{
			Status: "queued",
			FeedID: mux.Vars(r)["feedId"],
			JobID:  "job-42",
		})
	}).Methods("POST")
	client, _ := testClient(t, router, time.Minute)

	queued, err := client.RefreshFeed(context.Background(), "feed-1")

	require.NoError(t, err)
	assert.Equal(t, "feed-1", queued.FeedID)
	assert.Equal(t, "job-42", queued.JobID)
}

func TestRefreshFeedNotFound(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds/{feedId}/refresh", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"feed not found"}`, http.StatusNotFound)
	}).Methods("POST")
	client, _ := testClient(t, router, time.Minute)

	_, err := client.RefreshFeed(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRefreshStatusSendsTrackedKeys(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds/refresh/status", func(w http.ResponseWriter, r *http.Request) {
		var req types.RefreshStatusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Items, 2)

		items := make([]types.RefreshStatusItem, 0, len(req.Items))
		for _, key := range req.Items {
			items = append(items, types.RefreshStatusItem{
				FeedID: key.FeedID,
				JobID:  key.JobID,
				Status: types.JobInProgress,
			})
		}
		json.NewEncoder(w).Encode(types.RefreshStatusResponse{Items: items})
	}).Methods("POST")
	client, _ := testClient(t, router, time.Minute)

	items, err := client.RefreshStatus(context.Background(), []types.RefreshStatusKey{
		{FeedID: "feed-1", JobID: "job-1"},
		{FeedID: "feed-2", JobID: "job-2"},
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, types.JobInProgress, items[0].Status)
}

func TestRefreshAllAndErrored(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds/refresh/all", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.RefreshBatchResult{Status: "queued", QueuedCount: 5})
	}).Methods("POST")
	router.HandleFunc("/feeds/refresh/errored", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.RefreshBatchResult{Status: "queued", QueuedCount: 2})
	}).Methods("POST")
	client, _ := testClient(t, router, time.Minute)

	all, err := client.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, all.QueuedCount)

	errored, err := client.RefreshErrored(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, errored.QueuedCount)
}

func TestUpdateFeedInvalidatesCache(t *testing.T) {
	router := mux.NewRouter()
	var listHits atomic.Int64
	router.HandleFunc("/feeds", func(w http.ResponseWriter, r *http.Request) {
		listHits.Add(1)
		json.NewEncoder(w).Encode(types.FeedPage{Page: 1, PageSize: 100})
	}).Methods("GET")
	router.HandleFunc("/feeds/{feedId}", func(w http.ResponseWriter, r *http.Request) {
		var patch types.UpdateFeedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		require.NotNil(t, patch.Title)
		json.NewEncoder(w).Encode(types.Feed{ID: mux.Vars(r)["feedId"], Title: *patch.Title})
	}).Methods("PATCH")
	client, _ := testClient(t, router, time.Minute)

	_, err := client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)

	title := "Renamed"
	feed, err := client.UpdateFeed(context.Background(), "feed-1", types.UpdateFeedRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", feed.Title)

	// The cached page was dropped by the mutation
	_, err = client.ListFeeds(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), listHits.Load())
}

func TestDeleteFeed(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds/{feedId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")
	client, _ := testClient(t, router, time.Minute)

	err := client.DeleteFeed(context.Background(), "feed-1")

	assert.NoError(t, err)
}

func TestBatchCreateFeeds(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds/batch", func(w http.ResponseWriter, r *http.Request) {
		var req types.BatchCreateFeedsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.URLs, 2)
		json.NewEncoder(w).Encode(types.BatchCreateFeedsResult{
			Created: []*types.Feed{{ID: "feed-new", URL: req.URLs[0]}},
			Skipped: []string{req.URLs[1]},
		})
	}).Methods("POST")
	client, _ := testClient(t, router, time.Minute)

	result, err := client.BatchCreateFeeds(context.Background(), []string{"https://a.example/rss", "https://b.example/rss"})

	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "https://a.example/rss", result.Created[0].URL)
	assert.Equal(t, []string{"https://b.example/rss"}, result.Skipped)
}

func TestClientNetworkError(t *testing.T) {
	feedCache := cache.NewFeedListCache(time.Minute, quietLogger())
	client := New("http://127.0.0.1:1", "", 100*time.Millisecond, quietLogger(), feedCache)

	_, err := client.RefreshFeed(context.Background(), "feed-1")

	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestListAllFeedsWalksPages(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/feeds", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		resp := types.FeedPage{TotalCount: 150, PageSize: 100}
		switch page {
		case "1":
			resp.Page = 1
			for i := 0; i < 100; i++ {
				resp.Items = append(resp.Items, &types.Feed{ID: "feed-a"})
			}
		default:
			resp.Page = 2
			for i := 0; i < 50; i++ {
				resp.Items = append(resp.Items, &types.Feed{ID: "feed-b"})
			}
		}
		json.NewEncoder(w).Encode(resp)
	}).Methods("GET")
	client, _ := testClient(t, router, time.Minute)

	all, err := client.ListAllFeeds(context.Background())

	require.NoError(t, err)
	assert.Len(t, all, 150)
}
