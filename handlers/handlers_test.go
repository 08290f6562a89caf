package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glean-reader/feed-refresh-agent/client"
	"github.com/glean-reader/feed-refresh-agent/middleware"
	"github.com/glean-reader/feed-refresh-agent/refresh"
	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	submitOneFn      func(feedID string) (refresh.Job, error)
	submitAllFn      func() (int, error)
	submitErroredFn  func() (int, error)
	submitSelectedFn func(feedIDs []string) ([]string, []string, error)
	jobs             []refresh.Job
	polling          bool
}

func (f *fakeCoordinator) SubmitOne(_ context.Context, feedID string) (refresh.Job, error) {
	if f.submitOneFn != nil {
		return f.submitOneFn(feedID)
	}
	return refresh.Job{FeedID: feedID, JobID: "job-1", Status: types.JobQueued}, nil
}

func (f *fakeCoordinator) SubmitAll(_ context.Context) (int, error) {
	if f.submitAllFn != nil {
		return f.submitAllFn()
	}
	return 0, nil
}

func (f *fakeCoordinator) SubmitErrored(_ context.Context) (int, error) {
	if f.submitErroredFn != nil {
		return f.submitErroredFn()
	}
	return 0, nil
}

func (f *fakeCoordinator) SubmitSelected(_ context.Context, feedIDs []string) ([]string, []string, error) {
	if f.submitSelectedFn != nil {
		return f.submitSelectedFn(feedIDs)
	}
	return feedIDs, nil, nil
}

func (f *fakeCoordinator) Jobs() []refresh.Job { return f.jobs }

func (f *fakeCoordinator) Job(feedID string) (refresh.Job, bool) {
	for _, job := range f.jobs {
		if job.FeedID == feedID {
			return job, true
		}
	}
	return refresh.Job{}, false
}

func (f *fakeCoordinator) Polling() bool { return f.polling }

type fakeFeedService struct {
	listFn   func(opts client.ListOptions) (*types.FeedPage, error)
	resetFn  func(feedID string) (*types.Feed, error)
	updateFn func(feedID string, patch types.UpdateFeedRequest) (*types.Feed, error)
	deleteFn func(feedID string) error
	batchFn  func(urls []string) (*types.BatchCreateFeedsResult, error)
}

func (f *fakeFeedService) ListFeeds(_ context.Context, opts client.ListOptions) (*types.FeedPage, error) {
	if f.listFn != nil {
		return f.listFn(opts)
	}
	return &types.FeedPage{Page: 1, PageSize: 100}, nil
}

func (f *fakeFeedService) ResetFeedError(_ context.Context, feedID string) (*types.Feed, error) {
	if f.resetFn != nil {
		return f.resetFn(feedID)
	}
	return &types.Feed{ID: feedID}, nil
}

func (f *fakeFeedService) UpdateFeed(_ context.Context, feedID string, patch types.UpdateFeedRequest) (*types.Feed, error) {
	if f.updateFn != nil {
		return f.updateFn(feedID, patch)
	}
	return &types.Feed{ID: feedID}, nil
}

func (f *fakeFeedService) DeleteFeed(_ context.Context, feedID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(feedID)
	}
	return nil
}

func (f *fakeFeedService) BatchCreateFeeds(_ context.Context, urls []string) (*types.BatchCreateFeedsResult, error) {
	if f.batchFn != nil {
		return f.batchFn(urls)
	}
	return &types.BatchCreateFeedsResult{}, nil
}

// testRouter mirrors the agent's route table without the middleware chain.
func testRouter(coordinator CoordinatorInterface, feeds FeedServiceInterface) *mux.Router {
	if middleware.Logger == nil {
		middleware.InitLogger()
	}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	handler := NewHandler(coordinator, feeds, logger)

	router := mux.NewRouter()
	router.HandleFunc("/feeds", handler.HandleListFeeds).Methods("GET")
	router.HandleFunc("/feeds/batch", handler.HandleBatchCreateFeeds).Methods("POST")
	router.HandleFunc("/feeds/refresh/all", handler.HandleRefreshAll).Methods("POST")
	router.HandleFunc("/feeds/refresh/errored", handler.HandleRefreshErrored).Methods("POST")
	router.HandleFunc("/feeds/refresh/selected", handler.HandleRefreshSelected).Methods("POST")
	router.HandleFunc("/feeds/{feedId}/refresh", handler.HandleRefreshFeed).Methods("POST")
	router.HandleFunc("/feeds/{feedId}/reset-error", handler.HandleResetFeedError).Methods("POST")
	router.HandleFunc("/feeds/{feedId}", handler.HandleUpdateFeed).Methods("PATCH")
	router.HandleFunc("/feeds/{feedId}", handler.HandleDeleteFeed).Methods("DELETE")
	router.HandleFunc("/refresh/jobs", handler.HandleListJobs).Methods("GET")
	router.HandleFunc("/refresh/jobs/{feedId}", handler.HandleGetJob).Methods("GET")
	return router
}

func doRequest(router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRefreshFeed(t *testing.T) {
	router := testRouter(&fakeCoordinator{}, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/feed-1/refresh", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var job refresh.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "feed-1", job.FeedID)
	assert.Equal(t, types.JobQueued, job.Status)
}

func TestHandleRefreshFeedUnknownFeed(t *testing.T) {
	coordinator := &fakeCoordinator{
		submitOneFn: func(string) (refresh.Job, error) {
			return refresh.Job{}, &client.APIError{StatusCode: http.StatusNotFound, Body: "feed not found"}
		},
	}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/missing/refresh", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr middleware.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, middleware.ErrCodeNotFound, apiErr.Error)
}

func TestHandleRefreshFeedBackendDown(t *testing.T) {
	coordinator := &fakeCoordinator{
		submitOneFn: func(string) (refresh.Job, error) {
			return refresh.Job{}, errors.New("backend not reachable")
		},
	}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/feed-1/refresh", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleRefreshAll(t *testing.T) {
	coordinator := &fakeCoordinator{submitAllFn: func() (int, error) { return 7, nil }}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/refresh/all", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 7, result["queued_count"])
}

func TestHandleRefreshErroredDisabled(t *testing.T) {
	coordinator := &fakeCoordinator{
		submitErroredFn: func() (int, error) { return 0, refresh.ErrErroredRefreshDisabled },
	}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/refresh/errored", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleRefreshSelected(t *testing.T) {
	coordinator := &fakeCoordinator{
		submitSelectedFn: func(feedIDs []string) ([]string, []string, error) {
			return feedIDs[:1], feedIDs[1:], nil
		},
	}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/refresh/selected", map[string]any{
		"feed_ids": []string{"feed-1", "feed-2"},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result refreshSelectedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"feed-1"}, result.Submitted)
	assert.Equal(t, []string{"feed-2"}, result.Failed)
}

func TestHandleRefreshSelectedEmptyBody(t *testing.T) {
	router := testRouter(&fakeCoordinator{}, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/refresh/selected", map[string]any{"feed_ids": []string{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRefreshSelectedDisabled(t *testing.T) {
	coordinator := &fakeCoordinator{
		submitSelectedFn: func([]string) ([]string, []string, error) {
			return nil, nil, refresh.ErrBatchDisabled
		},
	}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/refresh/selected", map[string]any{"feed_ids": []string{"feed-1"}})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleListJobs(t *testing.T) {
	coordinator := &fakeCoordinator{
		jobs: []refresh.Job{
			{FeedID: "feed-1", JobID: "job-1", Status: types.JobInProgress},
			{FeedID: "feed-2", JobID: "job-2", Status: types.JobComplete, ResultStatus: types.ResultSuccess},
		},
		polling: true,
	}
	router := testRouter(coordinator, &fakeFeedService{})

	rec := doRequest(router, "GET", "/refresh/jobs", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var list jobListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Jobs, 2)
	assert.True(t, list.Polling)
}

func TestHandleGetJobNotFound(t *testing.T) {
	router := testRouter(&fakeCoordinator{}, &fakeFeedService{})

	rec := doRequest(router, "GET", "/refresh/jobs/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListFeeds(t *testing.T) {
	feeds := &fakeFeedService{
		listFn: func(opts client.ListOptions) (*types.FeedPage, error) {
			assert.Equal(t, 2, opts.Page)
			assert.Equal(t, 50, opts.PageSize)
			return &types.FeedPage{
				Items:      []*types.Feed{{ID: "feed-1"}},
				TotalCount: 51,
				Page:       2,
				PageSize:   50,
			}, nil
		},
	}
	router := testRouter(&fakeCoordinator{}, feeds)

	rec := doRequest(router, "GET", "/feeds?page=2&page_size=50", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var page types.FeedPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 51, page.TotalCount)
}

func TestHandleListFeedsInvalidPagination(t *testing.T) {
	router := testRouter(&fakeCoordinator{}, &fakeFeedService{})

	rec := doRequest(router, "GET", "/feeds?page=zero", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpdateFeed(t *testing.T) {
	feeds := &fakeFeedService{
		updateFn: func(feedID string, patch types.UpdateFeedRequest) (*types.Feed, error) {
			require.NotNil(t, patch.Title)
			return &types.Feed{ID: feedID, Title: *patch.Title}, nil
		},
	}
	router := testRouter(&fakeCoordinator{}, feeds)

	rec := doRequest(router, "PATCH", "/feeds/feed-1", map[string]any{"title": "Renamed"})

	require.Equal(t, http.StatusOK, rec.Code)

	var feed types.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, "Renamed", feed.Title)
}

func TestHandleDeleteFeed(t *testing.T) {
	router := testRouter(&fakeCoordinator{}, &fakeFeedService{})

	rec := doRequest(router, "DELETE", "/feeds/feed-1", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleBatchCreateFeedsValidation(t *testing.T) {
	router := testRouter(&fakeCoordinator{}, &fakeFeedService{})

	rec := doRequest(router, "POST", "/feeds/batch", map[string]any{"urls": []string{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResetFeedError(t *testing.T) {
	feeds := &fakeFeedService{
		resetFn: func(feedID string) (*types.Feed, error) {
			return &types.Feed{ID: feedID, ErrorCount: 0, Status: "active"}, nil
		},
	}
	router := testRouter(&fakeCoordinator{}, feeds)

	rec := doRequest(router, "POST", "/feeds/feed-1/reset-error", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var feed types.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, 0, feed.ErrorCount)
}
