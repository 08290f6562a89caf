/*
Package handlers provides the agent's HTTP handlers with dependency
injection support.

The Handler struct carries the refresh coordinator and the backend feed
service behind interfaces, so tests can swap either out.
*/
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/glean-reader/feed-refresh-agent/client"
	"github.com/glean-reader/feed-refresh-agent/refresh"
	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/glean-reader/feed-refresh-agent/utils"
	"github.com/sirupsen/logrus"
)

// CoordinatorInterface defines the refresh coordination operations the
// handlers need.
type CoordinatorInterface interface {
	SubmitOne(ctx context.Context, feedID string) (refresh.Job, error)
	SubmitAll(ctx context.Context) (int, error)
	SubmitErrored(ctx context.Context) (int, error)
	SubmitSelected(ctx context.Context, feedIDs []string) (submitted, failed []string, err error)
	Jobs() []refresh.Job
	Job(feedID string) (refresh.Job, bool)
	Polling() bool
}

// FeedServiceInterface defines the backend feed operations the handlers
// proxy.
type FeedServiceInterface interface {
	ListFeeds(ctx context.Context, opts client.ListOptions) (*types.FeedPage, error)
	ResetFeedError(ctx context.Context, feedID string) (*types.Feed, error)
	UpdateFeed(ctx context.Context, feedID string, patch types.UpdateFeedRequest) (*types.Feed, error)
	DeleteFeed(ctx context.Context, feedID string) error
	BatchCreateFeeds(ctx context.Context, urls []string) (*types.BatchCreateFeedsResult, error)
}

// Handler contains all service dependencies for HTTP handlers
type Handler struct {
	Coordinator CoordinatorInterface
	Feeds       FeedServiceInterface
	Logger      *logrus.Logger
}

// NewHandler creates a new handler instance with injected dependencies
func NewHandler(coordinator CoordinatorInterface, feeds FeedServiceInterface, logger *logrus.Logger) *Handler {
	return &Handler{
		Coordinator: coordinator,
		Feeds:       feeds,
		Logger:      logger,
	}
}

// requestID returns the inbound request id, minting one when absent.
func requestID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", id)
	}
	return id
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
