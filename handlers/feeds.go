package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/glean-reader/feed-refresh-agent/client"
	"github.com/glean-reader/feed-refresh-agent/middleware"
	"github.com/glean-reader/feed-refresh-agent/monitoring"
	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/glean-reader/feed-refresh-agent/utils"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

/*
HandleListFeeds proxies the backend's paginated feed list, served from
the agent's local cache when fresh.

Query Parameters:
  - page: 1-based page number (default 1).
  - page_size: items per page (default 100).

Response:
  - 200 OK: {"items": [...], "total_count": N, "page": P, "page_size": S}
  - 400 Bad Request: Non-numeric pagination parameters.
  - 502 Bad Gateway: Backend not reachable.
*/
func (h *Handler) HandleListFeeds(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	opts, err := parseListOptions(r)
	if err != nil {
		middleware.RespondBadRequest(w, err, id)
		return
	}

	ctx, span := monitoring.CreateSpan(r.Context(), "list_feeds")
	defer span.End()

	page, err := h.Feeds.ListFeeds(ctx, opts)
	if err != nil {
		monitoring.SetSpanError(span, err)
		respondBackendError(w, err, id)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"request_id":  id,
		"page":        page.Page,
		"items_count": len(page.Items),
		"action":      "list_feeds",
	}).Info("Feed list served")

	writeJSON(w, http.StatusOK, page)
}

func parseListOptions(r *http.Request) (client.ListOptions, error) {
	var opts client.ListOptions

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return opts, fmt.Errorf("page must be a positive integer")
		}
		opts.Page = page
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return opts, fmt.Errorf("page_size must be a positive integer")
		}
		opts.PageSize = size
	}
	return opts, nil
}

// HandleResetFeedError clears a feed's accumulated error state on the
// backend.
func (h *Handler) HandleResetFeedError(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	feedID := mux.Vars(r)["feedId"]

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"feed_id":    feedID,
		"action":     "reset_feed_error",
	}).Info("Resetting feed error state")

	feed, err := h.Feeds.ResetFeedError(r.Context(), feedID)
	if err != nil {
		respondBackendError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, feed)
}

// HandleUpdateFeed patches feed metadata on the backend.
func (h *Handler) HandleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	feedID := mux.Vars(r)["feedId"]

	var patch types.UpdateFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.RespondBadRequest(w, fmt.Errorf("invalid request body: %w", err), id)
		return
	}

	feed, err := h.Feeds.UpdateFeed(r.Context(), feedID, patch)
	if err != nil {
		respondBackendError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, feed)
}

// HandleDeleteFeed removes a feed from the backend.
func (h *Handler) HandleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	feedID := mux.Vars(r)["feedId"]

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"feed_id":    feedID,
		"action":     "delete_feed",
	}).Info("Deleting feed")

	if err := h.Feeds.DeleteFeed(r.Context(), feedID); err != nil {
		respondBackendError(w, err, id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// batchCreateRequest is the body for POST /feeds/batch.
type batchCreateRequest struct {
	URLs []string `json:"urls"`
}

/*
HandleBatchCreateFeeds submits a set of feed URLs for creation on the
backend.

Response:
  - 200 OK: Per-URL creation outcome from the backend.
  - 400 Bad Request: Missing or empty urls.
*/
func (h *Handler) HandleBatchCreateFeeds(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondBadRequest(w, fmt.Errorf("invalid request body: %w", err), id)
		return
	}
	if len(req.URLs) == 0 {
		middleware.RespondValidationError(w, fmt.Errorf("urls must not be empty"), id)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"url_count":  len(req.URLs),
		"action":     "batch_create_feeds",
	}).Info("Submitting batch feed creation")

	result, err := h.Feeds.BatchCreateFeeds(r.Context(), req.URLs)
	if err != nil {
		respondBackendError(w, err, id)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// previewRequest is the body for POST /feeds/preview.
type previewRequest struct {
	URL string `json:"url"`
}

/*
HandlePreviewFeed fetches and parses a feed URL directly, without touching
the backend, so a feed can be inspected before subscribing.

Response:
  - 200 OK: Parsed feed metadata.
  - 400 Bad Request: Missing url or unparseable feed.
*/
func (h *Handler) HandlePreviewFeed(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondBadRequest(w, fmt.Errorf("invalid request body: %w", err), id)
		return
	}
	if req.URL == "" {
		middleware.RespondValidationError(w, fmt.Errorf("url must not be empty"), id)
		return
	}

	ctx, span := monitoring.CreateSpan(r.Context(), "preview_feed")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{"feed_url": req.URL})

	preview, err := utils.PreviewFeed(ctx, req.URL)
	if err != nil {
		monitoring.SetSpanError(span, err)
		middleware.RespondBadRequest(w, fmt.Errorf("could not parse feed: %w", err), id)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"feed_url":   req.URL,
		"action":     "preview_feed",
	}).Info("Feed preview fetched")

	writeJSON(w, http.StatusOK, preview)
}
