package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/glean-reader/feed-refresh-agent/client"
	"github.com/glean-reader/feed-refresh-agent/middleware"
	"github.com/glean-reader/feed-refresh-agent/monitoring"
	"github.com/glean-reader/feed-refresh-agent/refresh"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// respondBackendError maps a backend client failure onto the agent's
// structured error responses.
func respondBackendError(w http.ResponseWriter, err error, id string) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		middleware.RespondNotFound(w, err, id)
		return
	}
	middleware.RespondUpstreamError(w, err, id)
}

/*
HandleRefreshFeed queues a refresh job for a single feed.

Example:

	POST /feeds/{feedId}/refresh

Response:
  - 202 Accepted: The queued job entry.
  - 404 Not Found: Unknown feed.
  - 502 Bad Gateway: Backend submission failed.
*/
func (h *Handler) HandleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	feedID := mux.Vars(r)["feedId"]
	if feedID == "" {
		middleware.RespondBadRequest(w, fmt.Errorf("feedId path parameter is missing"), id)
		return
	}

	ctx, span := monitoring.CreateSpan(r.Context(), "refresh_feed")
	defer span.End()

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"feed_id":    feedID,
		"action":     "refresh_feed",
	}).Info("Processing single feed refresh request")

	job, err := h.Coordinator.SubmitOne(ctx, feedID)
	if err != nil {
		monitoring.SetSpanError(span, err)
		respondBackendError(w, err, id)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

/*
HandleRefreshAll queues refresh jobs for every feed.

Example:

	POST /feeds/refresh/all

Response:
  - 202 Accepted: {"queued_count": N}
  - 502 Bad Gateway: Backend submission failed.
*/
func (h *Handler) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	ctx, span := monitoring.CreateSpan(r.Context(), "refresh_all")
	defer span.End()

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"action":     "refresh_all",
	}).Info("Processing refresh-all request")

	count, err := h.Coordinator.SubmitAll(ctx)
	if err != nil {
		monitoring.SetSpanError(span, err)
		respondBackendError(w, err, id)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"queued_count": count})
}

/*
HandleRefreshErrored queues refresh jobs for feeds currently in error
state. Returns 403 when the errored-only action is disabled.
*/
func (h *Handler) HandleRefreshErrored(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	ctx, span := monitoring.CreateSpan(r.Context(), "refresh_errored")
	defer span.End()

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"action":     "refresh_errored",
	}).Info("Processing errored-only refresh request")

	count, err := h.Coordinator.SubmitErrored(ctx)
	if err != nil {
		monitoring.SetSpanError(span, err)
		if errors.Is(err, refresh.ErrErroredRefreshDisabled) {
			middleware.RespondDisabled(w, err, id)
			return
		}
		respondBackendError(w, err, id)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"queued_count": count})
}

// refreshSelectedRequest is the body for POST /feeds/refresh/selected.
type refreshSelectedRequest struct {
	FeedIDs []string `json:"feed_ids"`
}

// refreshSelectedResponse reports the per-feed outcome of a multi-select
// submission.
type refreshSelectedResponse struct {
	Submitted []string `json:"submitted"`
	Failed    []string `json:"failed"`
}

/*
HandleRefreshSelected queues refreshes for a multi-selected set of feeds.
Submission is sequential and best-effort; feeds that fail to queue are
listed in the "failed" field of the response.

Response:
  - 202 Accepted: Per-feed submission outcome.
  - 400 Bad Request: Missing or empty feed_ids.
  - 403 Forbidden: Batch operations are disabled.
*/
func (h *Handler) HandleRefreshSelected(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)

	var req refreshSelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondBadRequest(w, fmt.Errorf("invalid request body: %w", err), id)
		return
	}
	if len(req.FeedIDs) == 0 {
		middleware.RespondValidationError(w, fmt.Errorf("feed_ids must not be empty"), id)
		return
	}

	ctx, span := monitoring.CreateSpan(r.Context(), "refresh_selected")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{"feed_count": len(req.FeedIDs)})

	h.Logger.WithFields(logrus.Fields{
		"request_id": id,
		"feed_count": len(req.FeedIDs),
		"action":     "refresh_selected",
	}).Info("Processing multi-select refresh request")

	submitted, failed, err := h.Coordinator.SubmitSelected(ctx, req.FeedIDs)
	if err != nil {
		monitoring.SetSpanError(span, err)
		if errors.Is(err, refresh.ErrBatchDisabled) {
			middleware.RespondDisabled(w, err, id)
			return
		}
		middleware.RespondInternalError(w, err, id)
		return
	}

	writeJSON(w, http.StatusAccepted, refreshSelectedResponse{
		Submitted: submitted,
		Failed:    failed,
	})
}

// jobListResponse wraps the tracked job snapshot.
type jobListResponse struct {
	Jobs    []refresh.Job `json:"jobs"`
	Polling bool          `json:"polling"`
}

// HandleListJobs returns a snapshot of all tracked refresh jobs, freshest
// first, plus whether the poller is currently active.
func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	requestID(w, r)
	writeJSON(w, http.StatusOK, jobListResponse{
		Jobs:    h.Coordinator.Jobs(),
		Polling: h.Coordinator.Polling(),
	})
}

/*
HandleGetJob returns the tracked refresh job for one feed.

Response:
  - 200 OK: The tracked job entry.
  - 404 Not Found: No job tracked for this feed.
*/
func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id := requestID(w, r)
	feedID := mux.Vars(r)["feedId"]

	job, exists := h.Coordinator.Job(feedID)
	if !exists {
		middleware.RespondNotFound(w, fmt.Errorf("no refresh job tracked for feed %s", feedID), id)
		return
	}

	writeJSON(w, http.StatusOK, job)
}
