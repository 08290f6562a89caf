// Package types contains shared types used across the feed refresh agent
package types

import (
	"time"
)

// JobStatus is the lifecycle state of a refresh job as reported by the
// backend job system. Values are case-sensitive wire strings.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobDeferred   JobStatus = "deferred"
	JobInProgress JobStatus = "in_progress"
	JobComplete   JobStatus = "complete"
	JobNotFound   JobStatus = "not_found"

	// JobError is assigned locally when polling gives up on a job.
	// The backend never sends this value.
	JobError JobStatus = "error"
)

// Pending reports whether the job still needs to be polled.
func (s JobStatus) Pending() bool {
	switch s {
	case JobQueued, JobDeferred, JobInProgress:
		return true
	}
	return false
}

// Terminal reports whether the job has reached a final state.
func (s JobStatus) Terminal() bool {
	return !s.Pending()
}

// ResultStatus is the outcome of a terminal refresh job.
type ResultStatus string

const (
	ResultSuccess     ResultStatus = "success"
	ResultNotModified ResultStatus = "not_modified"
	ResultError       ResultStatus = "error"
)

// Feed mirrors the backend feed row as served by GET /feeds.
type Feed struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	Title              string     `json:"title,omitempty"`
	SiteURL            string     `json:"site_url,omitempty"`
	Description        string     `json:"description,omitempty"`
	IconURL            string     `json:"icon_url,omitempty"`
	Language           string     `json:"language,omitempty"`
	Status             string     `json:"status"`
	ErrorCount         int        `json:"error_count"`
	FetchErrorMessage  string     `json:"fetch_error_message,omitempty"`
	SubscriberCount    int        `json:"subscriber_count,omitempty"`
	LastFetchAttemptAt *time.Time `json:"last_fetch_attempt_at"`
	LastFetchSuccessAt *time.Time `json:"last_fetch_success_at"`
	LastFetchedAt      *time.Time `json:"last_fetched_at"`
	LastEntryAt        *time.Time `json:"last_entry_at"`
	CreatedAt          time.Time  `json:"created_at"`
}

// FeedPage is one page of the paginated feed list.
type FeedPage struct {
	Items      []*Feed `json:"items"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}

// RefreshQueued is the response to a single-feed refresh submission.
type RefreshQueued struct {
	Status    string `json:"status"`
	FeedID    string `json:"feed_id"`
	JobID     string `json:"job_id"`
	FeedTitle string `json:"feed_title,omitempty"`
}

// RefreshBatchResult is the response to refresh-all / refresh-errored.
type RefreshBatchResult struct {
	Status      string          `json:"status"`
	QueuedCount int             `json:"queued_count"`
	Jobs        []RefreshQueued `json:"jobs"`
}

// RefreshStatusKey identifies one outstanding job in a status poll.
type RefreshStatusKey struct {
	FeedID string `json:"feed_id"`
	JobID  string `json:"job_id"`
}

// RefreshStatusRequest is the body of POST /feeds/refresh/status.
type RefreshStatusRequest struct {
	Items []RefreshStatusKey `json:"items"`
}

// RefreshStatusItem is one entry of a batched status poll response.
// The timestamp and error-count fields mirror the feed's persisted state
// at poll time.
type RefreshStatusItem struct {
	FeedID             string       `json:"feed_id"`
	JobID              string       `json:"job_id"`
	Status             JobStatus    `json:"status"`
	ResultStatus       ResultStatus `json:"result_status,omitempty"`
	NewEntries         *int         `json:"new_entries"`
	TotalEntries       *int         `json:"total_entries"`
	Message            string       `json:"message,omitempty"`
	LastFetchAttemptAt *time.Time   `json:"last_fetch_attempt_at"`
	LastFetchSuccessAt *time.Time   `json:"last_fetch_success_at"`
	LastFetchedAt      *time.Time   `json:"last_fetched_at"`
	ErrorCount         int          `json:"error_count"`
	FetchErrorMessage  string       `json:"fetch_error_message,omitempty"`
}

// RefreshStatusResponse is the response of POST /feeds/refresh/status.
type RefreshStatusResponse struct {
	Items []RefreshStatusItem `json:"items"`
}

// UpdateFeedRequest is the body of PATCH /feeds/{feedId}. Nil fields are
// left unchanged by the backend.
type UpdateFeedRequest struct {
	Title       *string `json:"title,omitempty"`
	SiteURL     *string `json:"site_url,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// BatchCreateFeedsRequest is the body of POST /feeds/batch.
type BatchCreateFeedsRequest struct {
	URLs []string `json:"urls"`
}

// BatchCreateFeedsResult reports per-URL outcomes of a batch create.
type BatchCreateFeedsResult struct {
	Created []*Feed  `json:"created"`
	Skipped []string `json:"skipped,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}
