/*
Package refresh implements the client-side feed refresh coordinator: job
submission, the in-memory job status store, the batched status poller,
and settlement detection.
*/
package refresh

import (
	"sort"
	"sync"
	"time"

	"github.com/glean-reader/feed-refresh-agent/monitoring"
	"github.com/glean-reader/feed-refresh-agent/types"
)

// Job tracks one feed refresh request from submission to settlement.
// Fields mirroring the feed's persisted state are refreshed from each
// poll response.
type Job struct {
	FeedID             string             `json:"feed_id"`
	JobID              string             `json:"job_id"`
	FeedTitle          string             `json:"feed_title,omitempty"`
	Status             types.JobStatus    `json:"status"`
	ResultStatus       types.ResultStatus `json:"result_status,omitempty"`
	NewEntries         *int               `json:"new_entries"`
	TotalEntries       *int               `json:"total_entries"`
	Message            string             `json:"message,omitempty"`
	LastFetchAttemptAt *time.Time         `json:"last_fetch_attempt_at"`
	LastFetchSuccessAt *time.Time         `json:"last_fetch_success_at"`
	LastFetchedAt      *time.Time         `json:"last_fetched_at"`
	ErrorCount         int                `json:"error_count"`
	FetchErrorMessage  string             `json:"fetch_error_message,omitempty"`
	SubmittedAt        time.Time          `json:"submitted_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Pending reports whether the job still needs to be polled.
func (j *Job) Pending() bool {
	return j.Status.Pending()
}

// Store is the in-memory job status store, keyed by feed id. At most one
// job is tracked per feed; re-submission overwrites the previous entry.
// Entries are never removed during the session.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewStore creates an empty job status store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Track inserts or overwrites the entry for a feed with a fresh queued
// job. All result fields are cleared.
func (s *Store) Track(feedID, jobID, feedTitle string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		FeedID:      feedID,
		JobID:       jobID,
		FeedTitle:   feedTitle,
		Status:      types.JobQueued,
		SubmittedAt: s.now(),
		UpdatedAt:   s.now(),
	}
	s.jobs[feedID] = job
	s.updatePendingGauge()
	return *job
}

// UpsertMany merges a batched poll response into the store. Items for
// untracked feeds are ignored, as are items whose job id no longer
// matches the tracked entry (a stale response racing a re-submission).
// It reports whether any merged item arrived in the complete state.
func (s *Store) UpsertMany(items []types.RefreshStatusItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	anyComplete := false
	for _, item := range items {
		job, exists := s.jobs[item.FeedID]
		if !exists || job.JobID != item.JobID {
			continue
		}

		wasPending := job.Pending()

		job.Status = item.Status
		job.ResultStatus = item.ResultStatus
		job.NewEntries = item.NewEntries
		job.TotalEntries = item.TotalEntries
		job.Message = item.Message
		job.LastFetchAttemptAt = item.LastFetchAttemptAt
		job.LastFetchSuccessAt = item.LastFetchSuccessAt
		job.LastFetchedAt = item.LastFetchedAt
		job.ErrorCount = item.ErrorCount
		job.FetchErrorMessage = item.FetchErrorMessage
		job.UpdatedAt = s.now()

		if item.Status == types.JobComplete {
			anyComplete = true
		}
		if wasPending && job.Status.Terminal() {
			result := string(job.ResultStatus)
			if result == "" {
				result = string(job.Status)
			}
			monitoring.RecordJobSettled(result)
		}
	}
	s.updatePendingGauge()
	return anyComplete
}

// MarkTimedOut locally errors every pending job submitted before the
// cutoff. Returns the feed ids affected.
func (s *Store) MarkTimedOut(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var timedOut []string
	for feedID, job := range s.jobs {
		if job.Pending() && job.SubmittedAt.Before(cutoff) {
			job.Status = types.JobError
			job.ResultStatus = types.ResultError
			job.Message = "polling timed out"
			job.UpdatedAt = s.now()
			timedOut = append(timedOut, feedID)
			monitoring.RecordJobSettled("poll_timeout")
		}
	}
	if len(timedOut) > 0 {
		s.updatePendingGauge()
	}
	return timedOut
}

// Get returns a copy of the entry for a feed.
func (s *Store) Get(feedID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[feedID]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// Snapshot returns copies of all tracked jobs, freshest first.
func (s *Store) Snapshot() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].FeedID < jobs[j].FeedID
		}
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	return jobs
}

// PendingKeys returns the poll keys for every pending job.
func (s *Store) PendingKeys() []types.RefreshStatusKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []types.RefreshStatusKey
	for _, job := range s.jobs {
		if job.Pending() {
			keys = append(keys, types.RefreshStatusKey{FeedID: job.FeedID, JobID: job.JobID})
		}
	}
	return keys
}

// HasPending reports whether any tracked job is still pending.
func (s *Store) HasPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Pending() {
			return true
		}
	}
	return false
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// updatePendingGauge is called with s.mu held.
func (s *Store) updatePendingGauge() {
	pending := 0
	for _, job := range s.jobs {
		if job.Pending() {
			pending++
		}
	}
	monitoring.UpdatePendingJobs(pending)
}
