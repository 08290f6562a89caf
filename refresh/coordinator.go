package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glean-reader/feed-refresh-agent/monitoring"
	"github.com/glean-reader/feed-refresh-agent/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrBatchDisabled is returned when multi-select submission is not
	// enabled by configuration.
	ErrBatchDisabled = errors.New("batch refresh operations are disabled")

	// ErrErroredRefreshDisabled is returned when the errored-only refresh
	// action is not enabled by configuration.
	ErrErroredRefreshDisabled = errors.New("errored-only refresh is disabled")
)

// FeedAPI is the slice of the backend client the coordinator needs.
type FeedAPI interface {
	RefreshFeed(ctx context.Context, feedID string) (*types.RefreshQueued, error)
	RefreshAll(ctx context.Context) (*types.RefreshBatchResult, error)
	RefreshErrored(ctx context.Context) (*types.RefreshBatchResult, error)
	RefreshStatus(ctx context.Context, keys []types.RefreshStatusKey) ([]types.RefreshStatusItem, error)
}

// RefetchFunc is invoked once per poll response that contains a completed
// job, so the authoritative feed list can be re-fetched.
type RefetchFunc func(ctx context.Context)

// Config parameterizes one coordinator instance. The zero value gets
// usable defaults from withDefaults.
type Config struct {
	// Interval between batched status polls.
	Interval time.Duration
	// MaxPollDuration caps how long a single job is polled before it is
	// locally marked errored. Zero disables the cap.
	MaxPollDuration time.Duration
	// BatchOperations enables multi-select submission.
	BatchOperations bool
	// ErroredRefresh enables the errored-only refresh action.
	ErroredRefresh bool
	// SubmitRate / SubmitBurst bound sequential multi-select submission.
	SubmitRate  rate.Limit
	SubmitBurst int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.SubmitRate <= 0 {
		c.SubmitRate = 10
	}
	if c.SubmitBurst <= 0 {
		c.SubmitBurst = 5
	}
	return c
}

// Coordinator queues feed refresh jobs against the backend and polls
// their status on a fixed interval until every tracked job settles.
// It is owned by a single view (the agent process) and torn down with
// Close on view disposal.
type Coordinator struct {
	cfg     Config
	api     FeedAPI
	store   *Store
	refetch RefetchFunc
	logger  *logrus.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	polling bool
	cancel  context.CancelFunc
	closed  bool

	pollFailures atomic.Int64
}

// NewCoordinator creates a coordinator with its own job status store.
func NewCoordinator(cfg Config, api FeedAPI, refetch RefetchFunc, logger *logrus.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:     cfg,
		api:     api,
		store:   NewStore(),
		refetch: refetch,
		logger:  logger,
		limiter: rate.NewLimiter(cfg.SubmitRate, cfg.SubmitBurst),
	}
}

// SubmitOne queues a refresh for a single feed. The submission error, if
// any, is the caller's to surface.
func (c *Coordinator) SubmitOne(ctx context.Context, feedID string) (Job, error) {
	queued, err := c.api.RefreshFeed(ctx, feedID)
	if err != nil {
		monitoring.RecordSubmission("single", "failed")
		return Job{}, err
	}
	monitoring.RecordSubmission("single", "queued")

	if queued.FeedID == "" {
		queued.FeedID = feedID
	}
	job := c.store.Track(queued.FeedID, queued.JobID, queued.FeedTitle)

	c.logger.WithFields(logrus.Fields{
		"feed_id": job.FeedID,
		"job_id":  job.JobID,
	}).Info("Feed refresh queued")

	c.ensurePolling()
	return job, nil
}

// SubmitAll queues a refresh for every feed and returns the queued count.
func (c *Coordinator) SubmitAll(ctx context.Context) (int, error) {
	result, err := c.api.RefreshAll(ctx)
	if err != nil {
		monitoring.RecordSubmission("all", "failed")
		return 0, err
	}
	monitoring.RecordSubmission("all", "queued")
	return c.trackBatch(result, "all"), nil
}

// SubmitErrored queues a refresh for feeds currently in error state.
func (c *Coordinator) SubmitErrored(ctx context.Context) (int, error) {
	if !c.cfg.ErroredRefresh {
		return 0, ErrErroredRefreshDisabled
	}
	result, err := c.api.RefreshErrored(ctx)
	if err != nil {
		monitoring.RecordSubmission("errored", "failed")
		return 0, err
	}
	monitoring.RecordSubmission("errored", "queued")
	return c.trackBatch(result, "errored"), nil
}

func (c *Coordinator) trackBatch(result *types.RefreshBatchResult, mode string) int {
	for _, queued := range result.Jobs {
		c.store.Track(queued.FeedID, queued.JobID, queued.FeedTitle)
	}

	c.logger.WithFields(logrus.Fields{
		"mode":         mode,
		"queued_count": result.QueuedCount,
		"jobs_tracked": len(result.Jobs),
	}).Info("Batch feed refresh queued")

	c.ensurePolling()
	return result.QueuedCount
}

// SubmitSelected queues refreshes for a multi-selected set of feeds,
// sequentially and best-effort: a failed submission is skipped and the
// loop continues. Returns the feed ids that were queued and those that
// failed.
func (c *Coordinator) SubmitSelected(ctx context.Context, feedIDs []string) (submitted, failed []string, err error) {
	if !c.cfg.BatchOperations {
		return nil, nil, ErrBatchDisabled
	}

	for _, feedID := range feedIDs {
		if err := c.limiter.Wait(ctx); err != nil {
			return submitted, failed, err
		}

		if _, err := c.SubmitOne(ctx, feedID); err != nil {
			// Best-effort semantics: the feed is simply absent from the
			// new job set.
			failed = append(failed, feedID)
			c.logger.WithError(err).WithField("feed_id", feedID).Warn("Skipping feed after failed refresh submission")
			continue
		}
		submitted = append(submitted, feedID)
	}

	return submitted, failed, nil
}

// Jobs returns a snapshot of all tracked jobs, freshest first.
func (c *Coordinator) Jobs() []Job {
	return c.store.Snapshot()
}

// Job returns the tracked entry for one feed.
func (c *Coordinator) Job(feedID string) (Job, bool) {
	return c.store.Get(feedID)
}

// Polling reports whether the poll loop is currently active.
func (c *Coordinator) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polling
}

// ConsecutivePollFailures returns the current run of failed status polls.
func (c *Coordinator) ConsecutivePollFailures() int {
	return int(c.pollFailures.Load())
}

// ensurePolling starts the poll loop if pending jobs exist and no loop is
// running.
func (c *Coordinator) ensurePolling() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.polling || !c.store.HasPending() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.polling = true
	go c.pollLoop(ctx)
}

func (c *Coordinator) pollLoop(ctx context.Context) {
	c.logger.WithField("interval", c.cfg.Interval.String()).Debug("Refresh poller started")

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
			if c.settle() {
				return
			}
		}
	}
}

// tick runs one polling cycle: expire over-age jobs, snapshot the pending
// set, poll the backend once for the whole batch, and merge the response.
func (c *Coordinator) tick(ctx context.Context) {
	if c.cfg.MaxPollDuration > 0 {
		if timedOut := c.store.MarkTimedOut(time.Now().Add(-c.cfg.MaxPollDuration)); len(timedOut) > 0 {
			c.logger.WithFields(logrus.Fields{
				"feed_ids": timedOut,
				"cap":      c.cfg.MaxPollDuration.String(),
			}).Warn("Gave up polling refresh jobs after time cap")
		}
	}

	keys := c.store.PendingKeys()
	if len(keys) == 0 {
		return
	}

	start := time.Now()
	items, err := c.api.RefreshStatus(ctx, keys)
	if err != nil {
		// Poll failures are expected and self-healing: keep the previous
		// state and try again on the next tick.
		c.pollFailures.Add(1)
		monitoring.RecordStatusPoll("failed", time.Since(start).Seconds())
		c.logger.WithError(err).Debug("Refresh status poll failed, retrying next tick")
		return
	}
	c.pollFailures.Store(0)
	monitoring.RecordStatusPoll("success", time.Since(start).Seconds())

	if c.store.UpsertMany(items) {
		// A job completed: re-fetch the authoritative feed list so
		// persisted fields stay consistent with the polled state.
		monitoring.RecordListRefetch()
		if c.refetch != nil {
			c.refetch(ctx)
		}
	}
}

// settle clears the poll loop once no tracked job is pending. Re-checked
// under the coordinator lock so a concurrent submission either sees the
// running loop or restarts it.
func (c *Coordinator) settle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.HasPending() {
		return false
	}

	c.polling = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.logger.Debug("All refresh jobs settled, poller stopped")
	return true
}

// Close tears the coordinator down. In-flight polls are cancelled; the
// job store remains readable.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.polling = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
