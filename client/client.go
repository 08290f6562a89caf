/*
Package client provides a typed HTTP client for the Glean feed backend.

The client covers the feed management surface the agent proxies: the
paginated feed list (with ETag revalidation), refresh submission and
batched status polling, and peripheral feed CRUD.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/glean-reader/feed-refresh-agent/cache"
	"github.com/glean-reader/feed-refresh-agent/monitoring"
	"github.com/glean-reader/feed-refresh-agent/utils"
	"github.com/sirupsen/logrus"
)

// APIError is a non-2xx response from the feed backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the Glean feed backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
	feedCache  *cache.FeedListCache
}

// New creates a backend client. feedCache may be nil to disable feed-list
// caching.
func New(baseURL, token string, timeout time.Duration, logger *logrus.Logger, feedCache *cache.FeedListCache) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		feedCache:  feedCache,
	}
}

// do issues one request against the backend. endpoint is the logical
// operation name used as the metrics label, never the raw path.
func (c *Client) do(ctx context.Context, method, endpoint, path string, body any, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", utils.GenerateRequestID())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		monitoring.RecordUpstreamRequest(method, endpoint, "network_error", duration)
		return nil, fmt.Errorf("feed backend not reachable: %w", err)
	}

	monitoring.RecordUpstreamRequest(method, endpoint, fmt.Sprintf("%d", resp.StatusCode), duration)

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Backend request completed")

	return resp, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, header http.Header) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, endpoint, path, nil, header)
}

func (c *Client) post(ctx context.Context, endpoint, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, path, body, nil)
}

func (c *Client) patch(ctx context.Context, endpoint, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPatch, endpoint, path, body, nil)
}

func (c *Client) delete(ctx context.Context, endpoint, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, endpoint, path, nil, nil)
}

// Ping checks backend connectivity with a minimal feed-list request.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "ping", "/feeds?page=1&page_size=1", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// decodeJSON decodes a 2xx response body into v, or returns an *APIError.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
