// Package client is the Go SDK for the BulletDrop analytics API: view
// recording, analytics reads, and passive rate-limit awareness via
// response headers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client talks to the analytics API. Every response's rate-limit
// headers feed the client's Snapshot, which a Monitor can watch.
type Client struct {
	baseURL    string
	httpClient *http.Client
	snapshot   *Snapshot
	token      string
	logger     *slog.Logger
}

type Option func(*Client)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient supplies a custom HTTP client. Its transport is wrapped
// so rate-limit capture keeps working.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		snapshot: NewSnapshot(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	c.httpClient.Transport = NewTransport(c.httpClient.Transport, c.snapshot)
	return c
}

// RateLimit returns the snapshot fed by this client's responses.
func (c *Client) RateLimit() *Snapshot {
	return c.snapshot
}

// RecordFileView reports a file view. Fire-and-forget: the request runs
// in a detached goroutine, outlives ctx cancellation, and failures are
// logged at debug level and dropped. At most one attempt, no retries.
func (c *Client) RecordFileView(ctx context.Context, uploadID int64, event ViewEvent) {
	c.recordView(ctx, ContentFile, uploadID, event)
}

// RecordProfileView reports a profile view with the same best-effort
// contract as RecordFileView.
func (c *Client) RecordProfileView(ctx context.Context, userID int64, event ViewEvent) {
	c.recordView(ctx, ContentProfile, userID, event)
}

func (c *Client) recordView(ctx context.Context, ct ContentType, contentID int64, event ViewEvent) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		path := fmt.Sprintf("/api/analytics/views/%s/%d", ct, contentID)
		if err := c.post(ctx, path, event); err != nil {
			// A missed view is lost by contract; tracking must never
			// degrade the primary experience.
			c.logger.DebugContext(ctx, "view recording failed",
				"content_type", ct,
				"content_id", contentID,
				"error", err,
			)
		}
	}()
}

// Stats fetches the lightweight counters for one piece of content.
func (c *Client) Stats(ctx context.Context, ct ContentType, contentID int64) (*ViewStats, error) {
	var stats ViewStats
	path := fmt.Sprintf("/api/analytics/stats/%s/%d", ct, contentID)
	if err := c.get(ctx, path, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Trending fetches the ranked files and profiles for a window.
func (c *Client) Trending(ctx context.Context, period TimePeriod) (*TrendingContent, error) {
	var trending TrendingContent
	path := "/api/analytics/trending?time_period=" + string(period)
	if err := c.get(ctx, path, &trending); err != nil {
		return nil, err
	}
	return &trending, nil
}

// FileAnalytics fetches the full analytics payload for an upload. The
// server requires the caller to own the upload or be an admin.
func (c *Client) FileAnalytics(ctx context.Context, uploadID int64) (*ViewAnalytics, error) {
	var analytics ViewAnalytics
	path := fmt.Sprintf("/api/analytics/views/file/%d", uploadID)
	if err := c.get(ctx, path, &analytics); err != nil {
		return nil, err
	}
	return &analytics, nil
}

// ProfileAnalytics fetches the full analytics payload for a profile.
func (c *Client) ProfileAnalytics(ctx context.Context, userID int64) (*ViewAnalytics, error) {
	var analytics ViewAnalytics
	path := fmt.Sprintf("/api/analytics/views/profile/%d", userID)
	if err := c.get(ctx, path, &analytics); err != nil {
		return nil, err
	}
	return &analytics, nil
}

// APIError is a non-2xx response from the analytics API.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("analytics api: %s (%s)", e.Code, http.StatusText(e.StatusCode))
	}
	return "analytics api: " + http.StatusText(e.StatusCode)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(apiErr)
		if resp.StatusCode == http.StatusTooManyRequests && apiErr.Message == "" {
			apiErr.Message = "retry after " + resp.Header.Get("Retry-After") + "s"
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
