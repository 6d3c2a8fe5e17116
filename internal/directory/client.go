// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds each directory request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is used by Search when maxResults is not positive.
	DefaultMaxResults = 5

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// The client carries no Timeout of its own; each request is bounded by the
// Client's per-request timeout and the caller's context.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the non-streaming endpoints of the chat service.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client for the service rooted at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  sharedHTTPClient,
		timeout: DefaultTimeout,
	}
}

// WithHTTPClient sets the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

// WithTimeout sets the per-request timeout. Zero leaves only the caller's
// context in control.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d >= 0 {
		c.timeout = d
	}
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	return c
}

// BaseURL returns the configured service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// List returns the stored conversation summaries.
func (c *Client) List(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Messages returns the full message list of conversation id.
func (c *Client) Messages(ctx context.Context, id string) ([]model.ChatMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty conversation id", ErrRequest)
	}
	var msgs []model.ChatMessage
	path := "/conversations/" + url.PathEscape(id) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Delete removes conversation id. Any 2xx answer counts as success.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty conversation id", ErrRequest)
	}
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

// =============================================================================
// SEARCH / CONTROL
// =============================================================================

// searchRequest is the body of POST /search.
type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Search runs a web search through the service.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrRequest)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	var results []model.SearchResult
	if err := c.do(ctx, http.MethodPost, "/search", searchRequest{Query: query, MaxResults: maxResults}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Interrupt asks the service to stop the server-side stream streamID.
func (c *Client) Interrupt(ctx context.Context, streamID string) error {
	if streamID == "" {
		return fmt.Errorf("%w: empty stream id", ErrRequest)
	}
	return c.do(ctx, http.MethodPost, "/chat/interrupt/"+url.PathEscape(streamID), nil, nil)
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp model.Timestamp `json:"timestamp"`
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, &hs)
	return hs, err
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do sends one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON answer.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log().Debug("directory request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	c.log().Debug("directory request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to parse response: %w", method, path, err)
	}
	return nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}
