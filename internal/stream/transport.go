// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// StreamPath is appended to the base URL for chat requests.
	StreamPath = "/chat/stream"

	// DefaultReadSize is the buffer size for each body read.
	DefaultReadSize = 4096

	// maxErrorBody caps how much of a non-2xx body is read for the message.
	maxErrorBody = 64 * 1024
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Streaming requests have no client timeout; lifetime is controlled by the
// request context and the optional idle timeout.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// REQUEST / HANDLERS
// =============================================================================

// Request is the body of POST /chat/stream.
type Request struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	UseSearch      bool   `json:"use_search"`
}

// Handlers receive stream callbacks on the stream goroutine, one at a time.
// Nil fields are ignored. A handler racing a concurrent Cancel may see one
// trailing call.
type Handlers struct {
	OnEvent    func(Event)
	OnError    func(error)
	OnComplete func()
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport opens chat streams against one service base URL.
type Transport struct {
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
	readSize    int
	idleTimeout time.Duration
}

// New creates a Transport for the service rooted at baseURL
// (for example "http://localhost:8000/api").
func New(baseURL string) *Transport {
	return &Transport{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   sharedStreamingClient,
		readSize: DefaultReadSize,
	}
}

// WithHTTPClient sets the HTTP client. The client must not have a Timeout
// shorter than the longest expected reply.
func (t *Transport) WithHTTPClient(c *http.Client) *Transport {
	if c != nil {
		t.client = c
	}
	return t
}

// WithLogger sets the logger used for skipped lines and failures.
func (t *Transport) WithLogger(l *slog.Logger) *Transport {
	t.logger = l
	return t
}

// WithReadSize sets the per-read buffer size.
func (t *Transport) WithReadSize(n int) *Transport {
	if n > 0 {
		t.readSize = n
	}
	return t
}

// WithIdleTimeout fails a stream when no bytes arrive for d. Zero disables
// the timeout, leaving a hung connection open until cancelled.
func (t *Transport) WithIdleTimeout(d time.Duration) *Transport {
	if d >= 0 {
		t.idleTimeout = d
	}
	return t
}

// BaseURL returns the configured service base URL.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

func (t *Transport) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// Open starts a stream for req and returns without waiting for the
// response. Handlers run on the stream's own goroutine.
func (t *Transport) Open(ctx context.Context, req Request, h Handlers) *Stream {
	ctx, cancel := context.WithCancelCause(ctx)
	s := &Stream{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, t, req, h)
	return s
}

// do issues the request and returns the response once headers arrive.
func (t *Transport) do(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %w", ErrOpen, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+StreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrOpen, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, data)
	}
	return resp, nil
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is one in-flight reply.
type Stream struct {
	cancelled atomic.Bool
	cancel    context.CancelCauseFunc
	done      chan struct{}
}

// Cancel stops the stream. It is safe to call more than once and from any
// goroutine, including from inside a handler. Lines already buffered are
// dropped. Called from a handler, nothing further is delivered. Called from
// another goroutine, at most one handler call that had already passed the
// cancellation check may still run after Cancel returns.
func (s *Stream) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.cancel(ErrCancelled)
	}
}

// Cancelled reports whether Cancel has been called.
func (s *Stream) Cancelled() bool {
	return s.cancelled.Load()
}

// Done is closed when the stream goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the stream goroutine has exited.
func (s *Stream) Wait() {
	<-s.done
}

func (s *Stream) run(ctx context.Context, t *Transport, req Request, h Handlers) {
	defer close(s.done)
	defer s.cancel(nil)

	logger := t.log()

	var idle *time.Timer
	if t.idleTimeout > 0 {
		idle = time.AfterFunc(t.idleTimeout, func() { s.cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	started := time.Now()
	resp, err := t.do(ctx, req)
	if err != nil {
		s.fail(logger, h, err)
		return
	}
	defer resp.Body.Close()

	logger.Debug("chat stream opened",
		"status", resp.StatusCode,
		"conversation_id", req.ConversationID,
		"use_search", req.UseSearch,
		"latency", time.Since(started))

	var body io.Reader = resp.Body
	if idle != nil {
		idle.Reset(t.idleTimeout)
		body = &idleReader{r: body, timer: idle, d: t.idleTimeout}
	}

	// The decoder holds incomplete multi-byte sequences until the rest
	// arrives. Invalid bytes decode as U+FFFD.
	decoded := transform.NewReader(body, unicode.UTF8.NewDecoder())

	buf := make([]byte, t.readSize)
	var lines LineSplitter
	received := 0

	for {
		if s.cancelled.Load() {
			return
		}

		n, rerr := decoded.Read(buf)
		if n > 0 {
			received += n
			for _, line := range lines.Feed(string(buf[:n])) {
				if !s.dispatch(logger, line, h) {
					return
				}
			}
		}

		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			if rest := lines.Flush(); rest != "" {
				if !s.dispatch(logger, rest, h) {
					return
				}
			}
			if s.cancelled.Load() {
				return
			}
			logger.Debug("chat stream complete", "bytes", received, "duration", time.Since(started))
			if h.OnComplete != nil {
				h.OnComplete()
			}
			return
		}

		if cause := context.Cause(ctx); cause != nil {
			rerr = cause
		}
		s.fail(logger, h, &ReadError{Received: received, Err: rerr})
		return
	}
}

// dispatch parses one line and delivers it. It returns false once the stream
// has been cancelled.
func (s *Stream) dispatch(logger *slog.Logger, line string, h Handlers) bool {
	ev, ok, err := ParseLine(line)
	if !ok {
		return true
	}
	if err != nil {
		logger.Debug("skipping malformed stream line",
			"line", util.TruncateRunes(line, 120),
			"error", err)
		return true
	}
	if s.cancelled.Load() {
		return false
	}
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
	return true
}

func (s *Stream) fail(logger *slog.Logger, h Handlers, err error) {
	if s.cancelled.Load() {
		return
	}
	logger.Warn("chat stream failed", "error", err)
	if h.OnError != nil {
		h.OnError(err)
	}
}

// idleReader resets the idle timer after every read.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	ir.timer.Reset(ir.d)
	return n, err
}
