// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/stream"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPrefix is the path prefix all routes are mounted under.
	DefaultPrefix = "/api"

	// DefaultAddr is the listen address of the mock-server command.
	DefaultAddr = "127.0.0.1:8000"

	// MaxRequestSize bounds request bodies.
	// SECURITY: Prevents memory exhaustion from oversized bodies.
	MaxRequestSize = 1 << 20

	// healthTimeLayout matches the zone-less ISO timestamps of the real
	// service.
	healthTimeLayout = "2006-01-02T15:04:05.000000"
)

// errInterrupted is the cancel cause of a stream stopped through the
// interrupt endpoint.
var errInterrupted = errors.New("stream interrupted")

// ============================================================================
// SERVER
// ============================================================================

// Server is a scripted chat service.
type Server struct {
	prefix     string
	store      *Store
	replier    Replier
	searcher   Searcher
	chunkDelay time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu      sync.Mutex
	streams map[string]context.CancelCauseFunc
	server  *http.Server
}

// New creates a server that echoes messages back.
func New() *Server {
	return &Server{
		prefix:   DefaultPrefix,
		store:    NewStore(),
		replier:  EchoReplier(DefaultChunkRunes),
		searcher: FixtureSearcher,
		streams:  make(map[string]context.CancelCauseFunc),
	}
}

// WithPrefix sets the route prefix. An empty prefix mounts routes at the root.
func (s *Server) WithPrefix(prefix string) *Server {
	s.prefix = "/" + strings.Trim(prefix, "/")
	if s.prefix == "/" {
		s.prefix = ""
	}
	return s
}

// WithReplier sets how chat messages are answered.
func (s *Server) WithReplier(r Replier) *Server {
	if r != nil {
		s.replier = r
	}
	return s
}

// WithSearcher sets how search requests are answered.
func (s *Server) WithSearcher(fn Searcher) *Server {
	if fn != nil {
		s.searcher = fn
	}
	return s
}

// WithChunkDelay sets the pause before each streamed fragment.
func (s *Server) WithChunkDelay(d time.Duration) *Server {
	s.chunkDelay = d
	return s
}

// WithRateLimit limits requests per second across all clients. Zero
// disables limiting.
func (s *Server) WithRateLimit(perSecond float64, burst int) *Server {
	if perSecond <= 0 {
		s.limiter = nil
		return s
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	return s
}

// WithLogger sets the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// Store returns the conversation store.
func (s *Server) Store() *Store {
	return s.store
}

// Prefix returns the route prefix.
func (s *Server) Prefix() string {
	return s.prefix
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	p := s.prefix
	mux.HandleFunc("POST "+p+stream.StreamPath, s.handleChatStream)
	mux.HandleFunc("POST "+p+"/chat/interrupt/{id}", s.handleInterrupt)
	mux.HandleFunc("GET "+p+"/conversations", s.handleListConversations)
	mux.HandleFunc("GET "+p+"/conversations/{id}/messages", s.handleMessages)
	mux.HandleFunc("DELETE "+p+"/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST "+p+"/search", s.handleSearch)
	mux.HandleFunc("GET "+p+"/health", s.handleHealth)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.log()),
		LoggingMiddleware(s.log()),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter))
	}
	return Chain(middlewares...)(mux)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	s.log().Info("mock server listening", "addr", l.Addr().String(), "prefix", s.prefix)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.interruptAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// ============================================================================
// CHAT STREAM
// ============================================================================

// chatRequest is the body of POST /chat/stream.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UseSearch      bool   `json:"use_search"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Message cannot be empty")
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = s.store.Create(req.Message)
	} else if !s.store.Exists(convID) {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	s.store.Append(convID, model.RoleUser, req.Message)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)
	s.track(convID, cancel)
	defer s.untrack(convID)

	reply := s.replier(req.Message, req.UseSearch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	var sent strings.Builder
	for _, chunk := range reply.Chunks {
		if !s.pause(ctx) {
			break
		}
		if err := sendEvent(w, flusher, stream.Event{Type: stream.EventContent, Content: chunk}); err != nil {
			cancel(err)
			break
		}
		sent.WriteString(chunk)
	}

	if ctx.Err() != nil {
		if sent.Len() > 0 {
			s.store.Append(convID, model.RoleAssistant, sent.String())
		}
		// An interrupted client is still connected and gets a clean end.
		if errors.Is(context.Cause(ctx), errInterrupted) {
			_ = sendEvent(w, flusher, stream.Event{Type: stream.EventDone, ConversationID: convID})
		}
		return
	}

	if reply.Truncate {
		return
	}
	if reply.Err != "" {
		_ = sendEvent(w, flusher, stream.Event{Type: stream.EventError, Error: reply.Err})
		return
	}

	s.store.Append(convID, model.RoleAssistant, sent.String())
	_ = sendEvent(w, flusher, stream.Event{Type: stream.EventDone, ConversationID: convID})
}

// pause waits for the chunk delay. It returns false when ctx ends first.
func (s *Server) pause(ctx context.Context) bool {
	if s.chunkDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.chunkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func sendEvent(w io.Writer, flusher http.Flusher, ev stream.Event) error {
	line, err := stream.FormatLine(ev)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) track(convID string, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.streams[convID]; ok {
		prev(errInterrupted)
	}
	s.streams[convID] = cancel
}

func (s *Server) untrack(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, convID)
}

func (s *Server) interruptAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.streams {
		cancel(errInterrupted)
		delete(s.streams, id)
	}
}

// ActiveStreams returns the number of replies currently streaming.
func (s *Server) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	cancel, ok := s.streams[id]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "No active stream")
		return
	}
	cancel(errInterrupted)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Stream interrupted"})
}

// ============================================================================
// CONVERSATIONS
// ============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.store.Messages(r.PathValue("id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.Delete(id) {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	s.mu.Lock()
	if cancel, ok := s.streams[id]; ok {
		cancel(errInterrupted)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

// ============================================================================
// SEARCH / HEALTH
// ============================================================================

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := searchRequest{MaxResults: 5}
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Query cannot be empty")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 5
	}
	results := s.searcher(req.Query, req.MaxResults)
	if results == nil {
		results = []model.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(healthTimeLayout),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body into v and answers 422 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	// SECURITY: Limit request body size
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.log().Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail answers with the {"detail": ...} error shape of the service.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
