// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/stream"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Canceler stops an in-flight stream.
type Canceler interface {
	Cancel()
}

// Opener starts a reply stream. Implementations must return immediately and
// deliver handlers on a single goroutine.
type Opener interface {
	Open(ctx context.Context, req stream.Request, h stream.Handlers) Canceler
}

// Directory is the request/response side of the chat service.
type Directory interface {
	List(ctx context.Context) ([]model.Conversation, error)
	Messages(ctx context.Context, id string) ([]model.ChatMessage, error)
	Delete(ctx context.Context, id string) error
}

// transportOpener adapts *stream.Transport to Opener.
type transportOpener struct {
	t *stream.Transport
}

func (o transportOpener) Open(ctx context.Context, req stream.Request, h stream.Handlers) Canceler {
	return o.t.Open(ctx, req, h)
}

// FromTransport wraps t as an Opener.
func FromTransport(t *stream.Transport) Opener {
	return transportOpener{t: t}
}

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("session closed")

// =============================================================================
// CONFIG
// =============================================================================

// Config holds Session settings.
type Config struct {
	// RefreshTimeout bounds the directory refresh that follows a completed
	// reply (default: 10 seconds).
	RefreshTimeout time.Duration

	// Logger receives stream and directory failures. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		RefreshTimeout: 10 * time.Second,
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable view of session state. Version increases with
// every published change.
type Snapshot struct {
	Version        uint64
	Messages       []model.ChatMessage
	Conversations  []model.Conversation
	ConversationID string
	Streaming      bool
	Loading        bool

	// LastError is the most recent stream failure, cleared by the next send.
	LastError string
}

// LastMessage returns the final message, if any.
func (s Snapshot) LastMessage() (model.ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return model.ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the chat view-state coordinator.
type Session struct {
	opener Opener
	dir    Directory
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	version        uint64
	messages       []model.ChatMessage
	conversations  []model.Conversation
	conversationID string
	streaming      bool
	loading        bool
	lastError      string

	// Search flag of the last send in this conversation, reused by resend.
	lastUseSearch bool

	// Only callbacks carrying the current generation may touch state.
	generation  uint64
	active      Canceler
	accumulator strings.Builder
	settled     chan struct{}

	subMu sync.Mutex
	subs  map[*Subscription]struct{}

	bg sync.WaitGroup
}

// New creates a Session. dir may be nil, in which case directory operations
// return an error and completed replies trigger no refresh.
func New(opener Opener, dir Directory, cfg Config) *Session {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultConfig().RefreshTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opener: opener,
		dir:    dir,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Close interrupts any active stream, waits for background refreshes, and
// closes all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopStreamLocked()
	s.mu.Unlock()

	s.cancel()
	s.bg.Wait()

	s.subMu.Lock()
	for sub := range s.subs {
		sub.close()
	}
	s.subs = map[*Subscription]struct{}{}
	s.subMu.Unlock()
}

// =============================================================================
// STATE ACCESS
// =============================================================================

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IsStreaming reports whether a reply is in flight.
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// ConversationID returns the active conversation ID, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Version:        s.version,
		Messages:       model.CloneMessages(s.messages),
		Conversations:  append([]model.Conversation(nil), s.conversations...),
		ConversationID: s.conversationID,
		Streaming:      s.streaming,
		Loading:        s.loading,
		LastError:      s.lastError,
	}
}

// changedLocked bumps the version and returns the snapshot to publish once
// the lock is released.
func (s *Session) changedLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

// =============================================================================
// SENDING
// =============================================================================

// SendMessage appends text as a user message plus an empty assistant
// placeholder and starts streaming the reply. It returns false, changing
// nothing, while a reply is already streaming or when text is blank.
func (s *Session) SendMessage(text string, useSearch bool) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	if s.closed || s.streaming {
		s.mu.Unlock()
		return false
	}
	user := model.NewUserMessage(text)
	user.ConversationID = s.conversationID
	s.messages = append(s.messages, user)
	snap := s.startStreamLocked(text, useSearch)
	s.mu.Unlock()

	s.publish(snap)
	return true
}

// ResendLastMessage drops everything after the most recent user message and
// streams a fresh reply to it, with the search flag of the last send in this
// conversation (off for a loaded conversation). It returns false while
// streaming or when the list holds no user message.
func (s *Session) ResendLastMessage() bool {
	s.mu.Lock()
	if s.closed || s.streaming {
		s.mu.Unlock()
		return false
	}
	idx := model.LastUserIndex(s.messages)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = s.messages[:idx+1]
	snap := s.startStreamLocked(s.messages[idx].Content, s.lastUseSearch)
	s.mu.Unlock()

	s.publish(snap)
	return true
}

// startStreamLocked appends the assistant placeholder, enters Streaming and
// opens the transport. The caller has already appended the user message.
func (s *Session) startStreamLocked(text string, useSearch bool) Snapshot {
	placeholder := model.NewAssistantPlaceholder()
	placeholder.ConversationID = s.conversationID
	s.messages = append(s.messages, placeholder)

	s.generation++
	gen := s.generation
	s.streaming = true
	s.lastError = ""
	s.lastUseSearch = useSearch
	s.accumulator.Reset()
	s.settled = make(chan struct{})

	req := stream.Request{
		Message:        text,
		ConversationID: s.conversationID,
		UseSearch:      useSearch,
	}
	s.logger.Debug("sending message",
		"conversation_id", req.ConversationID,
		"use_search", useSearch,
		"chars", len(text))

	// Handlers take s.mu, so Open must not invoke them synchronously.
	s.active = s.opener.Open(s.ctx, req, stream.Handlers{
		OnEvent:    func(ev stream.Event) { s.handleEvent(gen, ev) },
		OnError:    func(err error) { s.handleError(gen, err) },
		OnComplete: func() { s.handleComplete(gen) },
	})
	return s.changedLocked()
}

// =============================================================================
// STREAM CALLBACKS
// =============================================================================

func (s *Session) handleEvent(gen uint64, ev stream.Event) {
	switch ev.Type {
	case stream.EventContent:
		s.handleDelta(gen, ev.Content)
	case stream.EventDone:
		s.handleDone(gen, ev.ConversationID)
	case stream.EventError:
		msg := ev.Error
		if msg == "" {
			msg = "chat service reported an error"
		}
		s.logger.Warn("chat service reported an error", "error", msg)
		s.finish(gen, msg)
	default:
		s.logger.Debug("ignoring stream event", "type", ev.Type)
	}
}

func (s *Session) handleDelta(gen uint64, fragment string) {
	if fragment == "" {
		return
	}
	s.mu.Lock()
	if gen != s.generation || !s.streaming {
		s.mu.Unlock()
		return
	}
	s.accumulator.WriteString(fragment)
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == model.RoleAssistant {
		s.messages[n-1].Content = s.accumulator.String()
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Session) handleDone(gen uint64, conversationID string) {
	s.mu.Lock()
	if gen != s.generation || !s.streaming {
		s.mu.Unlock()
		return
	}
	// Adopt once: a later done for the same conversation never overwrites.
	if conversationID != "" && s.conversationID == "" {
		s.conversationID = conversationID
		for i := range s.messages {
			if s.messages[i].ConversationID == "" {
				s.messages[i].ConversationID = conversationID
			}
		}
	}
	s.endStreamLocked()
	snap := s.changedLocked()
	refresh := s.dir != nil && !s.closed
	if refresh {
		s.bg.Add(1)
	}
	s.mu.Unlock()

	s.publish(snap)

	if refresh {
		go func() {
			defer s.bg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RefreshTimeout)
			defer cancel()
			// Errors are logged inside RefreshConversations.
			_ = s.RefreshConversations(ctx)
		}()
	}
}

func (s *Session) handleError(gen uint64, err error) {
	s.logger.Warn("chat stream failed", "error", err)
	s.finish(gen, err.Error())
}

func (s *Session) handleComplete(gen uint64) {
	s.finish(gen, "")
}

// finish returns the session to Idle if gen is still current.
func (s *Session) finish(gen uint64, errMsg string) {
	s.mu.Lock()
	if gen != s.generation || !s.streaming {
		s.mu.Unlock()
		return
	}
	if errMsg != "" {
		s.lastError = errMsg
	}
	s.endStreamLocked()
	snap := s.changedLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// endStreamLocked leaves Streaming. The generation is advanced so callbacks
// still in flight for the finished stream are dropped.
func (s *Session) endStreamLocked() {
	s.generation++
	s.streaming = false
	if s.active != nil {
		s.active.Cancel()
		s.active = nil
	}
	s.accumulator.Reset()
	if s.settled != nil {
		close(s.settled)
		s.settled = nil
	}
}

// stopStreamLocked ends the active stream, if there is one.
func (s *Session) stopStreamLocked() {
	if s.streaming {
		s.endStreamLocked()
	}
}

// =============================================================================
// INTERRUPT / NEW CONVERSATION
// =============================================================================

// Interrupt cancels the active stream, if any, and returns to Idle. Content
// already merged stays. Calling it when idle is harmless.
func (s *Session) Interrupt() {
	s.mu.Lock()
	wasStreaming := s.streaming
	s.stopStreamLocked()
	if !wasStreaming {
		s.mu.Unlock()
		return
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.logger.Debug("stream interrupted")
	s.publish(snap)
}

// StartNewConversation clears the message list and the active conversation
// ID. A streaming reply is interrupted first. The directory is untouched.
func (s *Session) StartNewConversation() {
	s.mu.Lock()
	s.startNewLocked()
	snap := s.changedLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Session) startNewLocked() {
	s.stopStreamLocked()
	s.messages = nil
	s.conversationID = ""
	s.lastError = ""
	s.lastUseSearch = false
}

// WaitIdle blocks until no reply is streaming or ctx is done.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	ch := s.settled
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// DIRECTORY OPERATIONS
// =============================================================================

var errNoDirectory = errors.New("no conversation directory configured")

// RefreshConversations reloads the conversation list. On failure the cached
// list is kept and the error is logged and returned.
func (s *Session) RefreshConversations(ctx context.Context) error {
	if s.dir == nil {
		return errNoDirectory
	}
	convs, err := s.dir.List(ctx)
	if err != nil {
		s.logger.Warn("failed to load conversations", "error", err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.conversations = convs
	snap := s.changedLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// LoadConversationMessages replaces the message list with the stored
// messages of conversation id and makes it active. Loading is true for the
// duration of the call. On failure prior messages are kept.
func (s *Session) LoadConversationMessages(ctx context.Context, id string) error {
	if s.dir == nil {
		return errNoDirectory
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loading = true
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	msgs, err := s.dir.Messages(ctx, id)

	s.mu.Lock()
	s.loading = false
	if err == nil {
		s.stopStreamLocked()
		s.messages = msgs
		s.conversationID = id
		s.lastError = ""
		s.lastUseSearch = false
	}
	snap = s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	if err != nil {
		s.logger.Warn("failed to load messages", "conversation_id", id, "error", err)
		return err
	}
	return nil
}

// DeleteConversation deletes conversation id from the directory. On success
// it is dropped from the cached list, and if it was active the session
// starts a new conversation. On failure nothing changes.
func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	if s.dir == nil {
		return errNoDirectory
	}
	if err := s.dir.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to delete conversation", "conversation_id", id, "error", err)
		return err
	}

	s.mu.Lock()
	s.conversations = model.RemoveConversation(s.conversations, id)
	if s.conversationID == id {
		s.startNewLocked()
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}
