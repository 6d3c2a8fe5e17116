// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeStream is one opened stream whose callbacks the test fires by hand.
type fakeStream struct {
	req       stream.Request
	h         stream.Handlers
	cancelled bool
}

func (f *fakeStream) Cancel() { f.cancelled = true }

// fakeOpener records every Open call. Handlers are never invoked from Open.
type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (o *fakeOpener) Open(_ context.Context, req stream.Request, h stream.Handlers) Canceler {
	o.mu.Lock()
	defer o.mu.Unlock()
	fs := &fakeStream{req: req, h: h}
	o.streams = append(o.streams, fs)
	return fs
}

func (o *fakeOpener) last(t *testing.T) *fakeStream {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.streams, "no stream opened")
	return o.streams[len(o.streams)-1]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}

func (f *fakeStream) content(s string) { f.h.OnEvent(stream.Event{Type: stream.EventContent, Content: s}) }
func (f *fakeStream) done(id string)   { f.h.OnEvent(stream.Event{Type: stream.EventDone, ConversationID: id}) }

// fakeDirectory is an in-memory Directory.
type fakeDirectory struct {
	mu        sync.Mutex
	convs     []model.Conversation
	messages  map[string][]model.ChatMessage
	listCalls int
	listErr   error
	msgErr    error
	deleteErr error
	deleted   []string
	block     chan struct{} // when set, Messages waits on it
}

func (d *fakeDirectory) List(context.Context) ([]model.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]model.Conversation(nil), d.convs...), nil
}

func (d *fakeDirectory) Messages(_ context.Context, id string) ([]model.ChatMessage, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.msgErr != nil {
		return nil, d.msgErr
	}
	return d.messages[id], nil
}

func (d *fakeDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleteErr != nil {
		return d.deleteErr
	}
	d.deleted = append(d.deleted, id)
	d.convs = model.RemoveConversation(d.convs, id)
	return nil
}

func (d *fakeDirectory) lists() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listCalls
}

func newTestSession(t *testing.T) (*Session, *fakeOpener, *fakeDirectory) {
	t.Helper()
	op := &fakeOpener{}
	dir := &fakeDirectory{messages: map[string][]model.ChatMessage{}}
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(op, dir, cfg)
	t.Cleanup(s.Close)
	return s, op, dir
}

func contents(msgs []model.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

// =============================================================================
// SEND / STREAM TESTS
// =============================================================================

func TestSendMessage_AppendsUserAndPlaceholder(t *testing.T) {
	s, op, _ := newTestSession(t)

	require.True(t, s.SendMessage("hello", true))

	snap := s.Snapshot()
	assert.True(t, snap.Streaming)
	assert.Equal(t, []string{"user:hello", "assistant:"}, contents(snap.Messages))
	assert.NotEqual(t, snap.Messages[0].ID, snap.Messages[1].ID)

	fs := op.last(t)
	assert.Equal(t, "hello", fs.req.Message)
	assert.True(t, fs.req.UseSearch)
	assert.Empty(t, fs.req.ConversationID)
}

func TestSendMessage_NoOpWhileStreaming(t *testing.T) {
	s, op, _ := newTestSession(t)
	require.True(t, s.SendMessage("one", false))

	assert.False(t, s.SendMessage("two", false))
	assert.Len(t, s.Snapshot().Messages, 2)
	assert.Equal(t, 1, op.count())
}

func TestSendMessage_RejectsBlank(t *testing.T) {
	s, op, _ := newTestSession(t)
	assert.False(t, s.SendMessage("   \n", false))
	assert.Empty(t, s.Snapshot().Messages)
	assert.Equal(t, 0, op.count())
}

func TestDeltas_ConcatenateIntoLastMessage(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("hi", false)
	fs := op.last(t)

	fragments := []string{"Hel", "", "lo", ", ", "wörld"}
	for _, f := range fragments {
		fs.content(f)
	}

	snap := s.Snapshot()
	last, ok := snap.LastMessage()
	require.True(t, ok)
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, "Hello, wörld", last.Content)
	assert.True(t, snap.Streaming)
}

func TestDone_AdoptsConversationIDOnce(t *testing.T) {
	s, op, dir := newTestSession(t)

	s.SendMessage("first", false)
	op.last(t).content("A")
	op.last(t).done("c1")
	assert.Equal(t, "c1", s.ConversationID())
	assert.False(t, s.IsStreaming())

	// The second turn is sent on c1 and a conflicting id is ignored.
	s.SendMessage("second", false)
	assert.Equal(t, "c1", op.last(t).req.ConversationID)
	op.last(t).done("c2")
	assert.Equal(t, "c1", s.ConversationID())

	for _, m := range s.Snapshot().Messages {
		assert.Equal(t, "c1", m.ConversationID)
	}

	require.Eventually(t, func() bool { return dir.lists() == 2 }, time.Second, 5*time.Millisecond,
		"each completed reply should refresh the directory")
}

func TestDone_RefreshFailureIsNotSurfaced(t *testing.T) {
	s, op, dir := newTestSession(t)
	dir.listErr = errors.New("service down")

	s.SendMessage("q", false)
	op.last(t).done("c1")

	require.Eventually(t, func() bool { return dir.lists() == 1 }, time.Second, 5*time.Millisecond)
	snap := s.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.Empty(t, snap.Conversations)
}

func TestDone_RefreshUpdatesConversations(t *testing.T) {
	s, op, dir := newTestSession(t)
	dir.convs = []model.Conversation{{ID: "c1", Title: "hello"}}

	s.SendMessage("q", false)
	op.last(t).done("c1")

	require.Eventually(t, func() bool { return len(s.Snapshot().Conversations) == 1 }, time.Second, 5*time.Millisecond)
}

func TestErrorEvent_ReturnsToIdleAndKeepsPartial(t *testing.T) {
	s, op, dir := newTestSession(t)
	s.SendMessage("q", false)
	fs := op.last(t)
	fs.content("partial")
	fs.h.OnEvent(stream.Event{Type: stream.EventError, Error: "model overloaded"})

	snap := s.Snapshot()
	assert.False(t, snap.Streaming)
	assert.Equal(t, "model overloaded", snap.LastError)
	assert.Equal(t, []string{"user:q", "assistant:partial"}, contents(snap.Messages))
	assert.True(t, fs.cancelled, "finished stream should be released")
	assert.Equal(t, 1, op.count(), "no automatic retry")
	assert.Equal(t, 0, dir.lists())

	// The user can send again.
	assert.True(t, s.SendMessage("again", false))
	assert.Empty(t, s.Snapshot().LastError)
}

func TestTransportError_ReturnsToIdle(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("q", false)
	op.last(t).h.OnError(errors.New("connection reset"))

	snap := s.Snapshot()
	assert.False(t, snap.Streaming)
	assert.Contains(t, snap.LastError, "connection reset")
}

func TestComplete_ReturnsToIdle(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("q", false)
	op.last(t).content("x")
	op.last(t).h.OnComplete()

	assert.False(t, s.IsStreaming())
	require.NoError(t, s.WaitIdle(context.Background()))
}

// =============================================================================
// INTERRUPT TESTS
// =============================================================================

func TestInterrupt_StopsFurtherMerges(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("q", false)
	fs := op.last(t)
	fs.content("kept")

	s.Interrupt()
	assert.True(t, fs.cancelled)
	assert.False(t, s.IsStreaming())

	// Lines the transport had already buffered must not merge.
	fs.content(" dropped")
	fs.done("c9")
	fs.h.OnComplete()

	snap := s.Snapshot()
	last, _ := snap.LastMessage()
	assert.Equal(t, "kept", last.Content)
	assert.Empty(t, snap.ConversationID)
}

func TestInterrupt_Idempotent(t *testing.T) {
	s, _, _ := newTestSession(t)
	before := s.Snapshot().Version
	s.Interrupt()
	s.Interrupt()
	assert.False(t, s.IsStreaming())
	assert.Equal(t, before, s.Snapshot().Version, "idle interrupt publishes nothing")
}

func TestStaleStreamCannotTouchNextTurn(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("one", false)
	first := op.last(t)
	s.Interrupt()

	s.SendMessage("two", false)
	second := op.last(t)
	first.content("stale")
	second.content("fresh")

	last, _ := s.Snapshot().LastMessage()
	assert.Equal(t, "fresh", last.Content)
}

// =============================================================================
// RESEND TESTS
// =============================================================================

func TestResendLastMessage_TruncatesAndResends(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("A", true)
	op.last(t).content("B")
	op.last(t).done("c1")
	require.Equal(t, []string{"user:A", "assistant:B"}, contents(s.Snapshot().Messages))

	require.True(t, s.ResendLastMessage())

	fs := op.last(t)
	assert.Equal(t, 2, op.count())
	assert.Equal(t, "A", fs.req.Message)
	assert.Equal(t, "c1", fs.req.ConversationID)
	assert.True(t, fs.req.UseSearch, "resend keeps the search flag of the original send")
	assert.Equal(t, []string{"user:A", "assistant:"}, contents(s.Snapshot().Messages))

	fs.content("B2")
	assert.Equal(t, []string{"user:A", "assistant:B2"}, contents(s.Snapshot().Messages))
}

func TestResendLastMessage_LoadedConversationResendsWithoutSearch(t *testing.T) {
	s, op, dir := newTestSession(t)
	s.SendMessage("A", true)
	op.last(t).done("c1")
	s.bg.Wait()

	dir.messages["c9"] = []model.ChatMessage{
		{ID: "1", Role: model.RoleUser, Content: "old q", ConversationID: "c9"},
		{ID: "2", Role: model.RoleAssistant, Content: "old a", ConversationID: "c9"},
	}
	require.NoError(t, s.LoadConversationMessages(context.Background(), "c9"))

	require.True(t, s.ResendLastMessage())
	fs := op.last(t)
	assert.Equal(t, "old q", fs.req.Message)
	assert.False(t, fs.req.UseSearch, "a loaded conversation resends without search")
}

func TestResendLastMessage_NoUserMessage(t *testing.T) {
	s, op, _ := newTestSession(t)
	assert.False(t, s.ResendLastMessage())
	assert.Equal(t, 0, op.count())
}

func TestResendLastMessage_NoOpWhileStreaming(t *testing.T) {
	s, op, _ := newTestSession(t)
	s.SendMessage("A", false)
	assert.False(t, s.ResendLastMessage())
	assert.Equal(t, 1, op.count())
	assert.Len(t, s.Snapshot().Messages, 2)
}

// =============================================================================
// CONVERSATION LIFECYCLE TESTS
// =============================================================================

func TestStartNewConversation(t *testing.T) {
	s, op, dir := newTestSession(t)
	dir.convs = []model.Conversation{{ID: "c1"}}
	require.NoError(t, s.RefreshConversations(context.Background()))
	s.SendMessage("A", true)
	op.last(t).done("c1")
	s.bg.Wait()

	s.StartNewConversation()
	snap := s.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.ConversationID)
	assert.Len(t, snap.Conversations, 1, "directory is untouched")

	s.mu.Lock()
	assert.False(t, s.lastUseSearch, "search flag belongs to the previous conversation")
	s.mu.Unlock()
}

func TestDeleteConversation_Active(t *testing.T) {
	s, op, dir := newTestSession(t)
	dir.convs = []model.Conversation{{ID: "c1"}, {ID: "c2"}}
	require.NoError(t, s.RefreshConversations(context.Background()))
	s.SendMessage("A", false)
	op.last(t).done("c1")
	s.bg.Wait()

	require.NoError(t, s.DeleteConversation(context.Background(), "c1"))

	snap := s.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.ConversationID)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "c2", snap.Conversations[0].ID)
}

func TestDeleteConversation_Inactive(t *testing.T) {
	s, op, dir := newTestSession(t)
	dir.convs = []model.Conversation{{ID: "c1"}, {ID: "c2"}}
	require.NoError(t, s.RefreshConversations(context.Background()))
	s.SendMessage("A", false)
	op.last(t).done("c1")
	s.bg.Wait()

	require.NoError(t, s.DeleteConversation(context.Background(), "c2"))

	snap := s.Snapshot()
	assert.Equal(t, "c1", snap.ConversationID)
	assert.Len(t, snap.Messages, 2)
	assert.Len(t, snap.Conversations, 1)
}

func TestDeleteConversation_FailureLeavesState(t *testing.T) {
	s, _, dir := newTestSession(t)
	dir.convs = []model.Conversation{{ID: "c1"}}
	require.NoError(t, s.RefreshConversations(context.Background()))
	dir.deleteErr = errors.New("500")

	err := s.DeleteConversation(context.Background(), "c1")
	assert.Error(t, err)
	assert.Len(t, s.Snapshot().Conversations, 1)
}

func TestLoadConversationMessages(t *testing.T) {
	s, _, dir := newTestSession(t)
	dir.messages["c7"] = []model.ChatMessage{
		{ID: "1", Role: model.RoleUser, Content: "old q", ConversationID: "c7"},
		{ID: "2", Role: model.RoleAssistant, Content: "old a", ConversationID: "c7"},
	}
	dir.block = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- s.LoadConversationMessages(context.Background(), "c7") }()

	require.Eventually(t, func() bool { return s.Snapshot().Loading }, time.Second, time.Millisecond)
	close(dir.block)
	require.NoError(t, <-errc)

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, "c7", snap.ConversationID)
	assert.Equal(t, []string{"user:old q", "assistant:old a"}, contents(snap.Messages))
}

func TestLoadConversationMessages_FailureClearsLoading(t *testing.T) {
	s, op, dir := newTestSession(t)
	s.SendMessage("keep", false)
	op.last(t).done("c1")
	dir.msgErr = errors.New("not found")

	err := s.LoadConversationMessages(context.Background(), "missing")
	require.Error(t, err)

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, "c1", snap.ConversationID)
	assert.Len(t, snap.Messages, 2)
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestSubscribe_DeliversLatestSnapshot(t *testing.T) {
	s, op, _ := newTestSession(t)
	sub := s.Subscribe()
	defer sub.Close()

	initial := <-sub.C()
	assert.False(t, initial.Streaming)

	s.SendMessage("q", false)
	fs := op.last(t)
	fs.content("a")
	fs.content("b")
	fs.content("c")

	// Unread intermediate snapshots coalesce into the newest one.
	snap := <-sub.C()
	last, _ := snap.LastMessage()
	assert.Equal(t, "abc", last.Content)

	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra snapshot v%d", extra.Version)
	default:
	}
}

func TestSubscribe_ClosedBySession(t *testing.T) {
	op := &fakeOpener{}
	s := New(op, nil, Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	sub := s.Subscribe()
	<-sub.C()
	s.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.False(t, s.SendMessage("late", false))
}

func TestWaitIdle_ContextTimeout(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.SendMessage("q", false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitIdle(ctx), context.DeadlineExceeded)

	s.Interrupt()
	assert.NoError(t, s.WaitIdle(context.Background()))
}

func TestNoDirectory(t *testing.T) {
	s := New(&fakeOpener{}, nil, DefaultConfig())
	defer s.Close()
	assert.Error(t, s.RefreshConversations(context.Background()))
	assert.Error(t, s.DeleteConversation(context.Background(), "x"))
	assert.Error(t, s.LoadConversationMessages(context.Background(), "x"))
}
