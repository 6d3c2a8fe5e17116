// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/directory"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/stream"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s.WithLogger(quietLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// readStream sends a chat message and returns the decoded events.
func readStream(baseURL string, req chatRequest) ([]stream.Event, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(baseURL+"/api/chat/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var events []stream.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		ev, ok, err := stream.ParseLine(sc.Text())
		if !ok {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

func postStream(t *testing.T, baseURL string, req chatRequest) []stream.Event {
	t.Helper()
	events, err := readStream(baseURL, req)
	require.NoError(t, err)
	return events
}

func contentOf(events []stream.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == stream.EventContent {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

// =============================================================================
// CHAT STREAM TESTS
// =============================================================================

func TestChatStream_EchoCreatesConversation(t *testing.T) {
	s := New()
	srv := startServer(t, s)

	events := postStream(t, srv.URL, chatRequest{Message: "héllo wörld"})
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, stream.EventDone, last.Type)
	assert.NotEmpty(t, last.ConversationID)
	assert.Equal(t, "You said: héllo wörld", contentOf(events))

	msgs, ok := s.Store().Messages(last.ConversationID)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "You said: héllo wörld", msgs[1].Content)
}

func TestChatStream_ContinuesConversation(t *testing.T) {
	s := New()
	srv := startServer(t, s)

	first := postStream(t, srv.URL, chatRequest{Message: "one"})
	id := first[len(first)-1].ConversationID

	second := postStream(t, srv.URL, chatRequest{Message: "two", ConversationID: id})
	assert.Equal(t, id, second[len(second)-1].ConversationID)
	assert.Equal(t, 1, s.Store().Len())

	msgs, _ := s.Store().Messages(id)
	assert.Len(t, msgs, 4)
}

func TestChatStream_ScriptedError(t *testing.T) {
	s := New().WithReplier(ScriptedReplier(Reply{Chunks: []string{"par", "tial"}, Err: "model overloaded"}))
	srv := startServer(t, s)

	events := postStream(t, srv.URL, chatRequest{Message: "hi"})
	require.Len(t, events, 3)
	assert.Equal(t, "partial", contentOf(events))
	assert.Equal(t, stream.EventError, events[2].Type)
	assert.Equal(t, "model overloaded", events[2].Error)
}

func TestChatStream_Truncate(t *testing.T) {
	s := New().WithReplier(ScriptedReplier(Reply{Chunks: []string{"cut"}, Truncate: true}))
	srv := startServer(t, s)

	events := postStream(t, srv.URL, chatRequest{Message: "hi"})
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventContent, events[0].Type)
}

func TestChatStream_Validation(t *testing.T) {
	srv := startServer(t, New())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty message", `{"message":"  "}`, http.StatusUnprocessableEntity},
		{"bad json", `{`, http.StatusUnprocessableEntity},
		{"unknown conversation", `{"message":"hi","conversation_id":"nope"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var detail map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
			assert.NotEmpty(t, detail["detail"])
		})
	}
}

func TestInterrupt(t *testing.T) {
	s := New().
		WithReplier(ScriptedReplier(Reply{Chunks: SplitRunes(strings.Repeat("x", 400), 1)})).
		WithChunkDelay(5 * time.Millisecond)
	srv := startServer(t, s)

	c := directory.New(srv.URL + "/api")
	assert.ErrorIs(t, c.Interrupt(context.Background(), "missing"), directory.ErrNotFound)

	done := make(chan []stream.Event, 1)
	go func() {
		events, _ := readStream(srv.URL, chatRequest{Message: "long"})
		done <- events
	}()

	require.Eventually(t, func() bool { return s.ActiveStreams() == 1 }, 2*time.Second, 5*time.Millisecond)
	convs := s.Store().List()
	require.Len(t, convs, 1)
	require.NoError(t, c.Interrupt(context.Background(), convs[0].ID))

	events := <-done
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, stream.EventDone, last.Type)
	assert.Less(t, len(contentOf(events)), 400)
}

// =============================================================================
// DIRECTORY ROUND TRIP
// =============================================================================

func TestDirectoryEndpoints(t *testing.T) {
	s := New()
	srv := startServer(t, s)
	c := directory.New(srv.URL + "/api")
	ctx := context.Background()

	convs, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)

	events := postStream(t, srv.URL, chatRequest{Message: "What is the capital of France?"})
	id := events[len(events)-1].ConversationID

	convs, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, id, convs[0].ID)
	assert.Equal(t, "What is the capital of France?", convs[0].Title)
	assert.Equal(t, 2, convs[0].MessageCount)
	assert.False(t, convs[0].Timestamp.IsZero())

	msgs, err := c.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, id, msgs[0].ConversationID)
	assert.False(t, msgs[0].Time().IsZero())

	require.NoError(t, c.Delete(ctx, id))
	assert.ErrorIs(t, c.Delete(ctx, id), directory.ErrNotFound)
	_, err = c.Messages(ctx, id)
	assert.ErrorIs(t, err, directory.ErrNotFound)

	results, err := c.Search(ctx, "go channels", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Contains(t, results[0].URL, "go+channels")

	hs, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", hs.Status)
	assert.False(t, hs.Timestamp.IsZero())
}

func TestStoreOrdering(t *testing.T) {
	st := NewStore()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := base
	st.now = func() time.Time { tick = tick.Add(time.Minute); return tick }

	a := st.Create("first")
	b := st.Create("second")
	require.True(t, st.Append(a, model.RoleUser, "bump"))
	assert.False(t, st.Append("missing", model.RoleUser, "x"))

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, b, list[1].ID)
	assert.Equal(t, "bump", list[0].LastMessage)
	assert.Equal(t, 0, list[1].MessageCount)
}

func TestSplitRunes(t *testing.T) {
	assert.Equal(t, []string{"ab", "cé", "f"}, SplitRunes("abcéf", 2))
	assert.Empty(t, SplitRunes("", 3))
	assert.Equal(t, []string{"abc"}, SplitRunes("abc", 0))
}

func TestScriptedReplier_RepeatsLast(t *testing.T) {
	r := ScriptedReplier(Reply{Chunks: []string{"a"}}, Reply{Chunks: []string{"b"}})
	assert.Equal(t, "a", r("", false).Text())
	assert.Equal(t, "b", r("", false).Text())
	assert.Equal(t, "b", r("", false).Text())
}

func TestRateLimit(t *testing.T) {
	srv := startServer(t, New().WithRateLimit(0.001, 1))

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWithPrefix(t *testing.T) {
	s := New().WithPrefix("/")
	assert.Equal(t, "", s.Prefix())
	srv := startServer(t, s)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "/v2", New().WithPrefix("v2/").Prefix())
}

func TestServe_Shutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New().WithLogger(quietLogger()).Serve(ctx, l) }()

	c := directory.New("http://" + l.Addr().String() + "/api")
	require.Eventually(t, func() bool {
		_, err := c.Health(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

// =============================================================================
// SESSION END TO END
// =============================================================================

func TestSessionAgainstServer(t *testing.T) {
	srv := startServer(t, New())
	base := srv.URL + "/api"

	tr := stream.New(base).WithLogger(quietLogger()).WithReadSize(3)
	s := session.New(session.FromTransport(tr), directory.New(base), session.Config{Logger: quietLogger()})
	t.Cleanup(s.Close)

	require.True(t, s.SendMessage("Hi there", false))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "You said: Hi there", snap.Messages[1].Content)
	assert.NotEmpty(t, snap.ConversationID)
	assert.Empty(t, snap.LastError)

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Conversations) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
