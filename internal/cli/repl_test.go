// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/mockserver"
)

// scriptReader feeds fixed lines to the REPL, then reports end of input.
type scriptReader struct {
	lines   []string
	history []string
	end     error
}

func (r *scriptReader) Prompt(string) (string, error) {
	if len(r.lines) == 0 {
		if r.end != nil {
			return "", r.end
		}
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptReader) AppendHistory(item string) {
	r.history = append(r.history, item)
}

func newTestREPL(t *testing.T, base string, lines ...string) (*repl, *scriptReader, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.BaseURL = base
	a := &app{cfg: cfg, logger: quietLogger()}

	s := a.newSession()
	t.Cleanup(s.Close)

	in := &scriptReader{lines: lines}
	var out bytes.Buffer
	return &repl{app: a, session: s, in: in, out: &out}, in, &out
}

func TestREPL_Session(t *testing.T) {
	dir := t.TempDir()
	srv := mockserver.New()
	base := startMock(t, srv)
	exported := filepath.Join(dir, "chat.json")

	r, in, out := newTestREPL(t, base,
		"hello",
		"",
		"/search on",
		"again",
		"/list",
		"/export "+exported,
		"/resend",
		"/new",
		"/resend",
		"/bogus",
		"/load",
		"/quit",
		"never sent",
	)
	require.NoError(t, r.run(context.Background()))
	text := out.String()

	assert.Contains(t, text, "You said: hello\n")
	assert.Contains(t, text, "Web search on.")
	assert.Contains(t, text, "web search was enabled")
	assert.Contains(t, text, "hello") // listed title
	assert.Contains(t, text, "Exported to "+exported)
	assert.Contains(t, text, "Started a new conversation.")
	assert.Contains(t, text, "nothing to resend")
	assert.Contains(t, text, "unknown command /bogus")
	assert.Contains(t, text, "usage: /load <id>")
	assert.NotContains(t, text, "never sent")

	assert.Equal(t, []string{"never sent"}, in.lines)
	assert.NotContains(t, in.history, "")
	assert.Equal(t, 1, srv.Store().Len())

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role": "assistant"`)
}

func TestREPL_LoadAndDelete(t *testing.T) {
	srv := mockserver.New()
	base := startMock(t, srv)
	id := seedConversation(t, srv, "Rust vs Go")

	r, _, out := newTestREPL(t, base,
		"/load "+id,
		"follow up",
		"/delete "+id,
		"/load "+id,
	)
	require.NoError(t, r.run(context.Background()))
	text := out.String()

	assert.Contains(t, text, "Reply to Rust vs Go")
	assert.Contains(t, text, "You said: follow up")
	assert.Contains(t, text, "Deleted conversation "+id)
	assert.Contains(t, text, "404")
	assert.Equal(t, 0, srv.Store().Len())
	assert.Empty(t, r.session.ConversationID())
}

func TestREPL_StreamError(t *testing.T) {
	srv := mockserver.New().WithReplier(mockserver.ScriptedReplier(
		mockserver.Reply{Err: "upstream timeout"},
	))
	base := startMock(t, srv)

	r, _, out := newTestREPL(t, base, "hi")
	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, out.String(), "[Error] upstream timeout")
}

func TestREPL_CtrlCAtPromptExits(t *testing.T) {
	base := startMock(t, mockserver.New())
	r, in, _ := newTestREPL(t, base)
	in.end = liner.ErrPromptAborted
	assert.NoError(t, r.run(context.Background()))
}

func TestREPL_SearchToggle(t *testing.T) {
	base := startMock(t, mockserver.New())
	r, _, out := newTestREPL(t, base, "/search", "/search", "/search maybe")
	require.NoError(t, r.run(context.Background()))

	assert.Contains(t, out.String(), "Web search on.")
	assert.Contains(t, out.String(), "Web search off.")
	assert.Contains(t, out.String(), "usage: /search [on|off]")
	assert.Equal(t, "chat> ", r.prompt())
}
