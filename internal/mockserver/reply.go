// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jeranaias/chatstream/internal/model"
)

// DefaultChunkRunes is the fragment size used when splitting replies.
const DefaultChunkRunes = 8

// Reply is the scripted answer to one chat message.
type Reply struct {
	// Chunks are sent in order as content events.
	Chunks []string

	// Err, when set, is sent as an error event after the chunks and the
	// reply is not stored.
	Err string

	// Truncate drops the connection after the chunks without a terminal
	// event.
	Truncate bool
}

// Text joins the chunks.
func (r Reply) Text() string {
	return strings.Join(r.Chunks, "")
}

// Replier produces the reply to message. useSearch is the flag the client
// sent with it.
type Replier func(message string, useSearch bool) Reply

// EchoReplier answers every message by repeating it, split into fragments
// of chunkRunes runes.
func EchoReplier(chunkRunes int) Replier {
	return func(message string, useSearch bool) Reply {
		text := "You said: " + message
		if useSearch {
			text += "\n\n_(web search was enabled for this reply)_"
		}
		return Reply{Chunks: SplitRunes(text, chunkRunes)}
	}
}

// ScriptedReplier returns the given replies in order, then repeats the last
// one. Without replies it behaves like EchoReplier.
func ScriptedReplier(replies ...Reply) Replier {
	if len(replies) == 0 {
		return EchoReplier(DefaultChunkRunes)
	}
	var (
		mu  sync.Mutex
		idx int
	)
	return func(string, bool) Reply {
		mu.Lock()
		defer mu.Unlock()
		r := replies[idx]
		if idx < len(replies)-1 {
			idx++
		}
		return r
	}
}

// SplitRunes splits s into pieces of at most n runes without breaking a
// multibyte character.
func SplitRunes(s string, n int) []string {
	if n <= 0 {
		n = DefaultChunkRunes
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/n+1)
	for start := 0; start < len(runes); start += n {
		end := min(start+n, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// Searcher answers a search request.
type Searcher func(query string, maxResults int) []model.SearchResult

// FixtureSearcher returns maxResults synthetic results for any query.
func FixtureSearcher(query string, maxResults int) []model.SearchResult {
	out := make([]model.SearchResult, 0, maxResults)
	for i := 1; i <= maxResults; i++ {
		out = append(out, model.SearchResult{
			Title:   fmt.Sprintf("Result %d for %q", i, query),
			URL:     fmt.Sprintf("https://example.com/search?q=%s&n=%d", url.QueryEscape(query), i),
			Snippet: fmt.Sprintf("A short summary of result %d about %s.", i, query),
		})
	}
	return out
}
