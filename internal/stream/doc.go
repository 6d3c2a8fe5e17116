// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes the chat service's streamed reply channel.
//
// A Transport issues POST /chat/stream and turns the chunked response body
// into discrete Events. Bytes are decoded as UTF-8 incrementally, so a
// multi-byte character split across two network reads is reassembled rather
// than mangled. Decoded text is split on newlines; the trailing partial line
// is kept until the next read. Only lines carrying the "data: " prefix are
// parsed, and lines whose payload is not valid JSON are logged and skipped.
//
// # Lifecycle
//
// Open returns a *Stream immediately and reads on a single goroutine. All
// handlers run on that goroutine, one at a time, in arrival order. Each
// stream ends with exactly one of OnComplete (clean EOF) or OnError (open or
// read failure), unless Cancel was called first, in which case neither fires.
//
// # Usage
//
//	t := stream.New("http://localhost:8000/api")
//	s := t.Open(ctx, stream.Request{Message: "hi"}, stream.Handlers{
//	    OnEvent:    func(ev stream.Event) { fmt.Print(ev.Content) },
//	    OnError:    func(err error) { log.Println(err) },
//	    OnComplete: func() { fmt.Println() },
//	})
//	defer s.Cancel()
//	s.Wait()
package stream
