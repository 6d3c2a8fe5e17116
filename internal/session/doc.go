// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates one chat conversation on top of a stream
// transport and the conversation directory.
//
// A Session owns the message list, the streaming and loading flags, the
// active conversation ID and the cached conversation list. Each turn moves
// Idle -> Streaming -> Idle. While a reply streams, the last message is the
// assistant placeholder and its content is rewritten from a single
// accumulator after every delta.
//
// # Key Types
//
//   - Session: the coordinator; safe for use from several goroutines
//   - Snapshot: immutable copy of session state handed to front ends
//   - Subscription: coalescing feed of Snapshots
//   - Opener, Directory: the collaborators, satisfied by stream.Transport
//     (through FromTransport) and directory.Client
//
// # Usage
//
//	s := session.New(session.FromTransport(t), dirClient, session.DefaultConfig())
//	defer s.Close()
//	sub := s.Subscribe()
//	defer sub.Close()
//	s.SendMessage("What's new in Go 1.24?", true)
//	for snap := range sub.C() {
//	    render(snap)
//	    if !snap.Streaming {
//	        break
//	    }
//	}
package session
