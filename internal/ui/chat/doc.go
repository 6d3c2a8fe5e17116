// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the interactive chat screen.
//
// The screen is a Bubble Tea model over a session.Session: a conversation
// sidebar, a scrolling transcript, a multi-line input and a status bar.
// Session state arrives through a subscription, and streaming updates are
// redrawn at most ui.max_fps times per second.
package chat
