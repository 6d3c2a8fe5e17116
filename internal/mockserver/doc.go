// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockserver provides an in-process stand-in for the chat service.
//
// It speaks the same wire contract as the real backend: streamed chat
// replies as "data: " lines, conversation listing, message history,
// deletion, web search, interruption and health. Replies are scripted or
// echoed, and conversations live in memory only.
//
// The server backs the package tests of the client layers and the
// mock-server command used for offline demos.
package mockserver
