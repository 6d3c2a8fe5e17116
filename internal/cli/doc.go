// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatstream command tree.
//
// Running chatstream with no arguments opens the full-screen chat. The
// subcommands cover a line-mode REPL, one-shot questions, conversation
// management, web search, configuration, and a local mock of the chat
// service.
package cli
