// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures exchanged with the chat service.
//
// # Key Types
//
//   - ChatMessage: one turn of a conversation (user, assistant or system)
//   - Conversation: summary row returned by the conversation directory
//   - SearchResult: one web search hit
//   - Timestamp: wire time value tolerant of zone-less ISO-8601 strings
//
// # Usage
//
//	msgs := []model.ChatMessage{model.NewUserMessage("hello")}
//	msgs = append(msgs, model.NewAssistantPlaceholder())
//	idx := model.LastUserIndex(msgs) // 0
package model
