// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures exchanged with the chat service.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is one of the roles the service understands.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ChatMessage is a single turn in a conversation.
//
// Role is fixed at creation. Content of an in-flight assistant message is
// rewritten as deltas arrive and is final once its stream ends.
type ChatMessage struct {
	ID             string     `json:"id,omitempty"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Timestamp      *Timestamp `json:"timestamp,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// NewMessage creates a message with a client-side ID and the current time.
func NewMessage(role Role, content string) ChatMessage {
	now := NewTimestamp(time.Now())
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: &now,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return NewMessage(RoleUser, content)
}

// NewAssistantPlaceholder creates the empty assistant message that a stream
// fills in.
func NewAssistantPlaceholder() ChatMessage {
	return NewMessage(RoleAssistant, "")
}

// Time returns the message timestamp, or the zero time when absent.
func (m ChatMessage) Time() time.Time {
	if m.Timestamp == nil {
		return time.Time{}
	}
	return m.Timestamp.Time
}

// Preview returns the content truncated to maxLen runes.
func (m ChatMessage) Preview(maxLen int) string {
	return util.TruncateRunes(m.Content, maxLen)
}

// LastUserIndex returns the index of the most recent user message, or -1.
func LastUserIndex(msgs []ChatMessage) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
