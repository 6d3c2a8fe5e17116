// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// CONVERSATION SUMMARY
// =============================================================================

// Conversation is a summary row from the conversation directory.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"last_message"`
	Timestamp    Timestamp `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// RemoveConversation returns convs without the entry whose ID is id.
// The input slice is not modified.
func RemoveConversation(convs []Conversation, id string) []Conversation {
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// FindConversation returns the conversation with the given ID.
func FindConversation(convs []Conversation, id string) (Conversation, bool) {
	for _, c := range convs {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// =============================================================================
// FORMATTING
// =============================================================================

const (
	listIDWidth    = 12
	listTitleWidth = 28
	listWhenWidth  = 14
	listCountWidth = 5
)

// FormatConversationList renders convs as an aligned plain-text table.
// Column widths are measured in terminal cells so wide runes line up.
func FormatConversationList(convs []Conversation, now time.Time) string {
	if len(convs) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", listIDWidth+listTitleWidth+listWhenWidth+listCountWidth+3+24) + "\n"
	sb.WriteString(rule)
	sb.WriteString(pad("ID", listIDWidth) + " " + pad("Title", listTitleWidth) + " " +
		pad("Updated", listWhenWidth) + " " + pad("Msgs", listCountWidth) + " Last message\n")
	sb.WriteString(rule)

	for _, c := range convs {
		id := c.ID
		if len(id) > listIDWidth {
			id = id[:listIDWidth]
		}
		title := runewidth.Truncate(c.Title, listTitleWidth, "...")
		preview := runewidth.Truncate(oneLine(c.LastMessage), 24, "...")
		sb.WriteString(pad(id, listIDWidth) + " " +
			pad(title, listTitleWidth) + " " +
			pad(FormatRelativeTime(c.Timestamp.Time, now), listWhenWidth) + " " +
			pad(strconv.Itoa(c.MessageCount), listCountWidth) + " " +
			preview + "\n")
	}
	return sb.String()
}

// FormatRelativeTime renders t relative to now ("just now", "5m ago",
// "yesterday"). Older times fall back to a short date.
func FormatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	}
	days := int(diff / (24 * time.Hour))
	switch {
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	}
	return t.Format("Jan 2 15:04")
}

func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
