// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// DataPrefix marks a line that carries an event payload.
const DataPrefix = "data: "

// EventType discriminates stream payloads.
type EventType string

const (
	// EventContent carries a fragment of assistant text.
	EventContent EventType = "content"

	// EventDone marks the end of the reply and may carry the conversation ID.
	EventDone EventType = "done"

	// EventError reports a service-side failure for this reply.
	EventError EventType = "error"
)

// Event is one decoded payload from the stream.
type Event struct {
	Type           EventType `json:"type"`
	Content        string    `json:"content,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends the reply from the service's
// point of view.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// ErrMalformedEvent is returned by ParseLine when a data line does not hold a
// JSON object with a type.
var ErrMalformedEvent = errors.New("malformed stream event")

// ParseLine decodes a single line of the stream.
//
// ok is false for lines that are not event candidates (blank lines, SSE
// comments, other fields). A candidate whose payload cannot be decoded
// returns ok true and an error wrapping ErrMalformedEvent.
func ParseLine(line string) (ev Event, ok bool, err error) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return Event{}, false, nil
	}
	payload := line[len(DataPrefix):]

	// Nullable fields decode as empty strings.
	var raw struct {
		Type           *string `json:"type"`
		Content        *string `json:"content"`
		ConversationID *string `json:"conversation_id"`
		Error          *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Event{}, true, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return Event{}, true, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	ev.Type = EventType(*raw.Type)
	if raw.Content != nil {
		ev.Content = *raw.Content
	}
	if raw.ConversationID != nil {
		ev.ConversationID = *raw.ConversationID
	}
	if raw.Error != nil {
		ev.Error = *raw.Error
	}
	return ev, true, nil
}

// FormatLine encodes ev as a single "data: " line including the trailing
// newline.
func FormatLine(ev Event) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return DataPrefix + string(b) + "\n", nil
}
