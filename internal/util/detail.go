// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"encoding/json"
	"strings"
)

// ErrorDetail extracts a human-readable message from an error response
// body. FastAPI-style {"detail": ...} bodies are unwrapped; anything else is
// returned trimmed. The result is capped at 200 runes.
func ErrorDetail(body []byte) string {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			msg = s
		} else if b, err := json.Marshal(payload.Detail); err == nil {
			msg = string(b)
		}
	}
	return TruncateRunes(msg, 200)
}
