// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "strings"

// LineSplitter buffers decoded text and yields complete lines. The fragment
// after the last newline is held until more text arrives.
type LineSplitter struct {
	residual strings.Builder
}

// Feed appends text and returns every line it completes, in order, without
// their newline terminators.
func (ls *LineSplitter) Feed(text string) []string {
	if !strings.Contains(text, "\n") {
		ls.residual.WriteString(text)
		return nil
	}

	ls.residual.WriteString(text)
	buffered := ls.residual.String()
	ls.residual.Reset()

	parts := strings.Split(buffered, "\n")
	last := len(parts) - 1
	ls.residual.WriteString(parts[last])
	return parts[:last]
}

// Residual returns the buffered partial line.
func (ls *LineSplitter) Residual() string {
	return ls.residual.String()
}

// Flush returns and clears the buffered partial line.
func (ls *LineSplitter) Flush() string {
	s := ls.residual.String()
	ls.residual.Reset()
	return s
}
