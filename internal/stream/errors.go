// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrOpen is matched by every failure to establish the stream.
	ErrOpen = errors.New("failed to open chat stream")

	// ErrIdleTimeout is reported when no bytes arrive within the configured
	// idle timeout.
	ErrIdleTimeout = errors.New("chat stream idle timeout")

	// ErrCancelled is the context cause recorded by Stream.Cancel.
	ErrCancelled = errors.New("chat stream cancelled")
)

// StatusError is returned when the service answers the stream request with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("chat service returned %d: %s", e.StatusCode, e.Message)
}

// Is reports StatusError as a kind of ErrOpen.
func (e *StatusError) Is(target error) bool {
	return target == ErrOpen
}

// ReadError wraps a failure that occurred after the stream was established.
// Received counts decoded bytes delivered before the failure.
type ReadError struct {
	Received int
	Err      error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	if e.Received > 0 {
		return fmt.Sprintf("chat stream interrupted after %d bytes: %v", e.Received, e.Err)
	}
	return fmt.Sprintf("chat stream interrupted: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// statusError builds a StatusError from a response body.
func statusError(code int, body []byte) *StatusError {
	return &StatusError{StatusCode: code, Message: util.ErrorDetail(body)}
}
