// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package directory is the request/response client for the chat service:
// listing, loading and deleting stored conversations, plus web search and
// health checks. Calls are never retried; a non-2xx answer is returned as an
// *APIError that matches ErrNotFound, ErrRequest or ErrServer.
package directory
