// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to files for reading or archiving.
//
// # Key Types
//
//   - Transcript: A conversation and its messages as exported
//   - Exporter: Format interface implemented by Markdown and JSON
//   - Options: Export configuration options
//
// # Supported Formats
//
//   - Markdown: Human-readable, with code fences tagged by language
//   - JSON: Machine-readable, using the service's message shape
//
// # Usage
//
//	exp, err := export.New("md", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.WriteFile("", transcript, exp)
package export
