// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is one conversation as written by an exporter.
type Transcript struct {
	ID         string              `json:"id,omitempty"`
	Title      string              `json:"title"`
	ExportedAt time.Time           `json:"exported_at"`
	Messages   []model.ChatMessage `json:"messages"`
}

// NewTranscript builds a transcript from a conversation summary and its
// messages. A missing title is derived from the first user message.
func NewTranscript(conv model.Conversation, msgs []model.ChatMessage) *Transcript {
	title := strings.TrimSpace(conv.Title)
	if title == "" {
		title = deriveTitle(msgs)
	}
	return &Transcript{
		ID:         conv.ID,
		Title:      title,
		ExportedAt: time.Now(),
		Messages:   model.CloneMessages(msgs),
	}
}

func deriveTitle(msgs []model.ChatMessage) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Content) != "" {
			return m.Preview(50)
		}
	}
	return "Untitled conversation"
}

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("conversation has no messages")

func validate(t *Transcript) error {
	if t == nil {
		return fmt.Errorf("conversation is nil")
	}
	if len(t.Messages) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a transcript to the target format.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a front matter block and conversation details.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// TagCodeFences labels untagged code fences with a detected language.
	TagCodeFences bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		TagCodeFences:     true,
	}
}

// Formats lists the accepted format names.
var Formats = []string{"md", "json"}

// New returns the exporter for format ("md", "markdown" or "json").
func New(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown", "":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use %s)", format, strings.Join(Formats, " or "))
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// WriteFile exports t and writes it atomically. An empty path or a path
// naming an existing directory gets a generated file name. It returns the
// written path.
func WriteFile(path string, t *Transcript, exporter Exporter) (string, error) {
	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	path = util.ExpandHome(path)
	if path == "" {
		path = DefaultFilename(t, exporter)
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFilename(t, exporter))
	}

	// RELIABILITY: Atomic write with fsync prevents a truncated export on crash
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// DefaultFilename returns conversation_<title>_<time><ext>.
func DefaultFilename(t *Transcript, exporter Exporter) string {
	stamp := t.ExportedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(t.Title),
		stamp.Format("20060102_150405"),
		exporter.FileExtension())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(s), 50)

	// Replace problematic characters (Windows and Unix)
	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
