// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown format.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title))
		if t.ID != "" {
			fmt.Fprintf(&sb, "conversation_id: %s\n", escapeYAML(t.ID))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
		sb.WriteString("generator: chatstream\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title))

	if e.options.IncludeMetadata {
		if first, last := timeRange(t.Messages); !first.IsZero() {
			fmt.Fprintf(&sb, "- **Started**: %s\n", formatTimestamp(first))
			fmt.Fprintf(&sb, "- **Last Message**: %s\n", formatTimestamp(last))
		}
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(t.Messages))
		sb.WriteString("\n---\n\n")
	}

	for i, msg := range t.Messages {
		label := roleLabel(msg.Role)
		if ts := msg.Time(); e.options.IncludeTimestamps && !ts.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(ts))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = "_(empty)_"
		} else if e.options.TagCodeFences {
			content = TagCodeFences(content)
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n\n*Exported from chatstream on %s*\n",
		t.ExportedAt.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// roleLabel returns a heading label for the message role.
func roleLabel(role model.Role) string {
	if role == "" {
		return "Unknown"
	}
	if role.IsValid() {
		return role.DisplayName()
	}
	runes := []rune(string(role))
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}

func timeRange(msgs []model.ChatMessage) (first, last time.Time) {
	for _, m := range msgs {
		ts := m.Time()
		if ts.IsZero() {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	return first, last
}

// TagCodeFences adds a language to opening code fences that have none,
// using chroma's content analysis. Fences whose language cannot be
// detected are left as they are.
func TagCodeFences(text string) string {
	lines := strings.Split(text, "\n")
	open := -1
	var code []string

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			if open >= 0 {
				code = append(code, line)
			}
			continue
		}
		if open < 0 {
			open = i
			code = code[:0]
			continue
		}
		// Closing fence.
		if strings.TrimSpace(lines[open]) == "```" {
			if lang := DetectLanguage(strings.Join(code, "\n")); lang != "" {
				indent := lines[open][:strings.Index(lines[open], "```")]
				lines[open] = indent + "```" + lang
			}
		}
		open = -1
	}
	return strings.Join(lines, "\n")
}

// DetectLanguage returns the primary alias of the lexer chroma considers
// most likely for code, or "" when none matches.
func DetectLanguage(code string) string {
	lexer := lexers.Analyse(code)
	if lexer == nil {
		lexer = shebangLexer(code)
	}
	if lexer == nil {
		return ""
	}
	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}

// shebangLexer resolves the interpreter named on a leading "#!" line, e.g.
// "#!/usr/bin/env python3" or "#!/bin/bash -e". Not every chroma analyser
// recognizes shebangs.
func shebangLexer(code string) chroma.Lexer {
	first, _, _ := strings.Cut(strings.TrimLeft(code, " \t\r\n"), "\n")
	if !strings.HasPrefix(first, "#!") {
		return nil
	}
	fields := strings.Fields(strings.TrimPrefix(first, "#!"))
	if len(fields) == 0 {
		return nil
	}
	interp := path.Base(fields[0])
	if interp == "env" {
		interp = ""
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") && !strings.Contains(f, "=") {
				interp = path.Base(f)
				break
			}
		}
	}
	if interp == "" {
		return nil
	}
	if lexer := lexers.Get(interp); lexer != nil {
		return lexer
	}
	// python3.12 -> python
	if base := strings.TrimRight(interp, "0123456789."); base != "" && base != interp {
		return lexers.Get(base)
	}
	return nil
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
		"\n", " ",
	)
	return r.Replace(s)
}

// escapeYAML quotes values containing YAML syntax characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
