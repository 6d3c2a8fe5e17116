// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable rendering pieces for the chatstream TUI.
package components

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// minBlockWidth is the narrowest a code block is ever drawn.
const minBlockWidth = 20

// CodeBlock is one fenced block of a message.
type CodeBlock struct {
	Language string
	Code     string
	MaxWidth int
}

// NewCodeBlock creates a code block with the default width.
func NewCodeBlock(language, code string) CodeBlock {
	return CodeBlock{
		Language: language,
		Code:     code,
		MaxWidth: 80,
	}
}

// Render draws the block with line numbers and a language badge.
func (c CodeBlock) Render() string {
	code := strings.Trim(c.Code, "\n")

	language := c.Language
	if language == "" {
		language = DetectLanguage(code)
	}

	lines := strings.Split(highlightCode(code, language), "\n")
	lineNumStyle := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Width(4).
		Align(lipgloss.Right).
		MarginRight(1)

	rendered := make([]string, 0, len(lines))
	for i, line := range lines {
		rendered = append(rendered, lineNumStyle.Render(strconv.Itoa(i+1))+line)
	}

	var header string
	if language != "" {
		header = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Background(styles.OverlayDim).
			Padding(0, 1).
			Bold(true).
			Render(language) + "\n"
	}

	maxWidth := c.MaxWidth - 4
	if maxWidth < minBlockWidth {
		maxWidth = minBlockWidth
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(header + strings.Join(rendered, "\n"))
}

// =============================================================================
// MESSAGE CONTENT
// =============================================================================

// RenderContent lays out message text for a column of the given width.
// Prose is word wrapped. With highlight set, fenced code blocks are drawn
// as CodeBlocks; an unclosed fence (a reply still streaming) is drawn as
// well so code appears as it arrives.
func RenderContent(text string, width int, highlight bool) string {
	if width < minBlockWidth {
		width = minBlockWidth
	}
	if !highlight {
		return wrap(text, width)
	}

	var out []string
	var prose []string
	var codeLines []string
	var language string
	inCode := false

	flushProse := func() {
		if len(prose) > 0 {
			out = append(out, wrap(strings.Join(prose, "\n"), width))
			prose = nil
		}
	}
	flushCode := func() {
		cb := NewCodeBlock(language, strings.Join(codeLines, "\n"))
		cb.MaxWidth = width
		out = append(out, cb.Render())
		codeLines = nil
		language = ""
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```") && inCode:
			flushCode()
			inCode = false
		case strings.HasPrefix(trimmed, "```"):
			flushProse()
			language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			inCode = true
		case inCode:
			codeLines = append(codeLines, line)
		default:
			prose = append(prose, line)
		}
	}
	if inCode && len(codeLines) > 0 {
		flushCode()
	}
	flushProse()

	return strings.Join(out, "\n")
}

// wrap word wraps text to width cells.
func wrap(text string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(text)
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// highlightCode applies ANSI syntax highlighting. It returns code unchanged
// when tokenizing or formatting fails.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// DetectLanguage guesses the language name of code, or returns "".
func DetectLanguage(code string) string {
	if lexer := lexers.Analyse(code); lexer != nil {
		return strings.ToLower(lexer.Config().Name)
	}
	return ""
}
