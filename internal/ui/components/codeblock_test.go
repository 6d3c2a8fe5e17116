// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/chatstream/internal/util"
)

var ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func TestCodeBlockRender(t *testing.T) {
	cb := NewCodeBlock("go", "package main\n\nfunc main() {}\n")
	out := stripANSI(cb.Render())

	assert.Contains(t, out, "go")
	assert.Contains(t, out, "package main")
	assert.Contains(t, out, "func main() {}")
	assert.Contains(t, out, "1")
	assert.Contains(t, out, "3")
}

func TestHighlightCode_UnknownLanguage(t *testing.T) {
	out := stripANSI(highlightCode("just some words", "no-such-language"))
	assert.Equal(t, "just some words", out)
}

func TestRenderContent_Plain(t *testing.T) {
	text := strings.Repeat("word ", 30)
	out := RenderContent(text, 40, false)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, util.StringWidth(line), 40)
	}
	assert.Contains(t, out, "word")
}

func TestRenderContent_CodeFences(t *testing.T) {
	text := "Here you go:\n```python\nprint('hi')\n```\nDone."
	out := stripANSI(RenderContent(text, 60, true))

	assert.Contains(t, out, "Here you go:")
	assert.Contains(t, out, "print('hi')")
	assert.Contains(t, out, "Done.")
	assert.NotContains(t, out, "```")
}

func TestRenderContent_UnclosedFence(t *testing.T) {
	text := "Partial:\n```go\nx := 1"
	out := stripANSI(RenderContent(text, 60, true))
	assert.Contains(t, out, "Partial:")
	assert.Contains(t, out, "x := 1")
	assert.NotContains(t, out, "```")
}

func TestRenderContent_HighlightOffKeepsFences(t *testing.T) {
	out := RenderContent("```\ncode\n```", 40, false)
	assert.Contains(t, out, "```")
}

func TestRenderContent_NarrowWidthClamped(t *testing.T) {
	out := RenderContent("hello there", 3, false)
	assert.Contains(t, out, "hello there")
}
