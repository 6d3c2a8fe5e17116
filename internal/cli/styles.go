// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(14)

	// UserStyle labels user turns
	UserStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)

	// AssistantStyle labels assistant turns
	AssistantStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)

	// SuccessStyle is used for success messages
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Emerald)

	// ErrorStyle is used for error messages
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)

	// WarningStyle is used for warnings
	WarningStyle = lipgloss.NewStyle().Foreground(styles.Amber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)

	// PromptStyle is the REPL prompt
	PromptStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
)

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return DimStyle.Render(strings.Repeat("-", width))
}

// RenderLabel renders a fixed-width field label.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}
