// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	// Terminal capabilities
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// Sidebar
	Sidebar         lipgloss.Style
	SidebarFocused  lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarActive   lipgloss.Style
	SidebarHint     lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	Timestamp      lipgloss.Style
	Placeholder    lipgloss.Style

	// Input and status
	InputBorder        lipgloss.Style
	InputBorderBlurred lipgloss.Style
	StatusBar          lipgloss.Style
	StatusStreaming    lipgloss.Style
	SearchOn           lipgloss.Style
	SearchOff          lipgloss.Style
	ErrorText          lipgloss.Style
	Confirm            lipgloss.Style
	Muted              lipgloss.Style
}

// NewTheme builds a theme. name is "dark", "light", or "auto" to follow the
// terminal background.
func NewTheme(name string) *Theme {
	var isDark bool
	switch name {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	default:
		name = "auto"
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		Name:         name,
		IsDark:       isDark,
		ColorProfile: lipgloss.ColorProfile(),
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.SidebarFocused = t.Sidebar.BorderForeground(Cyan)
	t.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.SidebarItem = lipgloss.NewStyle().Foreground(TextSecondary)
	t.SidebarSelected = lipgloss.NewStyle().Foreground(TextPrimary).Background(SelectionBg).Bold(true)
	t.SidebarActive = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.SidebarHint = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Placeholder = lipgloss.NewStyle().Foreground(TextMuted).Italic(true).PaddingLeft(2)

	t.InputBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan)
	t.InputBorderBlurred = t.InputBorder.BorderForeground(Overlay)

	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(SurfaceDim).Padding(0, 1)
	t.StatusStreaming = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.SearchOn = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.SearchOff = lipgloss.NewStyle().Foreground(TextMuted)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Confirm = lipgloss.NewStyle().Foreground(TextInverse).Background(Rose).Bold(true).Padding(0, 1)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}
