// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/ui/components"
	"github.com/jeranaias/chatstream/internal/ui/styles"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

// sidebarWidth returns the sidebar width including its border, or 0 when
// the terminal is too narrow for one.
func (m Model) sidebarWidth() int {
	if m.width < minWidthSidebar {
		return 0
	}
	w := m.width / 4
	if w > sidebarMaxWidth {
		w = sidebarMaxWidth
	}
	if w < sidebarMinWidth {
		w = sidebarMinWidth
	}
	return w
}

// mainWidth is the width of the transcript column.
func (m Model) mainWidth() int {
	w := m.width - m.sidebarWidth()
	if w < 1 {
		w = 1
	}
	return w
}

// layout sizes the viewport and input to the terminal.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	main := m.mainWidth()
	m.input.SetWidth(main - 2)

	// input box (content + border) and status bar
	chrome := inputHeight + 2 + 1
	if m.showHelp {
		chrome += lipgloss.Height(m.helpView())
	}
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	m.viewport.Width = main
	m.viewport.Height = h
	m.refreshViewport()
}

// refreshViewport re-renders the transcript, keeping the view pinned to
// the bottom when it already was or while a reply streams.
func (m *Model) refreshViewport() {
	follow := m.viewport.AtBottom() || m.snap.Streaming
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.inputView(),
		m.statusView(),
	)
	if m.showHelp {
		main = lipgloss.JoinVertical(lipgloss.Left, main, m.helpView())
	}

	if m.sidebarWidth() == 0 {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main)
}

func (m Model) inputView() string {
	style := m.theme.InputBorder
	if m.focus != focusInput {
		style = m.theme.InputBorderBlurred
	}
	return style.Render(m.input.View())
}

func (m Model) helpView() string {
	m.help.Width = m.mainWidth()
	m.help.ShowAll = true
	return m.help.View(m.keys)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) sidebarView() string {
	outer := m.sidebarWidth()
	inner := outer - 4 // border and padding
	height := m.height - 2
	if height < 1 {
		height = 1
	}

	lines := []string{m.theme.SidebarTitle.Render("Conversations"), ""}
	convs := m.snap.Conversations
	if len(convs) == 0 {
		lines = append(lines, m.theme.SidebarHint.Render("No conversations yet"))
	}

	// Scroll the list so the cursor stays visible.
	visible := height - len(lines) - 2
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}

	for i := start; i < len(convs) && i < start+visible; i++ {
		c := convs[i]
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		marker := "  "
		if c.ID == m.snap.ConversationID {
			marker = "* "
		}
		line := util.TruncateWidth(marker+title, inner)

		switch {
		case m.focus == focusSidebar && i == m.cursor:
			line = m.theme.SidebarSelected.Render(padRight(line, inner))
		case c.ID == m.snap.ConversationID:
			line = m.theme.SidebarActive.Render(line)
		default:
			line = m.theme.SidebarItem.Render(line)
		}
		lines = append(lines, line)
	}

	if m.focus == focusSidebar {
		lines = append(lines, "", m.theme.SidebarHint.Render("Enter open  d delete"))
	}

	style := m.theme.Sidebar
	if m.focus == focusSidebar {
		style = m.theme.SidebarFocused
	}
	return style.Width(outer - 2).Height(height).Render(strings.Join(lines, "\n"))
}

func padRight(s string, width int) string {
	if gap := width - util.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderMessages() string {
	if len(m.snap.Messages) == 0 {
		return m.theme.Placeholder.Render("Start a conversation by typing a message below.")
	}

	width := m.contentWidth()
	seen := make(map[string]struct{}, len(m.snap.Messages))
	blocks := make([]string, 0, len(m.snap.Messages))
	for i, msg := range m.snap.Messages {
		last := i == len(m.snap.Messages)-1
		blocks = append(blocks, m.renderMessage(msg, width, last && m.snap.Streaming))
		seen[msg.ID] = struct{}{}
	}
	for id := range m.renders {
		if _, ok := seen[id]; !ok {
			delete(m.renders, id)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// contentWidth is the wrap width of message bodies.
func (m Model) contentWidth() int {
	w := m.viewport.Width - 4
	if m.wordWrap > 0 && m.wordWrap < w {
		w = m.wordWrap
	}
	return w
}

func (m *Model) renderMessage(msg model.ChatMessage, width int, streaming bool) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}
	if t := msg.Time(); !t.IsZero() {
		label += " " + m.theme.Timestamp.Render(t.Local().Format("15:04"))
	}

	if msg.Content == "" && msg.Role == model.RoleAssistant {
		hint := "(no reply)"
		if streaming {
			hint = "thinking..."
		}
		return label + "\n" + m.theme.Placeholder.Render(hint)
	}

	return label + "\n" + m.theme.MessageBody.Render(m.renderBody(msg, width))
}

// renderBody lays out a message body, reusing the cached layout when the
// content and width are unchanged.
func (m *Model) renderBody(msg model.ChatMessage, width int) string {
	if msg.ID != "" {
		if r, ok := m.renders[msg.ID]; ok && r.content == msg.Content && r.width == width {
			return r.out
		}
	}
	highlight := m.markdown && msg.Role == model.RoleAssistant
	out := components.RenderContent(msg.Content, width, highlight)
	if msg.ID != "" {
		m.renders[msg.ID] = renderedMessage{content: msg.Content, width: width, out: out}
	}
	return out
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) statusView() string {
	var parts []string

	switch {
	case m.snap.Streaming:
		parts = append(parts, m.spinner.View()+" "+m.theme.StatusStreaming.Render("streaming (Esc to stop)"))
	case m.snap.Loading:
		parts = append(parts, m.theme.StatusStreaming.Render("loading..."))
	default:
		parts = append(parts, "ready")
	}

	if m.useSearch {
		parts = append(parts, m.theme.SearchOn.Render("search: on"))
	} else {
		parts = append(parts, m.theme.SearchOff.Render("search: off"))
	}

	if id := m.snap.ConversationID; id != "" {
		parts = append(parts, m.theme.Muted.Render("conv "+util.TruncateRunes(id, 8)))
	} else {
		parts = append(parts, m.theme.Muted.Render("new conversation"))
	}

	switch {
	case m.confirmID != "":
		parts = append(parts, m.theme.Confirm.Render(fmt.Sprintf("Delete %q? y/N", m.conversationTitle(m.confirmID))))
	case m.snap.LastError != "":
		parts = append(parts, m.theme.ErrorText.Render(styles.StatusIndicators.Error+" "+m.snap.LastError))
	case m.notice != "" && m.noticeErr:
		parts = append(parts, m.theme.ErrorText.Render(m.notice))
	case m.notice != "":
		parts = append(parts, m.notice)
	default:
		parts = append(parts, m.theme.Muted.Render("F1 help"))
	}

	w := m.mainWidth()
	return m.theme.StatusBar.Width(w).MaxWidth(w).MaxHeight(1).Render(strings.Join(parts, " | "))
}

func (m Model) conversationTitle(id string) string {
	for _, c := range m.snap.Conversations {
		if c.ID == id {
			if c.Title != "" {
				return util.TruncateRunes(c.Title, 30)
			}
			break
		}
	}
	return util.TruncateRunes(id, 8)
}
