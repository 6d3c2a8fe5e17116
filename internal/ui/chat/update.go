// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case SnapshotMsg:
		apply, tick := m.throttle.offer(msg.Snapshot, time.Now())
		cmds := []tea.Cmd{waitForSnapshot(m.sub), tick}
		if apply {
			cmds = append(cmds, m.applySnapshot(msg.Snapshot))
		}
		return m, tea.Batch(cmds...)

	case renderTickMsg:
		if snap, ok := m.throttle.flush(); ok {
			return m, m.applySnapshot(snap)
		}
		return m, nil

	case subscriptionClosedMsg:
		return m, tea.Quit

	case opResultMsg:
		m.handleOpResult(msg)
		return m, nil

	case ConfigChangedMsg:
		m.applyConfig(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.snap.Streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applySnapshot makes snap the displayed state.
func (m *Model) applySnapshot(snap session.Snapshot) tea.Cmd {
	if snap.Version < m.snap.Version {
		return nil
	}
	wasStreaming := m.snap.Streaming
	m.snap = snap

	if m.confirmID != "" && !m.hasConversation(m.confirmID) {
		m.confirmID = ""
	}
	m.clampCursor()
	m.refreshViewport()

	if snap.Streaming && !wasStreaming {
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) handleOpResult(msg opResultMsg) {
	if msg.Err != nil {
		m.logger.Warn("operation failed", "op", msg.Op, "error", msg.Err)
		m.setNotice(msg.Op+" failed: "+msg.Err.Error(), true)
		return
	}
	switch msg.Op {
	case "delete":
		m.setNotice("Conversation deleted", false)
	case "load":
		m.focus = focusInput
		m.input.Focus()
		m.viewport.GotoBottom()
	}
}

func (m *Model) applyConfig(msg ConfigChangedMsg) {
	if msg.Config == nil {
		return
	}
	ui := msg.Config.UI
	m.theme = styles.NewTheme(ui.Theme)
	m.spinner.Style = m.theme.StatusStreaming
	m.throttle.setFPS(ui.MaxFPS)
	m.markdown = ui.Markdown
	m.wordWrap = ui.WordWrap
	m.renders = make(map[string]renderedMessage)
	m.layout()
	m.setNotice("Configuration reloaded", false)
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.confirmID != "" {
		id := m.confirmID
		m.confirmID = ""
		if key.Matches(msg, m.keys.Confirm) {
			return m, m.deleteCmd(id)
		}
		m.setNotice("Delete cancelled", false)
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Interrupt):
		if m.snap.Streaming {
			m.session.Interrupt()
		} else if m.focus == focusSidebar {
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, m.keys.New):
		m.session.StartNewConversation()
		m.notice = ""
		m.setFocus(focusInput)
		return m, nil

	case key.Matches(msg, m.keys.Resend):
		if !m.session.ResendLastMessage() && !m.snap.Streaming {
			m.setNotice("Nothing to resend", true)
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleSearch):
		m.useSearch = !m.useSearch
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusInput {
			m.setFocus(focusSidebar)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.snap.Conversations
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Load):
		if len(convs) > 0 {
			return m, m.loadCmd(convs[m.cursor].ID)
		}
	case key.Matches(msg, m.keys.Delete):
		if len(convs) > 0 {
			m.confirmID = convs[m.cursor].ID
		}
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Send) {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" || m.snap.Streaming {
			return m, nil
		}
		if m.session.SendMessage(text, m.useSearch) {
			m.input.Reset()
			m.notice = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) clampCursor() {
	if n := len(m.snap.Conversations); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) hasConversation(id string) bool {
	for _, c := range m.snap.Conversations {
		if c.ID == id {
			return true
		}
	}
	return false
}
