// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// Layout
	sidebarMaxWidth = 32
	sidebarMinWidth = 20
	minWidthSidebar = 60 // narrower terminals hide the sidebar
	inputHeight     = 3

	// defaultOpTimeout bounds directory calls made from the screen.
	defaultOpTimeout = 15 * time.Second
)

// focus is the pane receiving keys.
type focus int

const (
	focusInput focus = iota
	focusSidebar
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat screen.
type Options struct {
	Theme     string
	MaxFPS    int
	Markdown  bool
	WordWrap  int
	UseSearch bool

	// OpTimeout bounds directory calls (default: 15 seconds).
	OpTimeout time.Duration

	Logger *slog.Logger
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Theme:     cfg.UI.Theme,
		MaxFPS:    cfg.UI.MaxFPS,
		Markdown:  cfg.UI.Markdown,
		WordWrap:  cfg.UI.WordWrap,
		UseSearch: cfg.Chat.UseSearch,
		OpTimeout: cfg.Server.Timeout.Duration,
	}
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the chat screen.
type Model struct {
	session *session.Session
	sub     *session.Subscription
	logger  *slog.Logger

	theme    *styles.Theme
	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	throttle *throttle

	snap      session.Snapshot
	focus     focus
	cursor    int
	confirmID string
	useSearch bool
	markdown  bool
	wordWrap  int
	showHelp  bool
	opTimeout time.Duration

	// Transient notice shown in the status bar.
	notice    string
	noticeErr bool

	renders map[string]renderedMessage

	width  int
	height int
	ready  bool
}

// renderedMessage caches the layout of one message.
type renderedMessage struct {
	content string
	width   int
	out     string
}

// New creates the chat screen for s. The subscription it opens is closed
// by Close.
func New(s *session.Session, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 8192
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	theme := styles.NewTheme(opts.Theme)
	sp.Style = theme.StatusStreaming

	sub := s.Subscribe()
	return Model{
		session:   s,
		sub:       sub,
		logger:    logger,
		theme:     theme,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		viewport:  viewport.New(80, 20),
		input:     ta,
		spinner:   sp,
		throttle:  newThrottle(opts.MaxFPS),
		snap:      s.Snapshot(),
		useSearch: opts.UseSearch,
		markdown:  opts.Markdown,
		wordWrap:  opts.WordWrap,
		opTimeout: opTimeout,
		renders:   make(map[string]renderedMessage),
	}
}

// Init starts the subscription loop and loads the conversation list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitForSnapshot(m.sub),
		m.refreshCmd(),
	)
}

// Close releases the session subscription.
func (m Model) Close() {
	m.sub.Close()
}

// UseSearch reports whether web search is enabled for new messages.
func (m Model) UseSearch() bool {
	return m.useSearch
}

// =============================================================================
// DIRECTORY COMMANDS
// =============================================================================

func (m Model) refreshCmd() tea.Cmd {
	return m.opCmd("refresh", func(ctx context.Context) error {
		return m.session.RefreshConversations(ctx)
	})
}

func (m Model) loadCmd(id string) tea.Cmd {
	return m.opCmd("load", func(ctx context.Context) error {
		return m.session.LoadConversationMessages(ctx, id)
	})
}

func (m Model) deleteCmd(id string) tea.Cmd {
	return m.opCmd("delete", func(ctx context.Context) error {
		return m.session.DeleteConversation(ctx, id)
	})
}

// opCmd runs fn off the update loop with the operation timeout.
func (m Model) opCmd(op string, fn func(ctx context.Context) error) tea.Cmd {
	timeout := m.opTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return opResultMsg{Op: op, Err: fn(ctx)}
	}
}
