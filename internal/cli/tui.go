// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/ui/chat"
)

// =============================================================================
// FULL-SCREEN CHAT
// =============================================================================

// runTUI opens the chat screen. Edits to the config file are applied to the
// running screen.
func (a *app) runTUI(cmd *cobra.Command, _ []string) error {
	if !IsTTY() || !isTerminal(cmd.OutOrStdout()) {
		return &UsageError{Reason: "the chat screen needs a terminal; use 'chatstream chat' or 'chatstream ask' instead"}
	}

	s := a.newSession()
	defer s.Close()

	opts := chat.OptionsFromConfig(a.cfg)
	opts.Logger = a.logger
	m := chat.New(s, opts)
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(cmd.Context()),
		tea.WithOutput(os.Stdout),
	)

	w, err := config.NewWatcher(a.configPath,
		func(cfg *config.Config) {
			a.logger.Info("config reloaded", "path", a.configPath)
			p.Send(chat.ConfigChangedMsg{Config: cfg})
		},
		func(err error) {
			a.logger.Warn("config reload failed", "path", a.configPath, "error", err)
		},
	)
	if err != nil {
		a.logger.Warn("config watcher unavailable", "error", err)
	} else {
		defer w.Close()
	}

	_, err = p.Run()
	return err
}
