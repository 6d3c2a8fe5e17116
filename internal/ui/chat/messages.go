// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/session"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// SnapshotMsg carries a session state change.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// subscriptionClosedMsg reports that the session stopped publishing.
type subscriptionClosedMsg struct{}

// renderTickMsg fires when a deferred streaming snapshot may be drawn.
type renderTickMsg struct{}

// opResultMsg reports the end of a directory operation.
type opResultMsg struct {
	Op  string
	Err error
}

// ConfigChangedMsg delivers a reloaded configuration file.
type ConfigChangedMsg struct {
	Config *config.Config
}

// waitForSnapshot blocks on sub and returns the next snapshot as a message.
// Update re-arms it after every delivery.
func waitForSnapshot(sub *session.Subscription) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-sub.C()
		if !ok {
			return subscriptionClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}
