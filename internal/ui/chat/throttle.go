// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/chatstream/internal/session"
)

// =============================================================================
// RENDER THROTTLE
// =============================================================================

// DefaultMaxFPS caps re-renders while a reply streams.
const DefaultMaxFPS = 30

// throttle limits how often streaming snapshots are drawn. A snapshot that
// arrives too early is held, and a single trailing tick draws the newest
// held one, so the last state of a burst is never lost. Snapshots taken
// while idle always pass.
type throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
	pending  *session.Snapshot
	ticking  bool
}

func newThrottle(fps int) *throttle {
	t := &throttle{}
	t.setFPS(fps)
	return t
}

func (t *throttle) setFPS(fps int) {
	if fps <= 0 {
		fps = DefaultMaxFPS
	}
	t.interval = time.Second / time.Duration(fps)
	t.limiter = rate.NewLimiter(rate.Limit(fps), 1)
}

// offer decides whether snap is drawn now. When it is held the returned
// command schedules the trailing tick.
func (t *throttle) offer(snap session.Snapshot, now time.Time) (bool, tea.Cmd) {
	if !snap.Streaming || t.limiter.AllowN(now, 1) {
		t.pending = nil
		return true, nil
	}
	t.pending = &snap
	if t.ticking {
		return false, nil
	}
	t.ticking = true
	return false, tea.Tick(t.interval, func(time.Time) tea.Msg {
		return renderTickMsg{}
	})
}

// flush returns the held snapshot, if any, after a tick.
func (t *throttle) flush() (session.Snapshot, bool) {
	t.ticking = false
	if t.pending == nil {
		return session.Snapshot{}, false
	}
	snap := *t.pending
	t.pending = nil
	return snap, true
}
