// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "sync"

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscription delivers Snapshots to one consumer. The channel holds at most
// one pending Snapshot: a newer one replaces an unread older one, so a slow
// consumer skips intermediate states but always sees the latest.
type Subscription struct {
	s      *Session
	ch     chan Snapshot
	mu     sync.Mutex
	last   uint64
	closed bool
}

// Subscribe registers a new Subscription. The current state is queued
// immediately.
func (s *Session) Subscribe() *Subscription {
	sub := &Subscription{s: s, ch: make(chan Snapshot, 1)}

	s.subMu.Lock()
	s.subs[sub] = struct{}{}
	s.subMu.Unlock()

	sub.offer(s.Snapshot())
	return sub
}

// C returns the snapshot channel. It is closed when the subscription or the
// session is closed.
func (sub *Subscription) C() <-chan Snapshot {
	return sub.ch
}

// Close unregisters the subscription and closes its channel.
func (sub *Subscription) Close() {
	sub.s.subMu.Lock()
	delete(sub.s.subs, sub)
	sub.s.subMu.Unlock()
	sub.close()
}

func (sub *Subscription) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// offer queues snap unless it is older than one already delivered.
func (sub *Subscription) offer(snap Snapshot) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed || (sub.last != 0 && snap.Version <= sub.last) {
		return
	}
	sub.last = snap.Version
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- snap
}

// publish hands snap to every subscriber. It never blocks on a consumer.
func (s *Session) publish(snap Snapshot) {
	s.subMu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.offer(snap)
	}
}
