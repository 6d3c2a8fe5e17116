// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// TitleLength caps the rune length of generated conversation titles.
const TitleLength = 50

// conversation is the stored form of one conversation.
type conversation struct {
	id       string
	title    string
	updated  time.Time
	messages []model.ChatMessage
}

// Store holds conversations in memory. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*conversation
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		convs: make(map[string]*conversation),
		now:   time.Now,
	}
}

// Create starts a conversation titled after its first message and returns
// its ID.
func (s *Store) Create(firstMessage string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.convs[id] = &conversation{
		id:      id,
		title:   util.TruncateRunes(firstMessage, TitleLength),
		updated: s.now(),
	}
	return id
}

// Exists reports whether conversation id is stored.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.convs[id]
	return ok
}

// Append adds a message to conversation id. It returns false when the
// conversation does not exist.
func (s *Store) Append(id string, role model.Role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return false
	}
	now := s.now()
	msg := model.NewMessage(role, content)
	ts := model.NewTimestamp(now)
	msg.Timestamp = &ts
	msg.ConversationID = id
	c.messages = append(c.messages, msg)
	c.updated = now
	return true
}

// List returns conversation summaries, most recently updated first.
func (s *Store) List() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		summary := model.Conversation{
			ID:           c.id,
			Title:        c.title,
			Timestamp:    model.NewTimestamp(c.updated),
			MessageCount: len(c.messages),
		}
		if n := len(c.messages); n > 0 {
			summary.LastMessage = util.TruncateRunes(c.messages[n-1].Content, 100)
		}
		out = append(out, summary)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp.Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp.Time)
	})
	return out
}

// Messages returns a copy of the messages of conversation id.
func (s *Store) Messages(id string) ([]model.ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	return model.CloneMessages(c.messages), true
}

// Delete removes conversation id. It returns false when nothing was stored.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return false
	}
	delete(s.convs, id)
	return true
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}
