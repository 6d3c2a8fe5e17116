// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// STREAMED REPLY OUTPUT
// =============================================================================

// replyResult describes how a followed reply ended.
type replyResult struct {
	Reply          model.ChatMessage
	ConversationID string
	Error          string
	Interrupted    bool
}

// replyPrinter copies a growing assistant reply to out.
type replyPrinter struct {
	out     io.Writer
	printed int
	text    strings.Builder
}

// update writes the part of content not yet printed.
func (p *replyPrinter) update(content string) {
	if len(content) <= p.printed {
		return
	}
	delta := content[p.printed:]
	p.printed = len(content)
	p.text.WriteString(delta)
	io.WriteString(p.out, delta)
}

// lines counts the terminal rows the printed text occupies at width.
func (p *replyPrinter) lines(width int) int {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	n := 0
	for _, line := range strings.Split(p.text.String(), "\n") {
		w := util.StringWidth(line)
		if w == 0 {
			n++
			continue
		}
		n += (w + width - 1) / width
	}
	return n
}

// followReply prints the reply started after version start as it streams,
// until the session is idle again. Cancelling ctx interrupts the reply.
func followReply(ctx context.Context, s *session.Session, sub *session.Subscription, start uint64, p *replyPrinter) (replyResult, error) {
	var res replyResult
	done := ctx.Done()

	for {
		select {
		case <-done:
			res.Interrupted = true
			done = nil
			s.Interrupt()

		case snap, ok := <-sub.C():
			if !ok {
				return res, session.ErrClosed
			}
			if snap.Version < start {
				continue
			}
			if last, ok := snap.LastMessage(); ok && last.Role == model.RoleAssistant {
				p.update(last.Content)
				res.Reply = last
			}
			if snap.Streaming {
				continue
			}
			if p.printed > 0 {
				fmt.Fprintln(p.out)
			}
			res.ConversationID = snap.ConversationID
			res.Error = snap.LastError
			return res, nil
		}
	}
}

// sendAndFollow sends text through s and prints the reply.
func sendAndFollow(ctx context.Context, s *session.Session, text string, useSearch bool, out io.Writer) (replyResult, *replyPrinter, error) {
	return startAndFollow(ctx, s, out, func() bool { return s.SendMessage(text, useSearch) })
}

// resendAndFollow regenerates the last reply and prints it.
func resendAndFollow(ctx context.Context, s *session.Session, out io.Writer) (replyResult, *replyPrinter, error) {
	return startAndFollow(ctx, s, out, s.ResendLastMessage)
}

// errNotStarted is returned when the session refused to start a reply.
var errNotStarted = errors.New("no reply started")

func startAndFollow(ctx context.Context, s *session.Session, out io.Writer, start func() bool) (replyResult, *replyPrinter, error) {
	sub := s.Subscribe()
	defer sub.Close()

	if !start() {
		return replyResult{}, nil, errNotStarted
	}
	version := s.Snapshot().Version

	p := &replyPrinter{out: out}
	res, err := followReply(ctx, s, sub, version, p)
	return res, p, err
}
