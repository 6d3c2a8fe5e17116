// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// =============================================================================
// ASK COMMAND
// =============================================================================

func (a *app) askCommand() *cobra.Command {
	var (
		useSearch      bool
		conversationID string
		raw            bool
	)
	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Ask one question and print the streamed answer",
		Long: `Send one message and print the reply as it streams. On a terminal the
finished reply is re-rendered as Markdown. With no arguments the message
is read from stdin.`,
		Example: `  $ chatstream ask "explain goroutines in one paragraph"
  $ chatstream ask --search "latest Go release"
  $ git diff | chatstream ask --raw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			message := joinArgs(args)
			if message == "" && !IsTTY() {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				message = strings.TrimSpace(string(data))
			}
			if message == "" {
				return &UsageError{Reason: "no message given"}
			}
			if !cmd.Flags().Changed("search") {
				useSearch = a.cfg.Chat.UseSearch
			}

			s := a.newSession()
			defer s.Close()

			if conversationID != "" {
				ctx, cancel := a.requestContext(cmd)
				err := s.LoadConversationMessages(ctx, conversationID)
				cancel()
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			res, p, err := sendAndFollow(ctx, s, message, useSearch, out)
			if err != nil {
				return err
			}

			if !raw && a.cfg.UI.Markdown && isTerminal(out) && p.printed > 0 && !res.Interrupted {
				a.rerender(out, p)
			}

			if res.ConversationID != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("conversation: "+res.ConversationID))
			}
			switch {
			case res.Interrupted:
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("[interrupted]"))
			case res.Error != "":
				return &ReplyError{Message: res.Error}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&useSearch, "search", "s", false, "enable web search for this message")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the reply without Markdown rendering")
	return cmd
}

// rerender replaces the streamed plain text with its Markdown rendering.
func (a *app) rerender(out io.Writer, p *replyPrinter) {
	width := terminalWidth(out)
	if a.cfg.UI.WordWrap > 0 && a.cfg.UI.WordWrap < width {
		width = a.cfg.UI.WordWrap
	}
	rendered, err := renderMarkdown(p.text.String(), a.cfg.UI.Theme, width)
	if err != nil {
		a.logger.Debug("markdown rendering failed", "error", err)
		return
	}

	// The reply was followed by one newline; clear back to its first row.
	termenv.NewOutput(out).ClearLines(p.lines(terminalWidth(out)))
	io.WriteString(out, strings.TrimRight(rendered, "\n")+"\n")
}

// renderMarkdown renders text with glamour at width columns.
func renderMarkdown(text, theme string, width int) (string, error) {
	style := glamour.WithAutoStyle()
	switch theme {
	case "dark", "light":
		style = glamour.WithStandardStyle(theme)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	return r.Render(text)
}
