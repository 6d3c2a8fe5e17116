// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// CHAT COMMAND
// =============================================================================

func (a *app) chatCommand() *cobra.Command {
	var useSearch bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in line mode",
		Long: `Start a line-mode chat. Replies stream as they arrive; Ctrl-C stops a
reply, and Ctrl-C or Ctrl-D at the prompt exits. Type /help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("search") {
				useSearch = a.cfg.Chat.UseSearch
			}

			line := liner.NewLiner()
			line.SetCtrlCAborts(true)
			historyFile := util.ExpandHome(a.cfg.Chat.HistoryFile)
			loadHistory(line, historyFile)
			defer func() {
				saveHistory(line, historyFile)
				line.Close()
			}()

			s := a.newSession()
			defer s.Close()

			r := &repl{
				app:       a,
				session:   s,
				in:        line,
				out:       cmd.OutOrStdout(),
				useSearch: useSearch,
			}
			return r.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&useSearch, "search", false, "enable web search for messages")
	return cmd
}

// loadHistory reads REPL history from path, if present.
func loadHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory writes REPL history to path.
func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	var buf bytes.Buffer
	if _, err := line.WriteHistory(&buf); err != nil {
		return
	}
	_ = util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700)
}

// =============================================================================
// REPL
// =============================================================================

// lineReader reads one line of input. liner.State implements it.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// repl is the line-mode chat loop.
type repl struct {
	app       *app
	session   *session.Session
	in        lineReader
	out       io.Writer
	useSearch bool
}

const replHelp = `Commands:
  /new              start a new conversation
  /resend           regenerate the last reply
  /list             list conversations
  /load <id>        open a conversation
  /delete <id>      delete a conversation
  /search [on|off]  toggle web search
  /export [file]    export this conversation (.md or .json)
  /help             show this help
  /quit             exit
Anything else is sent as a message. Ctrl-C stops a streaming reply.`

func (r *repl) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintln(r.out, TitleStyle.Render("chatstream")+" "+DimStyle.Render(r.app.cfg.Server.BaseURL))
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands."))

	for {
		input, err := r.in.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+err.Error())
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, input); err != nil {
			fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+err.Error())
		}
	}
}

func (r *repl) prompt() string {
	if r.useSearch {
		return "chat[search]> "
	}
	return "chat> "
}

// send streams a reply to text. SIGINT interrupts the reply only.
func (r *repl) send(ctx context.Context, text string) error {
	return r.follow(ctx, func(ctx context.Context) (replyResult, *replyPrinter, error) {
		return sendAndFollow(ctx, r.session, text, r.useSearch, r.out)
	})
}

func (r *repl) resend(ctx context.Context) error {
	return r.follow(ctx, func(ctx context.Context) (replyResult, *replyPrinter, error) {
		return resendAndFollow(ctx, r.session, r.out)
	})
}

func (r *repl) follow(ctx context.Context, start func(context.Context) (replyResult, *replyPrinter, error)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	res, _, err := start(ctx)
	if err != nil {
		return err
	}
	switch {
	case res.Interrupted:
		fmt.Fprintln(r.out, WarningStyle.Render("[interrupted]"))
	case res.Error != "":
		return errors.New(res.Error)
	}
	return nil
}

// command runs a slash command. It reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		fmt.Fprintln(r.out, replHelp)

	case "/new":
		r.session.StartNewConversation()
		fmt.Fprintln(r.out, SuccessStyle.Render("Started a new conversation."))

	case "/resend":
		if err := r.resend(ctx); err != nil {
			if errors.Is(err, errNotStarted) {
				return false, errors.New("nothing to resend")
			}
			return false, err
		}

	case "/list":
		ctx, cancel := context.WithTimeout(ctx, r.timeout())
		defer cancel()
		if err := r.session.RefreshConversations(ctx); err != nil {
			return false, err
		}
		fmt.Fprint(r.out, model.FormatConversationList(r.session.Snapshot().Conversations, time.Now()))
		if len(r.session.Snapshot().Conversations) == 0 {
			fmt.Fprintln(r.out)
		}

	case "/load":
		if len(args) != 1 {
			return false, errors.New("usage: /load <id>")
		}
		ctx, cancel := context.WithTimeout(ctx, r.timeout())
		defer cancel()
		if err := r.session.LoadConversationMessages(ctx, args[0]); err != nil {
			return false, err
		}
		printTranscript(r.out, r.session.Snapshot().Messages)

	case "/delete":
		if len(args) != 1 {
			return false, errors.New("usage: /delete <id>")
		}
		ctx, cancel := context.WithTimeout(ctx, r.timeout())
		defer cancel()
		if err := r.session.DeleteConversation(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Deleted conversation "+args[0]+"."))

	case "/search":
		switch {
		case len(args) == 0:
			r.useSearch = !r.useSearch
		case strings.EqualFold(args[0], "on"):
			r.useSearch = true
		case strings.EqualFold(args[0], "off"):
			r.useSearch = false
		default:
			return false, errors.New("usage: /search [on|off]")
		}
		state := "off"
		if r.useSearch {
			state = "on"
		}
		fmt.Fprintln(r.out, "Web search "+state+".")

	case "/export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		written, err := r.export(path)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Exported to "+written))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// export writes the current conversation to path. The format follows the
// file extension; Markdown is the default.
func (r *repl) export(path string) (string, error) {
	snap := r.session.Snapshot()
	conv, _ := model.FindConversation(snap.Conversations, snap.ConversationID)
	conv.ID = snap.ConversationID

	format := "md"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	exporter, err := export.New(format, nil)
	if err != nil {
		return "", err
	}
	return export.WriteFile(path, export.NewTranscript(conv, snap.Messages), exporter)
}

func (r *repl) timeout() time.Duration {
	if d := r.app.cfg.Server.Timeout.Duration; d > 0 {
		return d
	}
	return 30 * time.Second
}

// printTranscript writes msgs with role labels.
func printTranscript(out io.Writer, msgs []model.ChatMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, DimStyle.Render("(no messages)"))
		return
	}
	for _, m := range msgs {
		label := AssistantStyle.Render(m.Role.DisplayName())
		if m.Role == model.RoleUser {
			label = UserStyle.Render(m.Role.DisplayName())
		}
		if t := m.Time(); !t.IsZero() {
			label += " " + DimStyle.Render(t.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(out, label)
		fmt.Fprintln(out, m.Content)
		fmt.Fprintln(out)
	}
}
