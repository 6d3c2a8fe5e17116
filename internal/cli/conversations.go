// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// CONVERSATIONS COMMAND
// =============================================================================

func (a *app) conversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List, show, delete and export stored conversations",
	}
	cmd.AddCommand(
		a.conversationsListCommand(),
		a.conversationsShowCommand(),
		a.conversationsDeleteCommand(),
		a.conversationsExportCommand(),
	)
	return cmd
}

func (a *app) conversationsListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			convs, err := a.directory().List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				if convs == nil {
					convs = []model.Conversation{}
				}
				return writeJSON(cmd.OutOrStdout(), convs)
			}
			out := model.FormatConversationList(convs, time.Now())
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (a *app) conversationsShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			msgs, err := a.directory().Messages(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				if msgs == nil {
					msgs = []model.ChatMessage{}
				}
				return writeJSON(cmd.OutOrStdout(), msgs)
			}
			printTranscript(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (a *app) conversationsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			if err := a.directory().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted conversation "+args[0]))
			return nil
		},
	}
}

func (a *app) conversationsExportCommand() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation to Markdown or JSON",
		Example: `  $ chatstream conversations export 3f2a... -o notes.md
  $ chatstream conversations export 3f2a... --format json -o ./exports/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.New(format, nil)
			if err != nil {
				return &UsageError{Reason: err.Error()}
			}

			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			dir := a.directory()
			msgs, err := dir.Messages(ctx, args[0])
			if err != nil {
				return err
			}

			// The summary only supplies the stored title.
			conv := model.Conversation{ID: args[0]}
			if convs, err := dir.List(ctx); err == nil {
				if found, ok := model.FindConversation(convs, args[0]); ok {
					conv = found
				}
			} else {
				a.logger.Debug("conversation list unavailable for export", "error", err)
			}

			written, err := export.WriteFile(output, export.NewTranscript(conv, msgs), exporter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported to "+written))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "export format: md or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file or directory (default: generated name)")
	return cmd
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
