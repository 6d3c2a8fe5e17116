// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// SEARCH / PING COMMANDS
// =============================================================================

func (a *app) searchCommand() *cobra.Command {
	var (
		maxResults int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:     "search <query...>",
		Short:   "Run a web search through the chat service",
		Example: `  $ chatstream search --max 3 golang context cancellation`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxResults <= 0 {
				maxResults = a.cfg.Chat.SearchResults
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			results, err := a.directory().Search(ctx, joinArgs(args), maxResults)
			if err != nil {
				return err
			}
			if asJSON {
				if results == nil {
					results = []model.SearchResult{}
				}
				return writeJSON(cmd.OutOrStdout(), results)
			}
			printSearchResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "maximum results (default: chat.search_results)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printSearchResults(cmd *cobra.Command, results []model.SearchResult) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}
	snippet := lipgloss.NewStyle().PaddingLeft(4).Width(terminalWidth(out) - 2)
	for i, r := range results {
		fmt.Fprintln(out, TitleStyle.Render(strconv.Itoa(i+1)+". "+r.Title))
		fmt.Fprintln(out, "    "+DimStyle.Render(r.URL))
		if r.Snippet != "" {
			fmt.Fprintln(out, snippet.Render(r.Snippet))
		}
		fmt.Fprintln(out)
	}
}

func (a *app) pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the chat service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.requestContext(cmd)
			defer cancel()

			start := time.Now()
			hs, err := a.directory().Health(ctx)
			if err != nil {
				return err
			}
			elapsed := time.Now().Sub(start)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, SuccessStyle.Render("[OK]")+" "+a.cfg.Server.BaseURL)
			fmt.Fprintln(out, RenderLabel("Status")+hs.Status)
			if !hs.Timestamp.IsZero() {
				fmt.Fprintln(out, RenderLabel("Server time")+hs.Timestamp.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintln(out, RenderLabel("Latency")+formatLatency(elapsed))
			return nil
		},
	}
}
