// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/logging"
	"github.com/jeranaias/chatstream/internal/mockserver"
)

// =============================================================================
// MOCK SERVER COMMAND
// =============================================================================

func (a *app) mockServerCommand() *cobra.Command {
	var (
		addr       string
		prefix     string
		chunkSize  int
		chunkDelay time.Duration
		rateLimit  float64
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local mock of the chat service",
		Long: `Run an in-memory chat service that echoes messages back as a stream.
Useful for trying chatstream without a backend. Stop it with Ctrl-C.`,
		Example: `  $ chatstream mock-server --addr 127.0.0.1:8000 --chunk-delay 50ms`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLoad: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: logging.ParseLevel(a.logLevel),
			}))

			srv := mockserver.New().
				WithPrefix(prefix).
				WithReplier(mockserver.EchoReplier(chunkSize)).
				WithChunkDelay(chunkDelay).
				WithLogger(logger)
			if rateLimit > 0 {
				srv = srv.WithRateLimit(rateLimit, int(rateLimit)+1)
			}

			l, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Mock chat service listening on http://"+l.Addr().String()+srv.Prefix()))
			return srv.Serve(ctx, l)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", mockserver.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&prefix, "prefix", mockserver.DefaultPrefix, "API path prefix")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", mockserver.DefaultChunkRunes, "runes per streamed chunk")
	cmd.Flags().DurationVar(&chunkDelay, "chunk-delay", 30*time.Millisecond, "pause between chunks")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "requests per second (0 = unlimited)")
	return cmd
}
