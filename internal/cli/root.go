// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/directory"
	"github.com/jeranaias/chatstream/internal/logging"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/stream"
)

// Version information, set by main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// skipLoad marks commands that must run even when the config file is
// invalid. They load it themselves if they need it.
const skipLoad = "chatstream/skip-load"

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app holds what every command shares: global flags, the loaded config,
// and the logger.
type app struct {
	configPath string
	baseURL    string
	logLevel   string
	noColor    bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	a := &app{}
	root := a.rootCommand()
	err := root.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), ErrorStyle.Render("Error:"), err)
	}
	return ExitCode(err)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatstream",
		Short: "Terminal client for a streaming chat service",
		Long: `chatstream talks to a chat service that streams assistant replies as
server-sent events. Without a subcommand it opens the full-screen chat.`,
		Example: `  # Open the chat screen
  $ chatstream

  # Ask one question with web search
  $ chatstream ask --search "what's new in Go 1.23?"

  # Try it without a backend
  $ chatstream mock-server &
  $ chatstream`,
		Version:           Version,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runTUI,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("chatstream %s (commit %s, built %s)\n", Version, GitCommit, BuildDate))

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $CHATSTREAM_CONFIG or ~/.chatstream/config.toml)")
	flags.StringVar(&a.baseURL, "base-url", "", "chat service base URL")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.chatCommand(),
		a.askCommand(),
		a.conversationsCommand(),
		a.searchCommand(),
		a.pingCommand(),
		a.configCommand(),
		a.mockServerCommand(),
	)
	return root
}

// setup resolves the config path, loads the config, applies flag
// overrides and starts logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	configureColors(cmd.OutOrStdout(), a.noColor)

	if a.configPath == "" {
		a.configPath = config.DefaultPath()
	}
	a.logger = slog.Default()
	if cmd.Annotations[skipLoad] == "true" {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &ConfigError{Path: a.configPath, Err: err}
	}
	if a.baseURL != "" {
		cfg.Server.BaseURL = strings.TrimSpace(a.baseURL)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(a.logLevel)
	}
	if a.noColor {
		cfg.UI.Markdown = false
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	a.cfg = cfg

	logger, closer, err := logging.Init(cfg.Logging)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("warning: logging disabled: "+err.Error()))
	}
	a.logger = logger
	a.logCloser = closer
	a.logger.Debug("config loaded", "path", a.configPath, "base_url", cfg.Server.BaseURL)
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

// =============================================================================
// SERVICE CLIENTS
// =============================================================================

func (a *app) directory() *directory.Client {
	return directory.New(a.cfg.Server.BaseURL).
		WithTimeout(a.cfg.Server.Timeout.Duration).
		WithLogger(a.logger)
}

func (a *app) transport() *stream.Transport {
	return stream.New(a.cfg.Server.BaseURL).
		WithIdleTimeout(a.cfg.Server.StreamIdleTimeout.Duration).
		WithLogger(a.logger)
}

func (a *app) newSession() *session.Session {
	return session.New(session.FromTransport(a.transport()), a.directory(), session.Config{
		RefreshTimeout: a.cfg.Server.Timeout.Duration,
		Logger:         a.logger,
	})
}

// requestContext bounds a directory call from a command.
func (a *app) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := a.cfg.Server.Timeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// joinArgs joins positional words into one string.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
