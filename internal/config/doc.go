// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatstream.
//
// Configuration is stored as TOML, with sensible defaults, environment
// variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Chat service location and timeouts
//   - ChatConfig: Defaults for sending messages and searching
//   - UIConfig: Terminal UI appearance
//   - LoggingConfig: Log level, format and file
//   - Watcher: Reloads the file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command line flags (applied by the caller)
//   - Environment variables (CHATSTREAM_*)
//   - ~/.chatstream/config.toml, or the file named by CHATSTREAM_CONFIG
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	base := cfg.Server.BaseURL
package config
