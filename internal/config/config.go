// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatstream configuration.
type Config struct {
	// Chat service location and timeouts
	Server ServerConfig `toml:"server" json:"server"`

	// Message defaults
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Terminal UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// Log output configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ServerConfig locates the chat service.
type ServerConfig struct {
	// BaseURL is the service root, e.g. http://localhost:8000/api
	BaseURL string `toml:"base_url" json:"base_url"`
	// Timeout bounds each non-streaming request
	Timeout Duration `toml:"timeout" json:"timeout"`
	// StreamIdleTimeout aborts a reply when no bytes arrive for this long (0 = never)
	StreamIdleTimeout Duration `toml:"stream_idle_timeout" json:"stream_idle_timeout"`
}

// ChatConfig holds defaults for sending messages.
type ChatConfig struct {
	// UseSearch enables web search for new messages
	UseSearch bool `toml:"use_search" json:"use_search"`
	// SearchResults is the result count for the search command (1-20)
	SearchResults int `toml:"search_results" json:"search_results"`
	// HistoryFile stores REPL input history
	HistoryFile string `toml:"history_file" json:"history_file"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// MaxFPS caps re-rendering while a reply streams
	MaxFPS int `toml:"max_fps" json:"max_fps"`
	// Markdown renders assistant replies as markdown
	Markdown bool `toml:"markdown" json:"markdown"`
	// WordWrap wraps rendered text at this column (0 = terminal width)
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json"
	Format string `toml:"format" json:"format"`
	// File is the log path; empty uses the default location
	File string `toml:"file" json:"file"`
}

// Duration is a time.Duration stored as a string such as "30s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

const (
	// FileName is the config file name inside the app directory.
	FileName = "config.toml"

	// DefaultBaseURL is the address of a locally running chat service.
	DefaultBaseURL = "http://localhost:8000/api"
)

// Valid enumerations.
var (
	validThemes    = []string{"dark", "light", "auto"}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validLogFormat = []string{"text", "json"}
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: DefaultBaseURL,
			Timeout: Duration{30 * time.Second},
		},
		Chat: ChatConfig{
			UseSearch:     false,
			SearchResults: 5,
			HistoryFile:   filepath.Join("~", util.AppDirName, "history"),
		},
		UI: UIConfig{
			Theme:    "auto",
			MaxFPS:   30,
			Markdown: true,
			WordWrap: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// DefaultPath returns the config file path, honoring CHATSTREAM_CONFIG.
func DefaultPath() string {
	if p := os.Getenv("CHATSTREAM_CONFIG"); p != "" {
		return util.ExpandHome(p)
	}
	return filepath.Join(util.AppDir(), FileName)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config at path, or at DefaultPath when path is empty.
// A missing file yields the defaults. Environment overrides are applied
// before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromFile(path)
}

// LoadFromFile reads and validates the config at path. The file must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile returns the settings stored at path without environment
// overrides or validation, for editing and saving back. A missing file
// yields the defaults.
func ReadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return decodeFile(path)
}

// decodeFile decodes path over the defaults so omitted keys keep their
// default values.
func decodeFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path as TOML, or to DefaultPath when path is empty.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	var buf bytes.Buffer
	buf.WriteString("# chatstream configuration file\n")
	buf.WriteString("# Generated by chatstream - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// SECURITY: Write with restrictive permissions (0600 = owner read/write only)
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Host == "" {
		add("server.base_url", c.Server.BaseURL, "must be an absolute URL")
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("server.base_url", c.Server.BaseURL, "scheme must be http or https")
	}
	if c.Server.Timeout.Duration < 0 {
		add("server.timeout", c.Server.Timeout, "must not be negative")
	}
	if c.Server.StreamIdleTimeout.Duration < 0 {
		add("server.stream_idle_timeout", c.Server.StreamIdleTimeout, "must not be negative")
	}

	if c.Chat.SearchResults < 1 || c.Chat.SearchResults > 20 {
		add("chat.search_results", c.Chat.SearchResults, "must be between 1 and 20")
	}

	if !contains(validThemes, c.UI.Theme) {
		add("ui.theme", c.UI.Theme, "must be one of "+strings.Join(validThemes, ", "))
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 120 {
		add("ui.max_fps", c.UI.MaxFPS, "must be between 1 and 120")
	}
	if c.UI.WordWrap < 0 {
		add("ui.word_wrap", c.UI.WordWrap, "must not be negative")
	}

	if !contains(validLevels, strings.ToLower(c.Logging.Level)) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(validLevels, ", "))
	}
	if !contains(validLogFormat, strings.ToLower(c.Logging.Format)) {
		add("logging.format", c.Logging.Format, "must be one of "+strings.Join(validLogFormat, ", "))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHATSTREAM_BASE_URL: overrides server.base_url
//   - CHATSTREAM_USE_SEARCH: "1" or "true" enables chat.use_search
//   - CHATSTREAM_LOG_LEVEL: overrides logging.level
//   - NO_COLOR: any value forces ui.markdown off
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATSTREAM_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CHATSTREAM_USE_SEARCH"); v != "" {
		c.Chat.UseSearch = parseBool(v)
	}
	if v := os.Getenv("CHATSTREAM_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.UI.Markdown = false
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.base_url").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct tree along key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(Duration{}) {
				return reflect.Value{}, fmt.Errorf("%s is a section, not a value", key)
			}
			return field, nil
		}

		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an arbitrary value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(strVal))
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				switch strings.ToLower(strVal) {
				case "yes", "on":
					boolVal = true
				case "no", "off":
					boolVal = false
				default:
					return fmt.Errorf("invalid boolean value: %q", strVal)
				}
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	if d, ok := value.(time.Duration); ok && field.Type() == reflect.TypeOf(Duration{}) {
		field.Set(reflect.ValueOf(Duration{d}))
		return nil
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns all configuration keys in dot notation, in declaration order.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// TOML returns the configuration in its file format.
func (c *Config) TOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}
