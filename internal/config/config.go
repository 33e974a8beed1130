// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles ragchat configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the ragchat configuration.
type Config struct {
	Backend   BackendConfig   `toml:"backend" json:"backend"`
	Chat      ChatConfig      `toml:"chat" json:"chat"`
	Documents DocumentsConfig `toml:"documents" json:"documents"`
	Cache     CacheConfig     `toml:"cache" json:"cache"`
	UI        UIConfig        `toml:"ui" json:"ui"`
	Log       LogConfig       `toml:"log" json:"log"`
}

// BackendConfig locates the RAG service.
type BackendConfig struct {
	URL         string `toml:"url" json:"url"`
	Token       string `toml:"token" json:"token"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// ChatConfig holds the defaults sent with every chat request.
type ChatConfig struct {
	IncludeHistory  bool   `toml:"include_history" json:"include_history"`
	DocType         string `toml:"doc_type" json:"doc_type"`
	MeetingCategory string `toml:"meeting_category" json:"meeting_category"`
}

// DocumentsConfig controls upload status polling.
type DocumentsConfig struct {
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`
	MaxBackoffSecs int `toml:"max_backoff_secs" json:"max_backoff_secs"`
	MaxWaitSecs    int `toml:"max_wait_secs" json:"max_wait_secs"`
}

// CacheConfig controls the local conversation cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// UIConfig controls presentation.
type UIConfig struct {
	Theme       string `toml:"theme" json:"theme"` // auto, dark, light
	Markdown    bool   `toml:"markdown" json:"markdown"`
	ShowTimings bool   `toml:"show_timings" json:"show_timings"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Path string `toml:"path" json:"path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			TimeoutSecs: int(backend.DefaultTimeout / time.Second),
		},
		Chat: ChatConfig{
			IncludeHistory: true,
			DocType:        string(backend.DocTypeAll),
		},
		Documents: DocumentsConfig{
			PollIntervalMs: int(backend.DefaultPollInterval / time.Millisecond),
			MaxBackoffSecs: int(backend.DefaultMaxBackoff / time.Second),
			MaxWaitSecs:    int(backend.DefaultMaxWait / time.Second),
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
	}
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Chat.DocType == "" {
		c.Chat.DocType = d.Chat.DocType
	}
	if c.Documents.PollIntervalMs == 0 {
		c.Documents.PollIntervalMs = d.Documents.PollIntervalMs
	}
	if c.Documents.MaxBackoffSecs == 0 {
		c.Documents.MaxBackoffSecs = d.Documents.MaxBackoffSecs
	}
	if c.Documents.MaxWaitSecs == 0 {
		c.Documents.MaxWaitSecs = d.Documents.MaxWaitSecs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// Timeout is the non-streaming request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

// PollOptions returns the document polling settings.
func (c *Config) PollOptions() backend.PollOptions {
	return backend.PollOptions{
		Interval:   time.Duration(c.Documents.PollIntervalMs) * time.Millisecond,
		MaxBackoff: time.Duration(c.Documents.MaxBackoffSecs) * time.Second,
		MaxWait:    time.Duration(c.Documents.MaxWaitSecs) * time.Second,
	}
}

// CachePath returns the configured cache path or the default one.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return expandHome(c.Cache.Path)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// LogPath returns the configured log path or the default one.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return expandHome(c.Log.Path)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ragchat.log"), nil
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ragchat configuration directory, ~/.ragchat.
// RAGCHAT_HOME overrides it.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RAGCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ragchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600; it holds the token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the TOML config, falling back to JSON, then to defaults.
// Environment overrides are applied last. The returned path is the file that
// was read, or the TOML path when none exists.
func Load() (*Config, string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		cfg, err := LoadFromPath(tomlPath)
		return cfg, tomlPath, err
	}

	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		cfg, err := LoadFromPath(jsonPath)
		return cfg, jsonPath, err
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, tomlPath, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, tomlPath, nil
}

// LoadTOML decodes a TOML file onto cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file onto cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads, overrides, defaults and validates the file at path.
// Files ending in .json are read as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# ragchat configuration file")
	fmt.Fprintln(&buf, "# Generated by ragchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg to path as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Save writes cfg to path in the format its extension implies.
func Save(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns all problems at once as
// ValidateErrors. An empty backend URL is allowed here; commands that talk
// to the backend report it.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		switch {
		case err != nil:
			add("backend.url", "invalid URL: %v", err)
		case u.Scheme != "http" && u.Scheme != "https":
			add("backend.url", "scheme must be http or https, got %q", u.Scheme)
		case u.Host == "":
			add("backend.url", "missing host")
		}
	}
	if c.Backend.TimeoutSecs < 1 || c.Backend.TimeoutSecs > 600 {
		add("backend.timeout_secs", "must be between 1 and 600, got %d", c.Backend.TimeoutSecs)
	}

	if _, err := backend.ParseDocType(c.Chat.DocType); err != nil {
		add("chat.doc_type", "%v", err)
	}

	if c.Documents.PollIntervalMs < 100 {
		add("documents.poll_interval_ms", "must be at least 100, got %d", c.Documents.PollIntervalMs)
	}
	if c.Documents.MaxBackoffSecs < 1 {
		add("documents.max_backoff_secs", "must be at least 1, got %d", c.Documents.MaxBackoffSecs)
	}
	if c.Documents.MaxWaitSecs < 1 {
		add("documents.max_wait_secs", "must be at least 1, got %d", c.Documents.MaxWaitSecs)
	}

	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		add("ui.theme", "invalid theme %q, must be one of: auto, dark, light", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - RAGCHAT_URL: backend.url
//   - RAGCHAT_TOKEN: backend.token
//   - RAGCHAT_DOC_TYPE: chat.doc_type
//   - RAGCHAT_NO_HISTORY: "1" or "true" disables chat.include_history
//   - RAGCHAT_NO_CACHE: "1" or "true" disables the cache
//   - RAGCHAT_THEME: ui.theme
//   - RAGCHAT_LOG: log.path
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RAGCHAT_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("RAGCHAT_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("RAGCHAT_DOC_TYPE"); v != "" {
		c.Chat.DocType = v
	}
	if v := os.Getenv("RAGCHAT_NO_HISTORY"); v != "" {
		c.Chat.IncludeHistory = !isTrue(v)
	}
	if v := os.Getenv("RAGCHAT_NO_CACHE"); v != "" {
		c.Cache.Enabled = !isTrue(v)
	}
	if v := os.Getenv("RAGCHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("RAGCHAT_LOG"); v != "" {
		c.Log.Path = v
	}
}

func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get returns the value at a dotted TOML key such as "backend.url".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the field at a dotted TOML key.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", key, value)
		}
		field.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", key, value)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("%s: unsupported type %s", key, field.Type())
	}
	return nil
}

// lookup walks the struct by toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(strings.TrimSpace(key), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return reflect.Value{}, fmt.Errorf("invalid key %q (want section.name)", key)
	}
	v := reflect.ValueOf(c).Elem()
	for _, part := range parts {
		f, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown config key %q", key)
		}
		v = f
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%q is a section", key)
	}
	return v, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return tag
}

// Keys returns every settable key in dot notation, sorted.
func Keys() []string {
	var keys []string
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		section := root.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, tomlName(section)+"."+tomlName(section.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as TOML with the token masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.Backend.Token != "" {
		masked.Backend.Token = MaskSecret(masked.Backend.Token)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// MaskSecret keeps the last four characters of s.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// ErrNoBackend is returned by commands that need a backend URL.
var ErrNoBackend = errors.New("backend.url is not set (use `ragchat config set backend.url <url>` or RAGCHAT_URL)")
