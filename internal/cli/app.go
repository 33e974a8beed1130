// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// APP
// =============================================================================

// App bundles everything a command needs: the effective configuration, the
// backend client, the optional cache and the session built on them.
type App struct {
	Args       Args
	ConfigPath string
	Client     *backend.Client
	Cache      *storage.Cache // nil when disabled or unavailable
	Chat       *session.Chat
	Logger     *log.Logger

	mu      sync.RWMutex
	config  *config.Config
	closers []io.Closer
}

// AppOptions customizes NewApp.
type AppOptions struct {
	// Listener receives session events.
	Listener session.Listener

	// LogToFile forces file logging even with --verbose, for the TUI.
	LogToFile bool

	// RequireBackend fails with config.ErrNoBackend when no URL is set.
	RequireBackend bool
}

// LoadConfig loads the config file named by --config, or the default one,
// and applies flag overrides on top.
func LoadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = args.ConfigPath
		err  error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}
	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// applyFlags puts command-line overrides on top of the file and environment.
func applyFlags(cfg *config.Config, args Args) {
	if args.URL != "" {
		cfg.Backend.URL = args.URL
	}
	if args.Token != "" {
		cfg.Backend.Token = args.Token
	}
	if args.DocType != "" {
		cfg.Chat.DocType = args.DocType
	}
	if args.NoHistory {
		cfg.Chat.IncludeHistory = false
	}
	if args.NoCache {
		cfg.Cache.Enabled = false
	}
}

// SessionDefaults returns the request defaults configured in cfg.
func SessionDefaults(cfg *config.Config) session.Defaults {
	docType, err := backend.ParseDocType(cfg.Chat.DocType)
	if err != nil {
		docType = backend.DocTypeAll
	}
	return session.Defaults{
		IncludeHistory:  cfg.Chat.IncludeHistory,
		DocType:         docType,
		MeetingCategory: cfg.Chat.MeetingCategory,
	}
}

// NewApp loads configuration and wires the backend client, cache and session.
// Close must be called when done.
func NewApp(args Args, opts AppOptions) (*App, error) {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return nil, err
	}
	if opts.RequireBackend && cfg.Backend.URL == "" {
		return nil, config.ErrNoBackend
	}

	app := &App{Args: args, ConfigPath: path, config: cfg}

	logPath := ""
	if !args.Verbose || opts.LogToFile {
		if logPath, err = cfg.LogPath(); err != nil {
			return nil, err
		}
	}
	logger, closer, err := util.NewLogger(logPath)
	if err != nil {
		return nil, err
	}
	app.Logger = logger
	app.closers = append(app.closers, closer)

	app.Client = backend.New(backend.Config{
		BaseURL:   cfg.Backend.URL,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Timeout(),
		UserAgent: "ragchat/" + Version,
		Logger:    logger,
	})

	sessOpts := session.Options{
		Backend:  app.Client,
		Logger:   logger,
		Defaults: SessionDefaults(cfg),
		Poll:     cfg.PollOptions(),
		Listener: opts.Listener,
	}

	if cfg.Cache.Enabled {
		if cache, err := openCache(cfg); err != nil {
			logger.Printf("WARN cache disabled: %v", err)
		} else {
			app.Cache = cache
			app.closers = append(app.closers, cache)
			sessOpts.Cache = cache
		}
	}

	app.Chat = session.New(sessOpts)
	logger.Printf("ragchat %s started, backend %q, cache %v", Version, cfg.Backend.URL, app.Cache != nil)
	return app, nil
}

func openCache(cfg *config.Config) (*storage.Cache, error) {
	path, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Apply switches to a reloaded configuration. The token and request
// defaults take effect immediately; the backend URL and cache location
// need a restart.
func (a *App) Apply(cfg *config.Config) {
	applyFlags(cfg, a.Args)

	a.mu.Lock()
	prev := a.config
	a.config = cfg
	a.mu.Unlock()

	a.Client.SetToken(cfg.Backend.Token)
	a.Chat.SetDefaults(SessionDefaults(cfg), cfg.PollOptions())
	if cfg.Backend.URL != prev.Backend.URL {
		a.Logger.Printf("WARN backend.url changed to %q; restart to use it", cfg.Backend.URL)
	}
	a.Logger.Printf("config reloaded from %s", a.ConfigPath)
}

// Close releases the cache and log file.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// Update applies a session-only change to the effective configuration
// without touching the config file.
func (a *App) Update(change func(cfg *config.Config)) {
	a.mu.Lock()
	cfg := a.config.Clone()
	change(cfg)
	a.config = cfg
	a.mu.Unlock()

	a.Chat.SetDefaults(SessionDefaults(cfg), cfg.PollOptions())
}
