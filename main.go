// ragchat - chat with your meetings and documents from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/cli"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/ui/chat"
	"github.com/jeranaias/ragchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference for async session events and config reloads
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	if cmd != cli.CmdTUI {
		os.Exit(cli.Run(cmd, args))
	}
	os.Exit(runTUI(args))
}

// send delivers msg to the running program, dropping it before start.
func send(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// runTUI starts the full-screen interface and returns the exit code.
func runTUI(args cli.Args) int {
	events := chat.NewEventQueue()

	app, err := cli.NewApp(args, cli.AppOptions{
		Listener:       events.Listener(),
		LogToFile:      true,
		RequireBackend: true,
	})
	if err != nil {
		cli.DisplayError("tui", err, false)
		return cli.GetExitCode(err)
	}
	defer app.Close()

	cfg := app.Config()
	theme := styles.NewTheme(cfg.UI.Theme)

	m := chat.New(chat.Options{
		Chat:        app.Chat,
		Theme:       theme,
		Markdown:    cfg.UI.Markdown,
		ShowTimings: cfg.UI.ShowTimings,
		BackendURL:  cfg.Backend.URL,
		OnConfig:    app.Apply,
		Logger:      app.Logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go events.Run(ctx, send)

	err = config.Watch(ctx, app.ConfigPath,
		func(c *config.Config) {
			if err := c.Validate(); err != nil {
				send(chat.ConfigErrorMsg{Err: err})
				return
			}
			send(chat.ConfigReloadedMsg{Config: c})
		},
		func(err error) { send(chat.ConfigErrorMsg{Err: err}) },
	)
	if err != nil {
		app.Logger.Printf("WARN config watch disabled: %v", err)
	}

	if _, err := p.Run(); err != nil {
		app.Logger.Printf("tui: %v", err)
		cli.DisplayError("tui", err, false)
		return 1
	}
	return cli.ExitSuccess
}
