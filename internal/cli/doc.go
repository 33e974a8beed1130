// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ragchat command line: argument parsing, the
// one-shot commands and the line-mode chat REPL.
//
// # Commands
//
//   - (none): full-screen chat, started by main
//   - chat: line-mode chat with slash commands
//   - ask: one question, streamed to stdout
//   - upload: upload documents and wait for processing
//   - export: write a conversation as Markdown or JSON
//   - config: show and edit the configuration file
//   - version, help
//
// # Usage
//
//	cmd, args := cli.Parse()
//	os.Exit(cli.Run(cmd, args))
//
// Every command accepts --json, which replaces human output with a single
// JSONResponse on stdout. Exit codes are listed in errors.go.
package cli
