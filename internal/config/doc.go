// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles ragchat configuration.
//
// Configuration lives in ~/.ragchat/config.toml (JSON is accepted as
// config.json). Values are layered: defaults, then the file, then RAGCHAT_*
// environment variables.
//
// # Sections
//
//   - [backend]: url, token, timeout_secs
//   - [chat]: include_history, doc_type, meeting_category
//   - [documents]: poll_interval_ms, max_backoff_secs, max_wait_secs
//   - [cache]: enabled, path
//   - [ui]: theme, markdown, show_timings
//   - [log]: path
//
// # Usage
//
//	cfg, path, err := config.Load()
//	err = cfg.Set("backend.url", "https://rag.example.com")
//	err = config.Save(cfg, path)
//
// The TUI picks up edits, such as a rotated token, through Watch.
package config
