// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides helpers shared by the ragchat packages.
package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// LogFlags are the flags used for every ragchat logger.
const LogFlags = log.LstdFlags | log.Lmicroseconds

// NewLogger opens path for appending and returns a logger writing to it,
// plus the file so the caller can close it. An empty path logs to stderr.
//
// The TUI owns the terminal, so interactive runs always log to a file.
func NewLogger(path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		return log.New(os.Stderr, "ragchat: ", LogFlags), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, "", LogFlags), f, nil
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return DiscardLogger()
	}
	return l
}
