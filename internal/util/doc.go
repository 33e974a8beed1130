// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides helpers shared by the ragchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadWidth: Column-aware layout via go-runewidth
//   - Normalize, FoldContains: NFC normalisation for titles and search
//
// Files and Logging:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - NewLogger, DiscardLogger: stdlib loggers for file or test output
//
// # Usage
//
//	label := util.TruncateWidth(conv.GetTitle(), 28)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
