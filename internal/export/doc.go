// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to Markdown or JSON files.
//
// # Key Types
//
//   - Exporter: Format interface (Export, FileExtension, MimeType)
//   - MarkdownExporter: Readable transcript with sources, warnings and earlier versions
//   - JSONExporter: The full conversation model
//   - Options: What to include and where to write
//
// # Usage
//
//	exp := export.ForPath("notes.md", nil)
//	path, err := export.ExportToPath(conv, exp, "notes.md", nil)
//
// Summary-only conversations must be loaded first; exporting one returns
// ErrNotLoaded.
package export
