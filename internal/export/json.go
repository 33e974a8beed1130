// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports conversations to JSON format.
// The document is the full model.Conversation wrapped in an envelope; the
// filtering options only affect Markdown.
type JSONExporter struct {
	options *Options
}

// document is the top-level JSON export.
type document struct {
	Generator    string              `json:"generator"`
	Version      int                 `json:"version"`
	Conversation *model.Conversation `json:"conversation"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a conversation to JSON format.
func (e *JSONExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := checkExportable(conv); err != nil {
		return nil, err
	}
	return json.MarshalIndent(document{Generator: "ragchat", Version: 1, Conversation: conv}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// checkExportable rejects conversations with nothing to write.
func checkExportable(conv *model.Conversation) error {
	switch {
	case conv == nil:
		return ErrNilConversation
	case !conv.Loaded:
		return ErrNotLoaded
	case len(conv.Messages) == 0:
		return ErrEmpty
	}
	return nil
}
