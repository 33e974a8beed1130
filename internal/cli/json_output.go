// json_output.go - Machine-readable output for scripts.
//
// Every command accepts --json and then prints exactly one JSONResponse on
// stdout; human-readable progress goes to stderr.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// JSONResponse is the response envelope for all commands.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response. data may carry a
// partial result, e.g. the failure message of a turn.
func NewJSONErrorResponse(command string, err error, data any) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Data:      data,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
func (r *JSONResponse) Print() error {
	return outputJSON(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// StderrPrint prints a message to stderr (for human-readable output in JSON mode).
func StderrPrint(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AskData represents the data returned by the ask command.
type AskData struct {
	ConversationID string              `json:"conversation_id,omitempty"`
	MessageID      string              `json:"message_id"`
	Answer         string              `json:"answer"`
	Failed         bool                `json:"failed,omitempty"`
	Sources        []model.Source      `json:"sources,omitempty"`
	Confidence     *model.Confidence   `json:"confidence,omitempty"`
	Disclaimer     string              `json:"disclaimer,omitempty"`
	Timings        *model.Timings      `json:"timings,omitempty"`
	Rewrite        *model.QueryRewrite `json:"rewrite,omitempty"`
	ToolName       string              `json:"tool_name,omitempty"`
	ToolResult     *model.ToolResult   `json:"tool_result,omitempty"`
	ToolError      string              `json:"tool_error,omitempty"`
	Attachments    []model.Attachment  `json:"attachments,omitempty"`
	DurationMs     int64               `json:"duration_ms"`
}

// newAskData builds AskData from a finished turn.
func newAskData(convID model.ID, msg *model.Message, attachments []model.Attachment, elapsed time.Duration) AskData {
	data := AskData{
		Attachments: attachments,
		DurationMs:  elapsed.Milliseconds(),
	}
	if convID.IsConfirmed() {
		data.ConversationID = convID.String()
	}
	if msg != nil {
		data.MessageID = msg.ID
		data.Answer = msg.Content
		data.Failed = msg.Failed
		data.Sources = msg.Sources
		data.Confidence = msg.Confidence
		data.Disclaimer = msg.Disclaimer
		data.Timings = msg.Timings
		data.Rewrite = msg.Rewrite
		data.ToolName = msg.ToolName
		data.ToolResult = msg.ToolResult
		data.ToolError = msg.ToolError
	}
	return data
}

// UploadData represents one uploaded file.
type UploadData struct {
	Path       string                 `json:"path"`
	DocumentID string                 `json:"document_id,omitempty"`
	Filename   string                 `json:"filename"`
	Size       int64                  `json:"size"`
	Status     model.AttachmentStatus `json:"status"`
	Error      string                 `json:"error,omitempty"`
}

// ExportData represents the result of the export command.
type ExportData struct {
	ConversationID string `json:"conversation_id"`
	Format         string `json:"format"`
	Path           string `json:"path"`
	Messages       int    `json:"messages"`
}

// ConfigData represents the data returned by config show.
type ConfigData struct {
	Path   string         `json:"config_path"`
	Values map[string]any `json:"values"`
}
