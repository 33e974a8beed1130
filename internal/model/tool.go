// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "encoding/json"

// ToolStatus is the phase of a tool invocation within a turn.
type ToolStatus string

const (
	ToolIdle       ToolStatus = ""
	ToolStarting   ToolStatus = "starting"
	ToolProcessing ToolStatus = "processing"
	ToolComplete   ToolStatus = "complete"
	ToolError      ToolStatus = "error"
)

// IsTerminal returns true for complete and error.
func (s ToolStatus) IsTerminal() bool {
	return s == ToolComplete || s == ToolError
}

// ToolState is the live status of the tool invoked in the current turn.
type ToolState struct {
	IsActive bool            `json:"is_active"`
	ToolName string          `json:"tool_name,omitempty"`
	Status   ToolStatus      `json:"status,omitempty"`
	Message  string          `json:"message,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Result   *ToolResult     `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// canAdvance encodes starting -> processing* -> (complete | error).
func canAdvance(from, to ToolStatus) bool {
	switch from {
	case ToolIdle:
		return to == ToolStarting
	case ToolStarting, ToolProcessing:
		return to == ToolProcessing || to == ToolComplete || to == ToolError
	default:
		return false
	}
}

// Advance moves the state to next. It returns false and leaves the state
// unchanged if the transition is not allowed.
func (t *ToolState) Advance(next ToolStatus) bool {
	if !canAdvance(t.Status, next) {
		return false
	}
	t.Status = next
	t.IsActive = !next.IsTerminal()
	return true
}

// Reset makes the state inactive for the next turn.
func (t *ToolState) Reset() {
	*t = ToolState{}
}
