// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// PAIRED HISTORY
// =============================================================================

// PairedExchange is one earlier (input, response) version of an edited message.
type PairedExchange struct {
	UserContent      string `json:"user_content"`
	AssistantContent string `json:"assistant_content"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Retrieval metadata (assistant messages)
	Sources    []Source      `json:"sources,omitempty"`
	Confidence *Confidence   `json:"confidence,omitempty"`
	Disclaimer string        `json:"disclaimer,omitempty"`
	Timings    *Timings      `json:"timings,omitempty"`
	Rewrite    *QueryRewrite `json:"rewrite,omitempty"`

	// Tool invocation. ToolName is set whenever ToolResult or ToolError is.
	ToolName   string      `json:"tool_name,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	ToolError  string      `json:"tool_error,omitempty"`

	// User messages
	Attachments   []Attachment     `json:"attachments,omitempty"`
	PairedHistory []PairedExchange `json:"paired_history,omitempty"`

	// Failed marks the synthetic message shown when a turn could not complete.
	Failed bool `json:"failed,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// HasTool returns true if a tool ran during this message's turn.
func (m *Message) HasTool() bool {
	return m.ToolName != ""
}

// NeedsDisclaimer returns true when the answer is weakly supported.
func (m *Message) NeedsDisclaimer() bool {
	return m.Disclaimer != "" || (m.Confidence != nil && m.Confidence.Level.IsLow())
}

// Versions returns how many versions of this message exist, including the live one.
func (m *Message) Versions() int {
	return len(m.PairedHistory) + 1
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Sources != nil {
		c.Sources = make([]Source, len(m.Sources))
		for i, s := range m.Sources {
			c.Sources[i] = s.clone()
		}
	}
	if m.Confidence != nil {
		conf := *m.Confidence
		c.Confidence = &conf
	}
	if m.Timings != nil {
		t := *m.Timings
		c.Timings = &t
	}
	if m.Rewrite != nil {
		rw := *m.Rewrite
		c.Rewrite = &rw
	}
	if m.ToolResult != nil {
		tr := *m.ToolResult
		if tr.Raw != nil {
			tr.Raw = append([]byte(nil), tr.Raw...)
		}
		if tr.Sources != nil {
			tr.Sources = make([]Source, len(m.ToolResult.Sources))
			for i, s := range m.ToolResult.Sources {
				tr.Sources[i] = s.clone()
			}
		}
		c.ToolResult = &tr
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.PairedHistory != nil {
		c.PairedHistory = append([]PairedExchange(nil), m.PairedHistory...)
	}
	return &c
}

func (s Source) clone() Source {
	if s.Speakers != nil {
		s.Speakers = append([]string(nil), s.Speakers...)
	}
	return s
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
