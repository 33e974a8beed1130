// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"
)

// DefaultTitle is shown for conversations that have no title yet.
const DefaultTitle = "New conversation"

// titleLength is the rune length of auto-generated titles.
const titleLength = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID        ID        `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// ActiveAttachments scope retrieval for the next send.
	ActiveAttachments []Attachment `json:"active_attachments,omitempty"`

	// Loaded is false for a listed conversation whose history has not been fetched.
	Loaded bool `json:"loaded"`

	// MessageCount is the backend's count for summary-only conversations.
	MessageCount int `json:"message_count,omitempty"`
}

// NewConversation creates an empty, loaded conversation with the given ID.
func NewConversation(id ID) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		Loaded:    true,
	}
}

// NewSummary creates a conversation known only from a backend listing.
func NewSummary(id ID, title string, count int, createdAt, updatedAt time.Time) *Conversation {
	return &Conversation{
		ID:           id,
		Title:        title,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		MessageCount: count,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	if c.MessageCount < len(c.Messages) {
		c.MessageCount = len(c.Messages)
	}
	c.updateTitle()
}

// SetMessages replaces the full history.
func (c *Conversation) SetMessages(msgs []*Message) {
	c.Messages = msgs
	c.MessageCount = len(msgs)
	c.Loaded = true
	c.updateTitle()
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserMessage returns the most recent user message.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// MessageIndex returns the position of the message with id, or -1.
func (c *Conversation) MessageIndex(id string) int {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// MessageByID returns a message by its ID.
func (c *Conversation) MessageByID(id string) *Message {
	if i := c.MessageIndex(id); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// PAIRED HISTORY NAVIGATION
// =============================================================================

// Exchange returns the (input, response) pair shown for version of the user
// message msgID. Versions below len(PairedHistory) are historical; the last
// version is the live pair. Out-of-range versions are clamped. It never
// mutates the conversation.
func (c *Conversation) Exchange(msgID string, version int) (PairedExchange, bool) {
	i := c.MessageIndex(msgID)
	if i < 0 {
		return PairedExchange{}, false
	}
	msg := c.Messages[i]

	if version < 0 {
		version = 0
	}
	if version < len(msg.PairedHistory) {
		return msg.PairedHistory[version], true
	}

	live := PairedExchange{UserContent: msg.Content}
	if i+1 < len(c.Messages) && c.Messages[i+1].Role == RoleAssistant {
		live.AssistantContent = c.Messages[i+1].Content
	}
	return live, true
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(titleLength)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

// Preview returns a short preview of the conversation.
func (c *Conversation) Preview() string {
	if last := c.LastUserMessage(); last != nil {
		return last.Preview(100)
	}
	if !c.Loaded {
		return ""
	}
	return "Empty conversation"
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	if c.ActiveAttachments != nil {
		clone.ActiveAttachments = append([]Attachment(nil), c.ActiveAttachments...)
	}
	return &clone
}
