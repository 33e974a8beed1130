// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-session list of conversations and their messages.
package store

import (
	"github.com/jeranaias/ragchat/internal/model"
)

// Repository is the conversation store used by the session layer. Every
// method is atomic. Conversations and messages passed in are copied, and
// conversations returned are copies; callers never share memory with the
// store.
type Repository interface {
	// CreateProvisional inserts a new conversation at the head of the list
	// with first as its only message, replacing the draft if there is one.
	CreateProvisional(first *model.Message) model.ID

	// StartDraft ensures exactly one draft conversation exists, at the head.
	StartDraft() model.ID

	// Promote renames oldID to the confirmed newID, keeping history and list
	// position. Later lookups by oldID resolve to newID. Promoting an unknown or
	// already promoted ID is a no-op and returns false.
	Promote(oldID, newID model.ID) bool

	// Append adds msg to the conversation and bumps UpdatedAt. Messages for
	// unknown or deleted conversations are dropped and false is returned.
	Append(convID model.ID, msg *model.Message) bool

	// RewriteMessageID renames a message wherever it is found.
	RewriteMessageID(oldID, newID string) bool

	// LoadMessages replaces a conversation's history and marks it loaded.
	LoadMessages(convID model.ID, msgs []*model.Message) bool

	// TruncateForEdit drops every message after msgID, pushes the previous
	// (input, response) pair onto its PairedHistory and sets its content to
	// newContent. It returns a copy of the edited message.
	TruncateForEdit(convID model.ID, msgID, newContent string) (*model.Message, bool)

	// Delete removes a conversation. The returned Removed can be handed to
	// Restore to undo the removal.
	Delete(id model.ID) (Removed, bool)

	// Restore puts a removed conversation back at its old position.
	Restore(r Removed) bool

	// Get returns a copy of the conversation.
	Get(id model.ID) (*model.Conversation, bool)

	// List returns copies of all conversations, head first.
	List() []*model.Conversation

	// ReplaceSummaries merges a backend listing without discarding loaded
	// histories or conversations the backend does not know yet.
	ReplaceSummaries(summaries []*model.Conversation)

	// SetAttachments replaces the conversation's active attachments.
	SetAttachments(convID model.ID, attachments []model.Attachment) bool

	// SetTitle renames a conversation.
	SetTitle(convID model.ID, title string) bool

	// Resolve maps an ID through any promotions to its current form.
	Resolve(id model.ID) model.ID
}

// Removed is a conversation taken out of the store by Delete.
type Removed struct {
	Conversation *model.Conversation
	Index        int
}
