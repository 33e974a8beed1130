// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the stream reducer, the
// conversation store and the UI: conversations, messages, source citations,
// confidence and timing metadata, attachments and tool state.
//
// # Key Types
//
//   - ID: Tagged identifier (draft, provisional or confirmed)
//   - Conversation: Ordered, append-only message history plus metadata
//   - Message: Single message with role, content, citations and tool output
//   - Source: A citation attached to one assistant message
//   - ToolState: Ephemeral reflection of an in-flight tool invocation
//
// # Identifiers
//
// Entities created locally carry a provisional ID until the backend confirms
// them. Code never inspects string prefixes; it asks the ID for its kind:
//
//	id := model.NewProvisionalID()
//	if id.IsProvisional() {
//	    // not yet persisted by the backend
//	}
//	confirmed := model.ConfirmedID("c_123")
//
// # Paired History
//
// Editing a user message pushes the previous (input, response) pair onto the
// message's PairedHistory. The slice only grows; Conversation.Exchange reads
// a version by index without mutating anything.
package model
