// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// SessionEventMsg carries a session.Event into the program. EventQueue.Run
// wraps every queued event in one.
type SessionEventMsg struct {
	Event session.Event
}

// TurnDoneMsg reports the end of a send, edit or generate call.
type TurnDoneMsg struct {
	ConversationID model.ID
	Message        *model.Message
	Err            error
}

// RefreshedMsg reports a conversation list refresh.
type RefreshedMsg struct {
	Err error
}

// OpenedMsg reports that a conversation's history was loaded.
type OpenedMsg struct {
	ID  model.ID
	Err error
}

// DeletedMsg reports a delete. On error the conversation was restored.
type DeletedMsg struct {
	Title string
	Err   error
}

// RenamedMsg reports a rename.
type RenamedMsg struct {
	Title string
	Err   error
}

// AttachedMsg reports an upload started with /attach.
type AttachedMsg struct {
	Attachment model.Attachment
	Err        error
}

// ExportedMsg reports an /export.
type ExportedMsg struct {
	Path string
	Err  error
}

// =============================================================================
// CONFIG MESSAGES
// =============================================================================

// ConfigReloadedMsg delivers a configuration reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// ConfigErrorMsg reports a config file that failed to reload.
type ConfigErrorMsg struct {
	Err error
}
