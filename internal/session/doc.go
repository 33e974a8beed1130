// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates chat turns between the store and the backend.
//
// A turn records the user's message, opens a response stream, folds it with
// the stream reducer and appends exactly one assistant message: the reply, a
// degraded reply that notes a tool error, or a failure message. Abandoned
// turns append nothing.
//
// # Key Types
//
//   - Chat: Send, Edit, Generate, Open, Refresh, Delete, Rename, Attach
//   - Backend, Cache: Interfaces satisfied by backend.Client and storage.Cache
//   - Event, Listener: Synchronous change notifications for the UI
//
// # Usage
//
//	chat := session.New(session.Options{Backend: client, Cache: cache, Listener: onEvent})
//	id := chat.NewConversation()
//	msg, err := chat.Send(ctx, id, "What did we decide on pricing?", nil)
//	if backend.IsUnauthorized(err) {
//	    // sign out; msg is the failure message already shown
//	}
//
// # Identifiers
//
// A new conversation lives under a provisional ID until the backend's meta
// frame names it. The store records the promotion, so IDs captured earlier
// keep resolving to the same conversation.
package session
