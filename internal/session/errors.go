// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "errors"

var (
	// ErrTurnInProgress is returned when a conversation already has a
	// streaming turn. Nothing is changed.
	ErrTurnInProgress = errors.New("a response is already streaming in this conversation")

	// ErrNotFound is returned for conversations the session does not know.
	ErrNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned when an edit names an unknown message or
	// one that is not a user message.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotConfirmed is returned for operations that need a backend
	// conversation ID before the backend has assigned one.
	ErrNotConfirmed = errors.New("conversation is not saved on the server yet")

	// ErrOffline wraps backend failures that were answered from the local
	// cache. The accompanying value is usable but may be stale.
	ErrOffline = errors.New("backend unreachable, showing cached copy")
)
