// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// EventKind identifies a session event.
type EventKind int

const (
	// EventUpdated: the conversation list or a conversation changed.
	EventUpdated EventKind = iota
	// EventTurnStarted: a user message was recorded and a stream is opening.
	EventTurnStarted
	// EventLive: a chunk was applied; Live holds the turn so far.
	EventLive
	// EventPromoted: PreviousID is now known as ConversationID.
	EventPromoted
	// EventTurnEnded: the turn released its conversation.
	EventTurnEnded
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventTurnStarted:
		return "turn_started"
	case EventLive:
		return "live"
	case EventPromoted:
		return "promoted"
	case EventTurnEnded:
		return "turn_ended"
	default:
		return "unknown"
	}
}

// Event notifies a Listener of a state change.
type Event struct {
	Kind           EventKind
	ConversationID model.ID
	PreviousID     model.ID
	Live           stream.Live
	Err            error
}

// Listener receives events. It is called synchronously from the goroutine
// that caused the event and must not block.
type Listener func(Event)

func (c *Chat) emit(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}
