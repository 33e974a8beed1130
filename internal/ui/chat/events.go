// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/session"
)

// EventQueue forwards session events to a running program in order.
//
// Session listeners run synchronously, sometimes from inside Update (for
// example NewConversation or Detach), while tea.Program.Send blocks until the
// event loop receives. The queue decouples the two: Listener never blocks and
// Run delivers on its own goroutine.
type EventQueue struct {
	mu      sync.Mutex
	pending []session.Event
	wake    chan struct{}
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{wake: make(chan struct{}, 1)}
}

// Listener returns a session.Listener that enqueues events.
func (q *EventQueue) Listener() session.Listener {
	return func(ev session.Event) {
		q.mu.Lock()
		q.pending = append(q.pending, ev)
		q.mu.Unlock()
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

// Run delivers queued events to send as SessionEventMsg until ctx is done.
func (q *EventQueue) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			send(SessionEventMsg{Event: ev})
		}
	}
}
