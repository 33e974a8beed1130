// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
)

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter follows one turn at a time through session events and
// prints it as it arrives. Without Markdown the answer is written token by
// token; with Markdown only tool progress is shown until the turn ends.
type streamPrinter struct {
	out      io.Writer // answer text
	status   io.Writer // tool progress, query rewrites
	renderer *Renderer

	mu       sync.Mutex
	conv     model.ID
	active   bool
	printed  int
	tool     model.ToolState
	rewrite  bool
	promoted func(old, current model.ID)
}

func newStreamPrinter(out, status io.Writer, renderer *Renderer) *streamPrinter {
	return &streamPrinter{out: out, status: status, renderer: renderer}
}

// Listen is a session.Listener.
func (p *streamPrinter) Listen(ev session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case session.EventTurnStarted:
		p.conv = ev.ConversationID
		p.active = true
		p.printed = 0
		p.tool = model.ToolState{}
		p.rewrite = false

	case session.EventPromoted:
		if ev.PreviousID == p.conv {
			p.conv = ev.ConversationID
			if p.promoted != nil {
				p.promoted(ev.PreviousID, ev.ConversationID)
			}
		}

	case session.EventLive:
		if !p.active || ev.ConversationID != p.conv {
			return
		}
		live := ev.Live
		if live.Tool.ToolName != "" && (live.Tool.Status != p.tool.Status || live.Tool.Message != p.tool.Message) {
			p.breakLine()
			fmt.Fprintln(p.status, FormatToolState(live.Tool))
		}
		p.tool = live.Tool

		if p.renderer.Markdown() {
			return
		}
		if live.Rewrite != nil && !p.rewrite {
			p.rewrite = true
			if line := p.renderer.FormatRewrite(live.Rewrite); line != "" {
				p.breakLine()
				fmt.Fprint(p.status, line)
			}
		}
		if len(live.Content) > p.printed {
			fmt.Fprint(p.out, live.Content[p.printed:])
			p.printed = len(live.Content)
		}

	case session.EventTurnEnded:
		if ev.ConversationID == p.conv {
			p.active = false
		}
	}
}

// breakLine ends a partially printed answer line before status output.
func (p *streamPrinter) breakLine() {
	if p.printed > 0 && p.status == p.out {
		fmt.Fprintln(p.out)
	}
}

// Finish prints what streaming left out once Send, Edit or Generate has
// returned msg.
func (p *streamPrinter) Finish(msg *model.Message) {
	p.mu.Lock()
	printed := p.printed
	p.mu.Unlock()

	if msg == nil {
		if printed > 0 {
			fmt.Fprintln(p.out)
		}
		return
	}

	switch {
	case msg.Failed:
		if printed > 0 {
			fmt.Fprintln(p.out)
		}
		fmt.Fprint(p.out, p.renderer.FormatBody(msg))
	case p.renderer.Markdown():
		fmt.Fprint(p.out, p.renderer.FormatMessage(msg))
	default:
		if printed == 0 {
			fmt.Fprint(p.out, msg.Content)
		}
		fmt.Fprintln(p.out)
		fmt.Fprint(p.out, p.renderer.FormatFooter(msg))
	}
}

// Conversation returns the conversation of the most recent turn.
func (p *streamPrinter) Conversation() model.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conv
}
