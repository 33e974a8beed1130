// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view for ragchat.

The view is a Bubble Tea model over a session.Chat. It owns no conversation
state of its own: the session is the source of truth and reports changes
as session.Event values, which an EventQueue forwards into the program as
SessionEventMsg. Long-running operations (send, edit, open,
delete, upload) run as tea.Cmd functions and report back with a *Msg type
from messages.go.

# Layout

	+---------------------------------------------------------+
	| header: conversation title, backend, offline marker     |
	+-------------+-------------------------------------------+
	| sidebar     | transcript (viewport)                     |
	| (hidden     |                                           |
	|  on narrow  | tool status / spinner                     |
	|  terminals) | sources panel (ctrl+o)                    |
	+-------------+-------------------------------------------+
	| input (textarea)                                        |
	| status bar: shortcuts or last status message            |
	+---------------------------------------------------------+

# Keys

See keys.go. Enter sends, ctrl+e edits the last question, alt+left and
alt+right step through earlier versions of an edited question, esc
abandons the streaming reply.
*/
package chat
