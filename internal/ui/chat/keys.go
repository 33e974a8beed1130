// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines the keyboard bindings of the chat view.
type KeyMap struct {
	Send        key.Binding
	Newline     key.Binding
	EditLast    key.Binding
	PrevVersion key.Binding
	NextVersion key.Binding
	NewChat     key.Binding
	NextConv    key.Binding
	PrevConv    key.Binding
	Delete      key.Binding
	Abandon     key.Binding
	Sources     key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("alt+enter", "newline"),
		),
		EditLast: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "edit last question"),
		),
		PrevVersion: key.NewBinding(
			key.WithKeys("alt+left"),
			key.WithHelp("alt+<-", "older version"),
		),
		NextVersion: key.NewBinding(
			key.WithKeys("alt+right"),
			key.WithHelp("alt+->", "newer version"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		NextConv: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next chat"),
		),
		PrevConv: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-tab", "previous chat"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "delete chat"),
		),
		Abandon: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop reply"),
		),
		Sources: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "sources"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.EditLast, k.NewChat, k.NextConv, k.Sources, k.Help, k.Quit}
}

// StreamingHelp returns the bindings shown while a reply streams.
func (k KeyMap) StreamingHelp() []key.Binding {
	return []key.Binding{k.Abandon, k.NextConv, k.NewChat, k.Quit}
}

// FullHelp returns every binding, grouped.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Newline, k.EditLast, k.Abandon},
		{k.PrevVersion, k.NextVersion, k.Sources},
		{k.NewChat, k.NextConv, k.PrevConv, k.Delete},
		{k.PageUp, k.PageDown, k.Help, k.Quit},
	}
}

// slashCommands documents the commands typed into the input.
var slashCommands = [][2]string{
	{"/attach <file>", "upload a document into this chat"},
	{"/detach <id>", "remove an attachment"},
	{"/rename <title>", "rename this chat"},
	{"/infographic <prompt>", "generate an infographic"},
	{"/ghostwrite <prompt>", "draft text with the ghostwriter"},
	{"/export [path]", "export to Markdown or JSON"},
	{"/refresh", "reload the conversation list"},
}
