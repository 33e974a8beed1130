// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/export"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// Turns are abandoned through session.Chat.Cancel, so the commands run on a
// background context.

func sendCmd(chat *session.Chat, id model.ID, text string) tea.Cmd {
	return func() tea.Msg {
		msg, err := chat.Send(context.Background(), id, text, nil)
		return TurnDoneMsg{ConversationID: id, Message: msg, Err: err}
	}
}

func editCmd(chat *session.Chat, id model.ID, msgID, text string) tea.Cmd {
	return func() tea.Msg {
		msg, err := chat.Edit(context.Background(), id, msgID, text)
		return TurnDoneMsg{ConversationID: id, Message: msg, Err: err}
	}
}

func generateCmd(chat *session.Chat, id model.ID, kind backend.GenerateKind, prompt string) tea.Cmd {
	return func() tea.Msg {
		msg, err := chat.Generate(context.Background(), id, kind, prompt)
		return TurnDoneMsg{ConversationID: id, Message: msg, Err: err}
	}
}

func refreshCmd(chat *session.Chat) tea.Cmd {
	return func() tea.Msg {
		return RefreshedMsg{Err: chat.Refresh(context.Background())}
	}
}

func openCmd(chat *session.Chat, id model.ID) tea.Cmd {
	return func() tea.Msg {
		_, err := chat.Open(context.Background(), id)
		return OpenedMsg{ID: id, Err: err}
	}
}

func deleteCmd(chat *session.Chat, id model.ID, title string) tea.Cmd {
	return func() tea.Msg {
		return DeletedMsg{Title: title, Err: chat.Delete(context.Background(), id)}
	}
}

func renameCmd(chat *session.Chat, id model.ID, title string) tea.Cmd {
	return func() tea.Msg {
		return RenamedMsg{Title: title, Err: chat.Rename(context.Background(), id, title)}
	}
}

func attachCmd(chat *session.Chat, id model.ID, path string) tea.Cmd {
	return func() tea.Msg {
		info, err := os.Stat(path)
		if err != nil {
			return AttachedMsg{Err: err}
		}
		if info.IsDir() {
			return AttachedMsg{Err: fmt.Errorf("%s is a directory", path)}
		}
		if info.Size() > backend.MaxUploadSize {
			return AttachedMsg{Err: fmt.Errorf("%s is larger than the upload limit", filepath.Base(path))}
		}
		f, err := os.Open(path)
		if err != nil {
			return AttachedMsg{Err: err}
		}
		defer f.Close()

		att, err := chat.Attach(context.Background(), id, filepath.Base(path), f)
		return AttachedMsg{Attachment: att, Err: err}
	}
}

func exportCmd(chat *session.Chat, id model.ID, path string) tea.Cmd {
	return func() tea.Msg {
		conv, err := chat.Open(context.Background(), id)
		if conv == nil {
			return ExportedMsg{Err: err}
		}
		opts := export.DefaultOptions()
		if path == "" {
			exp, _ := export.ForFormat("markdown", opts)
			path, err = export.ExportToFile(conv, exp, opts)
		} else {
			path, err = export.ExportToPath(conv, export.ForPath(path, opts), path, opts)
		}
		return ExportedMsg{Path: path, Err: err}
	}
}
