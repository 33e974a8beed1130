// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask a single question and print the answer with its sources
//
// Examples:
//   ragchat ask "what did we decide about the launch date?"
//   ragchat ask -f minutes.pdf "list the action items"
//   ragchat ask -c 42 "and who owns them?"
//   git log -1 --format=%B | ragchat ask --json
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
)

// maxStdinQuery bounds a question read from stdin.
const maxStdinQuery = 1 << 20

// HandleAskCommand asks one question, optionally scoped to uploaded files
// or continuing a conversation, and prints the answer.
func HandleAskCommand(args Args) error {
	query, err := askQuery(args.Query, os.Stdin, !IsTTY())
	if err != nil {
		return err
	}

	var printer *streamPrinter
	app, err := NewApp(args, AppOptions{
		RequireBackend: true,
		Listener: func(ev session.Event) {
			if printer != nil {
				printer.Listen(ev)
			}
		},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config()
	renderer := NewRenderer(IsStdoutTTY() && cfg.UI.Markdown && !args.JSON, cfg.UI.Theme, GetTerminalWidth(), cfg.UI.ShowTimings)
	var out io.Writer = os.Stdout
	if args.JSON {
		out = io.Discard
	}
	printer = newStreamPrinter(out, os.Stderr, renderer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := model.DraftID()
	if args.Conversation != "" {
		conv, err := openConversation(ctx, app, args.Conversation, args.Quiet)
		if err != nil {
			return err
		}
		id = conv.ID
	}

	var attachments []model.Attachment
	for _, path := range args.Files {
		att, err := attachFile(ctx, app.Chat, id, path, statusWriter(args))
		if err != nil {
			return err
		}
		attachments = append(attachments, att)
	}

	start := time.Now()
	msg, err := app.Chat.Send(ctx, id, query, nil)
	convID := printer.Conversation()

	if args.JSON {
		data := newAskData(convID, msg, attachments, time.Since(start))
		if err != nil {
			NewJSONErrorResponse("ask", err, data).Print()
			return reported(err)
		}
		return NewJSONResponse("ask", data).Print()
	}

	printer.Finish(msg)
	if err == nil && !args.Quiet && convID.IsConfirmed() {
		fmt.Fprintln(os.Stderr, DimStyle.Render(fmt.Sprintf("conversation %s (continue with: ragchat ask -c %s ...)", convID, convID)))
	}
	return err
}

// askQuery returns the question from the arguments, or from stdin when the
// question is "-" or missing and stdin is piped.
func askQuery(query string, stdin io.Reader, piped bool) (string, error) {
	if query == "-" || (query == "" && piped) {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinQuery))
		if err != nil {
			return "", fmt.Errorf("failed to read question from stdin: %w", err)
		}
		query = string(data)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrMissingArgument("question", `ragchat ask "what changed in the Q3 plan?"`)
	}
	return query, nil
}

// statusWriter is where progress lines go: stderr, or nowhere when quiet.
func statusWriter(args Args) io.Writer {
	if args.Quiet {
		return io.Discard
	}
	return os.Stderr
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// openConversation refreshes the conversation list and loads raw's history.
// A stale cached copy is accepted with a warning when the backend is down.
func openConversation(ctx context.Context, app *App, raw string, quiet bool) (*model.Conversation, error) {
	warn := func(err error) {
		if !quiet {
			fmt.Fprintf(os.Stderr, "%s %v\n", WarningStyle.Render("[!]"), err)
		}
	}

	if err := app.Chat.Refresh(ctx); err != nil {
		if !errors.Is(err, session.ErrOffline) {
			return nil, err
		}
		warn(err)
	}

	conv, err := app.Chat.Open(ctx, model.ParseID(raw))
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		return nil, ErrNotFound("conversation", raw)
	case errors.Is(err, session.ErrOffline):
		warn(err)
	case err != nil:
		return nil, err
	}
	return conv, nil
}

// attachFile uploads path into the conversation's active attachments and
// waits for it to be processed.
func attachFile(ctx context.Context, chat *session.Chat, id model.ID, path string, status io.Writer) (model.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Attachment{}, ErrNotFound("file", path)
		}
		return model.Attachment{}, fmt.Errorf("cannot access file: %w", err)
	}
	if err := checkUploadable(path, info); err != nil {
		return model.Attachment{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(status, "%s %s (%s)...\n", InfoStyle.Render("[Upload]"), filepath.Base(path), formatBytes(info.Size()))
	att, err := chat.Attach(ctx, id, filepath.Base(path), f)
	if att.Filename != "" {
		fmt.Fprintln(status, FormatAttachment(att))
	}
	return att, err
}

// checkUploadable rejects directories and files over the upload limit
// before anything is sent.
func checkUploadable(path string, info os.FileInfo) error {
	if info.IsDir() {
		return &ValidationError{Field: "file", Value: path, Reason: "is a directory"}
	}
	if info.Size() > backend.MaxUploadSize {
		return &ValidationError{
			Field:  "file",
			Value:  path,
			Reason: fmt.Sprintf("%s exceeds the %s upload limit", formatBytes(info.Size()), formatBytes(backend.MaxUploadSize)),
		}
	}
	return nil
}
