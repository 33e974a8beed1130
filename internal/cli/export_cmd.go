// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Conversation export command.
//
// Command: export
// Short:   Export a conversation to Markdown or JSON
//
// Examples:
//   ragchat export 42
//   ragchat export 42 --format json --output launch.json
//   ragchat export 42 -o - | less
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/ragchat/internal/export"
	"github.com/jeranaias/ragchat/internal/model"
)

// HandleExportCommand writes a conversation to a file or stdout. With the
// backend unreachable, a cached copy is exported instead.
func HandleExportCommand(args Args) error {
	if args.Conversation == "" {
		return ErrMissingArgument("conversation", "ragchat export 42 --format markdown")
	}

	opts := export.DefaultOptions()
	exporter, err := pickExporter(args.Format, args.Output, opts)
	if err != nil {
		return err
	}

	app, err := NewApp(args, AppOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv, err := openConversation(ctx, app, args.Conversation, args.Quiet || args.Output == "-")
	if err != nil {
		return err
	}

	if args.Output == "-" {
		content, err := exporter.Export(conv)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		_, err = os.Stdout.Write(content)
		return err
	}

	var path string
	if args.Output == "" {
		path, err = export.ExportToFile(conv, exporter, opts)
	} else {
		path, err = export.ExportToPath(conv, exporter, args.Output, opts)
	}
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("export", ExportData{
			ConversationID: conv.ID.String(),
			Format:         formatName(exporter),
			Path:           path,
			Messages:       conv.MessageCount,
		}).Print()
	}
	fmt.Printf("%s Exported %q (%d messages) to %s\n",
		SuccessStyle.Render("[OK]"), conv.GetTitle(), conv.MessageCount, path)
	return nil
}

// pickExporter resolves the exporter from --format, then from the extension
// of --output, defaulting to Markdown.
func pickExporter(format, output string, opts *export.Options) (export.Exporter, error) {
	if format != "" {
		exp, err := export.ForFormat(format, opts)
		if err != nil {
			return nil, ErrUnsupportedFormat(format, []string{"markdown", "json"})
		}
		return exp, nil
	}
	if output != "" && output != "-" {
		return export.ForPath(output, opts), nil
	}
	return export.ForFormat("markdown", opts)
}

func formatName(exp export.Exporter) string {
	if exp.FileExtension() == ".json" {
		return "json"
	}
	return "markdown"
}

// exportCurrent exports conv under a generated name, or to path when given.
func exportCurrent(conv *model.Conversation, path string) (string, error) {
	opts := export.DefaultOptions()
	exporter, err := pickExporter("", path, opts)
	if err != nil {
		return "", err
	}
	if path == "" {
		return export.ExportToFile(conv, exporter, opts)
	}
	return export.ExportToPath(conv, exporter, path, opts)
}
