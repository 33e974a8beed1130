// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// upload.go - Document upload command.
//
// Command: upload
// Short:   Upload documents so they can be searched
//
// Examples:
//   ragchat upload minutes.pdf notes.docx
//   ragchat upload --no-wait big-export.zip
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/model"
)

// HandleUploadCommand uploads each file and, unless --no-wait, waits for the
// backend to finish processing it. Every file is attempted; the first
// failure is returned.
func HandleUploadCommand(args Args) error {
	if len(args.Files) == 0 {
		return ErrMissingArgument("file", "ragchat upload minutes.pdf")
	}

	app, err := NewApp(args, AppOptions{RequireBackend: true})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := statusWriter(args)
	poll := app.Config().PollOptions()

	var (
		results  []UploadData
		firstErr error
	)
	for _, path := range args.Files {
		fmt.Fprintf(status, "%s %s...\n", InfoStyle.Render("[Upload]"), path)
		res, err := uploadFile(ctx, app.Client, poll, path, !args.NoWait)
		results = append(results, res)

		if !args.JSON {
			line := FormatAttachment(model.Attachment{
				ID: res.DocumentID, Filename: res.Filename, FileSize: res.Size, Status: res.Status, Error: res.Error,
			})
			fmt.Println(line)
		}
		if err != nil {
			app.Logger.Printf("upload %s: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	if args.JSON {
		if firstErr != nil {
			NewJSONErrorResponse("upload", firstErr, results).Print()
			return reported(firstErr)
		}
		return NewJSONResponse("upload", results).Print()
	}
	return firstErr
}

// uploadFile uploads one file and optionally waits for processing.
func uploadFile(ctx context.Context, client *backend.Client, poll backend.PollOptions, path string, wait bool) (UploadData, error) {
	res := UploadData{Path: path, Filename: filepath.Base(path), Status: model.AttachmentFailed}
	fail := func(err error) (UploadData, error) {
		res.Error = err.Error()
		return res, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(ErrNotFound("file", path))
		}
		return fail(fmt.Errorf("cannot access file: %w", err))
	}
	res.Size = info.Size()
	if err := checkUploadable(path, info); err != nil {
		return fail(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(fmt.Errorf("failed to open file: %w", err))
	}
	defer f.Close()

	doc, err := client.UploadDocument(ctx, res.Filename, f)
	if err != nil {
		return fail(err)
	}
	att := doc.Attachment()
	res.DocumentID = att.ID
	res.Status = att.Status

	if wait && !att.Status.IsTerminal() {
		final, err := client.WaitForDocument(ctx, att.ID, poll)
		if final != nil {
			att = final.Attachment()
			res.Status = att.Status
		}
		if err != nil {
			res.Status = model.AttachmentFailed
			return fail(err)
		}
	}

	if att.Status == model.AttachmentFailed {
		return fail(&backend.DocumentError{DocumentID: att.ID, Filename: res.Filename, Reason: att.Error})
	}
	return res, nil
}
