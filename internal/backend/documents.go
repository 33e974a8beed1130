// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/ragchat/internal/model"
)

// Polling defaults for WaitForDocument.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxBackoff   = 30 * time.Second
	DefaultMaxWait      = 5 * time.Minute

	// MaxUploadSize is the largest file UploadDocument accepts.
	MaxUploadSize = 50 * 1024 * 1024
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// Document is the backend's view of an uploaded file.
type Document struct {
	ID       flexID `json:"id"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// AttachmentStatus maps the backend status onto the client's states.
// Anything not terminal counts as processing.
func (d Document) AttachmentStatus() model.AttachmentStatus {
	switch strings.ToLower(d.Status) {
	case "completed", "complete", "ready", "processed":
		return model.AttachmentCompleted
	case "failed", "error":
		return model.AttachmentFailed
	default:
		return model.AttachmentProcessing
	}
}

// Attachment converts the document to a conversation attachment.
func (d Document) Attachment() model.Attachment {
	a := model.Attachment{
		ID:       string(d.ID),
		Filename: d.Filename,
		FileType: d.FileType,
		FileSize: d.FileSize,
		Status:   d.AttachmentStatus(),
	}
	if a.Status == model.AttachmentFailed {
		a.Error = d.Message
		if a.Error == "" {
			a.Error = "processing failed"
		}
	}
	return a
}

// PollOptions controls WaitForDocument.
type PollOptions struct {
	// Interval between status requests.
	Interval time.Duration
	// MaxBackoff caps the delay after rate-limited responses.
	MaxBackoff time.Duration
	// MaxWait bounds the whole wait.
	MaxWait time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.Interval {
		o.MaxBackoff = o.Interval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	return o
}

// =============================================================================
// UPLOAD & STATUS
// =============================================================================

// UploadDocument sends r as a multipart file upload.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (*Document, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if n > MaxUploadSize {
		return nil, fmt.Errorf("%s exceeds the %d MB upload limit", filename, MaxUploadSize/(1024*1024))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var doc Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	if doc.Filename == "" {
		doc.Filename = filepath.Base(filename)
	}
	return &doc, nil
}

// DocumentStatus fetches the processing state of a document.
func (c *Client) DocumentStatus(ctx context.Context, id string) (*Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(id)+"/status", nil)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = flexID(id)
	}
	return &doc, nil
}

// WaitForDocument polls until the document is completed or failed.
//
// Requests are paced by a rate limiter at opts.Interval. A rate-limited
// response backs off exponentially up to opts.MaxBackoff, or longer if the
// server's Retry-After asks for it. After opts.MaxWait the wait fails with
// ErrDocumentTimeout. A failed document returns *DocumentError along with the
// document.
func (c *Client) WaitForDocument(ctx context.Context, id string, opts PollOptions) (*Document, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeoutCause(ctx, opts.MaxWait, ErrDocumentTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	backoff := opts.Interval

	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// The next slot falls after the deadline.
				<-ctx.Done()
			}
			return nil, waitError(ctx, id, err)
		}

		doc, err := c.DocumentStatus(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitError(ctx, id, err)
			}
			if !errors.Is(err, ErrRateLimited) {
				return nil, err
			}

			backoff = calculateBackoff(backoff, opts.MaxBackoff)
			delay := backoff
			var rl *RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > delay {
				delay = rl.RetryAfter
			}
			c.logger.Printf("WARN document %s status rate limited, retrying in %v", id, delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, waitError(ctx, id, err)
			}
			continue
		}
		backoff = opts.Interval

		switch doc.AttachmentStatus() {
		case model.AttachmentCompleted:
			return doc, nil
		case model.AttachmentFailed:
			return doc, &DocumentError{DocumentID: string(doc.ID), Filename: doc.Filename, Reason: doc.Message}
		}
	}
}

// calculateBackoff doubles prev, capped at limit.
func calculateBackoff(prev, limit time.Duration) time.Duration {
	next := prev * 2
	if next > limit || next <= 0 {
		next = limit
	}
	return next
}

// waitError reports the timeout as ErrDocumentTimeout and anything else as is.
func waitError(ctx context.Context, id string, err error) error {
	if errors.Is(context.Cause(ctx), ErrDocumentTimeout) {
		return fmt.Errorf("document %s: %w", id, ErrDocumentTimeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
