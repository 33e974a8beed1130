// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// DocType restricts retrieval to one kind of source document.
type DocType string

const (
	DocTypeAll      DocType = "all"
	DocTypeMeeting  DocType = "meeting"
	DocTypeEmail    DocType = "email"
	DocTypeDocument DocType = "document"
	DocTypeNote     DocType = "note"
)

// ValidDocTypes lists the accepted doc_type values.
var ValidDocTypes = []DocType{DocTypeAll, DocTypeMeeting, DocTypeEmail, DocTypeDocument, DocTypeNote}

// ParseDocType validates s. The empty string means all.
func ParseDocType(s string) (DocType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DocTypeAll, nil
	}
	for _, dt := range ValidDocTypes {
		if string(dt) == s {
			return dt, nil
		}
	}
	return "", fmt.Errorf("invalid doc type %q (want one of all, meeting, email, document, note)", s)
}

// ChatRequest is the body of a chat or edit request.
type ChatRequest struct {
	Query           string   `json:"query"`
	Stream          bool     `json:"stream"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	IncludeHistory  bool     `json:"include_history"`
	DocType         DocType  `json:"doc_type,omitempty"`
	MeetingCategory string   `json:"meeting_category,omitempty"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
}

// normalize validates the request and drops filters that mean "everything".
func (r ChatRequest) normalize() (ChatRequest, error) {
	if strings.TrimSpace(r.Query) == "" {
		return r, errors.New("query is required")
	}
	dt, err := ParseDocType(string(r.DocType))
	if err != nil {
		return r, err
	}
	if dt == DocTypeAll {
		dt = ""
	}
	r.DocType = dt
	r.MeetingCategory = strings.TrimSpace(r.MeetingCategory)
	if strings.EqualFold(r.MeetingCategory, "all") {
		r.MeetingCategory = ""
	}
	r.Stream = true
	return r, nil
}

// GenerateKind selects an auxiliary generation tool.
type GenerateKind string

const (
	GenerateInfographic GenerateKind = "infographic"
	GenerateGhostwriter GenerateKind = "ghostwriter"
)

// ParseGenerateKind validates s.
func ParseGenerateKind(s string) (GenerateKind, error) {
	switch k := GenerateKind(strings.ToLower(strings.TrimSpace(s))); k {
	case GenerateInfographic, GenerateGhostwriter:
		return k, nil
	default:
		return "", fmt.Errorf("invalid generator %q (want infographic or ghostwriter)", s)
	}
}

// GenerateRequest is the body of an auxiliary tool stream request.
type GenerateRequest struct {
	Kind           GenerateKind `json:"-"`
	Prompt         string       `json:"prompt"`
	ConversationID string       `json:"conversation_id,omitempty"`
	DocumentIDs    []string     `json:"document_ids,omitempty"`
	Stream         bool         `json:"stream"`
}

// =============================================================================
// STREAMING ENDPOINTS
// =============================================================================

// StreamChat starts a chat turn. An empty ConversationID asks the backend to
// create a conversation; its ID arrives in a meta frame.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (stream.Source, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, "/api/chat/stream", req)
}

// StreamEdit regenerates a conversation from an edited user message.
func (c *Client) StreamEdit(ctx context.Context, conversationID, messageID string, req ChatRequest) (stream.Source, error) {
	if conversationID == "" || messageID == "" {
		return nil, errors.New("edit requires a conversation and message id")
	}
	req.ConversationID = conversationID
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) +
		"/messages/" + url.PathEscape(messageID) + "/edit"
	return c.openStream(ctx, path, req)
}

// StreamGenerate runs an auxiliary tool flow over the chat stream protocol.
func (c *Client) StreamGenerate(ctx context.Context, req GenerateRequest) (stream.Source, error) {
	kind, err := ParseGenerateKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	req.Stream = true
	return c.openStream(ctx, "/api/tools/"+string(kind)+"/stream", req)
}

// openStream posts body and returns a frame reader over the SSE response.
// Errors before the first byte of the body (network, 4xx/5xx) are returned
// here; the stream itself never sees them.
func (c *Client) openStream(ctx context.Context, path string, body any) (stream.Source, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Printf("POST %s -> %d", path, resp.StatusCode)
		return nil, handleErrorResponse(resp, data)
	}

	return stream.NewFrameReader(resp.Body, c.logger), nil
}
