// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// flexID accepts identifiers sent as JSON strings or numbers.
type flexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// flexTime accepts RFC 3339 timestamps with or without a zone. Zoneless
// values are taken as UTC.
type flexTime time.Time

var flexTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		*f = flexTime{}
		return nil
	}
	for _, layout := range flexTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	*f = flexTime{}
	return nil
}

// conversationSummary is one entry of the conversation listing.
type conversationSummary struct {
	ID           flexID   `json:"id"`
	Title        string   `json:"title"`
	MessageCount int      `json:"message_count"`
	CreatedAt    flexTime `json:"created_at"`
	UpdatedAt    flexTime `json:"updated_at"`
}

// storedMessage is a message as returned by the conversation endpoint.
// Source scores use the same 0-1 unit as sources frames.
type storedMessage struct {
	ID         flexID              `json:"id"`
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	Sources    []model.Source      `json:"sources"`
	Confidence *model.Confidence   `json:"confidence"`
	Disclaimer string              `json:"disclaimer"`
	Timings    *model.Timings      `json:"timings"`
	ToolName   string              `json:"tool_name"`
	ToolResult json.RawMessage     `json:"tool_result"`
	Rewrite    *model.QueryRewrite `json:"rewrite"`
	CreatedAt  flexTime            `json:"created_at"`
}

type conversationDetail struct {
	conversationSummary
	Messages []storedMessage `json:"messages"`
}

// toModel converts a stored message, scaling source scores to percentages.
func (m storedMessage) toModel() *model.Message {
	msg := &model.Message{
		ID:         string(m.ID),
		Role:       model.Role(m.Role),
		Content:    m.Content,
		Confidence: m.Confidence,
		Disclaimer: m.Disclaimer,
		Timings:    m.Timings,
		Rewrite:    m.Rewrite,
		Timestamp:  time.Time(m.CreatedAt),
	}
	if len(m.Sources) > 0 {
		msg.Sources = make([]model.Source, len(m.Sources))
		for i, s := range m.Sources {
			s.RelevanceScore = model.ClampPercent(s.RelevanceScore * 100)
			msg.Sources[i] = s
		}
	}
	if len(m.ToolResult) > 0 && !bytes.Equal(bytes.TrimSpace(m.ToolResult), []byte("null")) {
		msg.ToolName = m.ToolName
		if msg.ToolName == "" {
			msg.ToolName = "tool"
		}
		msg.ToolResult = &model.ToolResult{Raw: append(json.RawMessage(nil), m.ToolResult...)}
		var lifted struct {
			ImageURL string `json:"image_url"`
			Text     string `json:"text"`
		}
		if json.Unmarshal(m.ToolResult, &lifted) == nil {
			msg.ToolResult.ImageURL = lifted.ImageURL
			msg.ToolResult.Text = lifted.Text
		}
	}
	return msg
}

func (s conversationSummary) toModel() *model.Conversation {
	return model.NewSummary(model.ConfirmedID(string(s.ID)), s.Title, s.MessageCount, time.Time(s.CreatedAt), time.Time(s.UpdatedAt))
}

// =============================================================================
// CONVERSATION ENDPOINTS
// =============================================================================

// ListConversations returns summaries of the user's conversations, most
// recent first. Histories are not loaded.
func (c *Client) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/conversations", nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}

	// The listing is either a bare array or {"conversations": [...]}.
	var summaries []conversationSummary
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &summaries)
	} else {
		var envelope struct {
			Conversations []conversationSummary `json:"conversations"`
		}
		err = json.Unmarshal(raw, &envelope)
		summaries = envelope.Conversations
	}
	if err != nil {
		return nil, err
	}

	out := make([]*model.Conversation, 0, len(summaries))
	for _, s := range summaries {
		if s.ID == "" {
			continue
		}
		out = append(out, s.toModel())
	}
	return out, nil
}

// GetConversation fetches a conversation with its full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var detail conversationDetail
	if err := c.do(req, &detail); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = flexID(id)
	}

	conv := detail.toModel()
	msgs := make([]*model.Message, len(detail.Messages))
	for i, m := range detail.Messages {
		msgs[i] = m.toModel()
	}
	conv.SetMessages(msgs)
	return conv, nil
}

// DeleteConversation removes a conversation on the backend.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RenameConversation sets a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is required")
	}
	body := map[string]string{"title": title}
	req, err := c.newRequest(ctx, http.MethodPatch, "/api/conversations/"+url.PathEscape(id), body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
