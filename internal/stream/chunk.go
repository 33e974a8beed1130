// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// CHUNK TYPES
// =============================================================================

// Frame type discriminators as sent by the backend.
const (
	TypeMeta         = "meta"
	TypeSources      = "sources"
	TypeToken        = "token"
	TypeTiming       = "timing"
	TypeConfidence   = "confidence"
	TypeToolCall     = "tool_call"
	TypeToolProgress = "tool_progress"
	TypeToolResult   = "tool_result"
	TypeToolError    = "tool_error"
	TypeRewrite      = "rewrite"
)

// Chunk is one decoded frame of the chat stream. The set of implementations
// is closed; switch on the concrete type.
type Chunk interface {
	// Type returns the wire discriminator.
	Type() string
	isChunk()
}

// MetaChunk carries backend-assigned identifiers.
type MetaChunk struct {
	ConversationID string
	UserMessageID  string
}

// SourcesChunk replaces the current citation list.
// Scores are already converted to percentages.
type SourcesChunk struct {
	Sources []model.Source
}

// TokenChunk is a fragment of the answer text.
type TokenChunk struct {
	Content string
}

// TimingChunk carries the latency breakdown for the turn.
type TimingChunk struct {
	Timings model.Timings
}

// ConfidenceChunk carries answer confidence and an optional disclaimer.
type ConfidenceChunk struct {
	Confidence model.Confidence
	Disclaimer string
}

// ToolCallChunk starts a tool invocation.
type ToolCallChunk struct {
	Tool string
	Args json.RawMessage
}

// ToolProgressChunk reports progress of the running tool.
type ToolProgressChunk struct {
	Tool    string
	Message string
}

// ToolResultChunk completes the running tool.
type ToolResultChunk struct {
	Tool   string
	Result model.ToolResult
}

// ToolErrorChunk fails the running tool. It is data, not a stream failure.
type ToolErrorChunk struct {
	Tool  string
	Error string
}

// RewriteChunk reports how the query was reformulated for retrieval.
type RewriteChunk struct {
	Rewrite model.QueryRewrite
}

func (MetaChunk) Type() string         { return TypeMeta }
func (SourcesChunk) Type() string      { return TypeSources }
func (TokenChunk) Type() string        { return TypeToken }
func (TimingChunk) Type() string       { return TypeTiming }
func (ConfidenceChunk) Type() string   { return TypeConfidence }
func (ToolCallChunk) Type() string     { return TypeToolCall }
func (ToolProgressChunk) Type() string { return TypeToolProgress }
func (ToolResultChunk) Type() string   { return TypeToolResult }
func (ToolErrorChunk) Type() string    { return TypeToolError }
func (RewriteChunk) Type() string      { return TypeRewrite }

func (MetaChunk) isChunk()         {}
func (SourcesChunk) isChunk()      {}
func (TokenChunk) isChunk()        {}
func (TimingChunk) isChunk()       {}
func (ConfidenceChunk) isChunk()   {}
func (ToolCallChunk) isChunk()     {}
func (ToolProgressChunk) isChunk() {}
func (ToolResultChunk) isChunk()   {}
func (ToolErrorChunk) isChunk()    {}
func (RewriteChunk) isChunk()      {}

// =============================================================================
// DECODING
// =============================================================================

// ErrUnknownType is wrapped by DecodeError for unrecognised frame types.
var ErrUnknownType = errors.New("unknown chunk type")

// DecodeError describes a frame payload that could not be decoded.
type DecodeError struct {
	Type    string
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %s frame: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("decode frame: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// wireFrame is the flat JSON shape shared by every frame type.
type wireFrame struct {
	Type string `json:"type"`

	// meta
	ConversationID json.RawMessage `json:"conversation_id"`
	UserMessageID  json.RawMessage `json:"user_message_id"`

	// sources
	Sources []model.Source `json:"sources"`

	// token
	Content string `json:"content"`

	// timing
	Timings *model.Timings `json:"timings"`

	// confidence
	Confidence *model.Confidence `json:"confidence"`
	Disclaimer string            `json:"disclaimer"`

	// tools
	Tool    string          `json:"tool"`
	Args    json.RawMessage `json:"args"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`

	// rewrite
	OriginalQuery  string `json:"original_query"`
	RewrittenQuery string `json:"rewritten_query"`
}

// wireToolResult lists the result fields the client knows how to render.
type wireToolResult struct {
	Sources  []model.Source `json:"sources"`
	ImageURL string         `json:"image_url"`
	URL      string         `json:"url"`
	Text     string         `json:"text"`
	Content  string         `json:"content"`
}

// payloadPreview bounds the payload kept on a DecodeError.
const payloadPreview = 120

// Decode parses one frame payload into its Chunk variant.
//
// Relevance scores are normalised to percentages here: scores in a sources
// frame arrive as 0-1 similarities and are scaled, scores inside a tool result
// are already percentages.
func Decode(data []byte) (Chunk, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, newDecodeError("", data, err)
	}

	switch f.Type {
	case TypeMeta:
		return MetaChunk{
			ConversationID: idString(f.ConversationID),
			UserMessageID:  idString(f.UserMessageID),
		}, nil

	case TypeSources:
		sources := make([]model.Source, len(f.Sources))
		for i, s := range f.Sources {
			s.RelevanceScore = model.ClampPercent(s.RelevanceScore * 100)
			sources[i] = s
		}
		return SourcesChunk{Sources: sources}, nil

	case TypeToken:
		return TokenChunk{Content: f.Content}, nil

	case TypeTiming:
		if f.Timings == nil {
			return nil, newDecodeError(f.Type, data, errors.New("missing timings"))
		}
		return TimingChunk{Timings: *f.Timings}, nil

	case TypeConfidence:
		if f.Confidence == nil {
			return nil, newDecodeError(f.Type, data, errors.New("missing confidence"))
		}
		return ConfidenceChunk{Confidence: *f.Confidence, Disclaimer: f.Disclaimer}, nil

	case TypeToolCall:
		if f.Tool == "" {
			return nil, newDecodeError(f.Type, data, errors.New("missing tool name"))
		}
		return ToolCallChunk{Tool: f.Tool, Args: cloneRaw(f.Args)}, nil

	case TypeToolProgress:
		return ToolProgressChunk{Tool: f.Tool, Message: f.Message}, nil

	case TypeToolResult:
		result, err := decodeToolResult(f.Result)
		if err != nil {
			return nil, newDecodeError(f.Type, data, err)
		}
		return ToolResultChunk{Tool: f.Tool, Result: result}, nil

	case TypeToolError:
		return ToolErrorChunk{Tool: f.Tool, Error: errorString(f.Error)}, nil

	case TypeRewrite:
		return RewriteChunk{Rewrite: model.QueryRewrite{
			Original:  f.OriginalQuery,
			Rewritten: f.RewrittenQuery,
		}}, nil

	default:
		return nil, newDecodeError(f.Type, data, fmt.Errorf("%w %q", ErrUnknownType, f.Type))
	}
}

func decodeToolResult(raw json.RawMessage) (model.ToolResult, error) {
	raw = bytes.TrimSpace(raw)
	result := model.ToolResult{Raw: cloneRaw(raw)}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return result, nil
	}

	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &result.Text); err != nil {
			return result, err
		}
		return result, nil
	case '{':
		var w wireToolResult
		if err := json.Unmarshal(raw, &w); err != nil {
			return result, err
		}
		if len(w.Sources) > 0 {
			result.Sources = make([]model.Source, len(w.Sources))
			for i, s := range w.Sources {
				s.RelevanceScore = model.ClampPercent(s.RelevanceScore)
				result.Sources[i] = s
			}
		}
		result.ImageURL = firstNonEmpty(w.ImageURL, w.URL)
		result.Text = firstNonEmpty(w.Text, w.Content)
		return result, nil
	default:
		// Arrays and scalars are kept raw only.
		return result, nil
	}
}

// idString accepts string or numeric identifiers.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// errorString accepts a plain string or an object with a message/detail field.
func errorString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "tool failed"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg := firstNonEmpty(obj.Message, obj.Detail); msg != "" {
			return msg
		}
	}
	return string(raw)
}

func newDecodeError(typ string, data []byte, err error) *DecodeError {
	payload := string(data)
	if len(payload) > payloadPreview {
		payload = payload[:payloadPreview] + "..."
	}
	return &DecodeError{Type: typ, Payload: payload, Err: err}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
