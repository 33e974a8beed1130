// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// SOURCE (CITATION)
// =============================================================================

// Source is a citation attached to a single assistant message.
//
// RelevanceScore is always a percentage in [0, 100]. Producers convert at the
// boundary (see stream.Decode); consumers must not re-normalize.
type Source struct {
	Title              string     `json:"title"`
	Date               SourceDate `json:"date,omitempty"`
	TranscriptID       string     `json:"transcript_id,omitempty"`
	Speakers           []string   `json:"speakers,omitempty"`
	TextPreview        string     `json:"text_preview,omitempty"`
	Text               string     `json:"text,omitempty"`
	RelevanceScore     float64    `json:"relevance_score"`
	MeetingCategory    string     `json:"meeting_category,omitempty"`
	CategoryConfidence float64    `json:"category_confidence,omitempty"`
}

// Snippet returns the preview text, falling back to the full text.
func (s Source) Snippet() string {
	if s.TextPreview != "" {
		return s.TextPreview
	}
	return s.Text
}

// FormatScore renders the relevance score for display, e.g. "87%".
func (s Source) FormatScore() string {
	return strconv.Itoa(int(s.RelevanceScore+0.5)) + "%"
}

// ClampPercent bounds a relevance score to [0, 100].
func ClampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// =============================================================================
// SOURCE DATE
// =============================================================================

// SourceDate accepts either a date string or a Unix-millisecond number.
// Raw keeps the original string form for display when it did not parse.
type SourceDate struct {
	Time time.Time
	Raw  string
}

var sourceDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *SourceDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = SourceDate{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = SourceDate{Raw: s}
		for _, layout := range sourceDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				d.Time = t
				break
			}
		}
		return nil
	}

	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("source date: %w", err)
	}
	*d = SourceDate{Time: time.UnixMilli(int64(ms)).UTC()}
	return nil
}

// MarshalJSON writes the original string, or Unix milliseconds.
func (d SourceDate) MarshalJSON() ([]byte, error) {
	if d.Raw != "" {
		return json.Marshal(d.Raw)
	}
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(d.Time.UnixMilli(), 10)), nil
}

// IsZero reports whether no date was given.
func (d SourceDate) IsZero() bool {
	return d.Time.IsZero() && d.Raw == ""
}

// String formats the date for display.
func (d SourceDate) String() string {
	if !d.Time.IsZero() {
		return d.Time.Format("2006-01-02")
	}
	return d.Raw
}

// =============================================================================
// CONFIDENCE
// =============================================================================

// ConfidenceLevel classifies how well an answer is supported by its sources.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceNone   ConfidenceLevel = "none"
)

// IsLow returns true when a disclaimer should be shown.
func (l ConfidenceLevel) IsLow() bool {
	return l == ConfidenceLow || l == ConfidenceNone
}

// Confidence is the backend's scoring of a generated answer.
type Confidence struct {
	Level          ConfidenceLevel `json:"level"`
	AvgScore       float64         `json:"avg_score"`
	TopScore       float64         `json:"top_score"`
	ChunkCount     int             `json:"chunk_count"`
	ShouldFallback bool            `json:"should_fallback"`
}

// =============================================================================
// TIMINGS
// =============================================================================

// Timings is the backend's per-phase latency breakdown in milliseconds.
type Timings struct {
	RetrievalMs   float64 `json:"retrieval_ms"`
	PromptBuildMs float64 `json:"prompt_build_ms"`
	GenerationMs  float64 `json:"generation_ms"`
	TotalMs       float64 `json:"total_ms"`
}

// Format returns e.g. "retrieval 120ms | prompt 8ms | generation 1.4s | total 1.5s".
func (t Timings) Format() string {
	return "retrieval " + formatMs(t.RetrievalMs) +
		" | prompt " + formatMs(t.PromptBuildMs) +
		" | generation " + formatMs(t.GenerationMs) +
		" | total " + formatMs(t.TotalMs)
}

func formatMs(ms float64) string {
	if ms < 1000 {
		return strconv.Itoa(int(ms)) + "ms"
	}
	return strconv.FormatFloat(ms/1000, 'f', 1, 64) + "s"
}

// =============================================================================
// TOOL RESULT & QUERY REWRITE
// =============================================================================

// ToolResult is the structured payload of a completed tool invocation.
// Raw keeps the full payload; the known fields are lifted out for rendering.
type ToolResult struct {
	Raw      json.RawMessage `json:"raw,omitempty"`
	Sources  []Source        `json:"sources,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
	Text     string          `json:"text,omitempty"`
}

// QueryRewrite records how the backend reformulated the user's query.
type QueryRewrite struct {
	Original  string `json:"original_query"`
	Rewritten string `json:"rewritten_query"`
}

// =============================================================================
// ATTACHMENT
// =============================================================================

// AttachmentStatus is the processing state of an uploaded document.
type AttachmentStatus string

const (
	AttachmentUploading  AttachmentStatus = "uploading"
	AttachmentProcessing AttachmentStatus = "processing"
	AttachmentCompleted  AttachmentStatus = "completed"
	AttachmentFailed     AttachmentStatus = "failed"
)

// IsTerminal returns true once processing has finished either way.
func (s AttachmentStatus) IsTerminal() bool {
	return s == AttachmentCompleted || s == AttachmentFailed
}

// Attachment references an uploaded document.
type Attachment struct {
	ID       string           `json:"id"`
	Filename string           `json:"filename"`
	FileType string           `json:"file_type,omitempty"`
	FileSize int64            `json:"file_size,omitempty"`
	Status   AttachmentStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
}

// Usable returns true if the document can scope retrieval.
func (a Attachment) Usable() bool {
	return a.Status == AttachmentCompleted && a.ID != ""
}

// UsableIDs returns the IDs of attachments that finished processing.
func UsableIDs(attachments []Attachment) []string {
	var ids []string
	for _, a := range attachments {
		if a.Usable() {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
