// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"

	"github.com/jeranaias/ragchat/internal/model"
)

// NoResponseText is the content of a turn that produced neither text nor a
// tool result.
const NoResponseText = "I received your message but had no response."

// failurePrefix starts every synthetic failure message.
const failurePrefix = "Sorry, I couldn't complete that request: "

// =============================================================================
// LIVE STATE
// =============================================================================

// Live is the externally visible state of a turn in progress.
type Live struct {
	Content        string
	Sources        []model.Source
	Confidence     *model.Confidence
	Disclaimer     string
	Timings        *model.Timings
	Rewrite        *model.QueryRewrite
	Tool           model.ToolState
	ConversationID string
	UserMessageID  string
}

// Change describes the effect of applying one chunk.
type Change struct {
	Chunk Chunk

	// Ignored is set when the chunk left the state untouched, e.g. an
	// out-of-order tool transition. Reason says why.
	Ignored bool
	Reason  string
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator folds the chunks of one turn into a final assistant message.
// It has no I/O and is not safe for concurrent use.
type Accumulator struct {
	content strings.Builder
	tokens  int

	sources     []model.Source
	toolSources bool

	confidence *model.Confidence
	disclaimer string
	timings    *model.Timings
	rewrite    *model.QueryRewrite

	tool       model.ToolState
	toolCalled bool
	toolName   string
	toolResult *model.ToolResult
	toolError  string

	conversationID string
	userMessageID  string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply reduces one chunk into the accumulator.
func (a *Accumulator) Apply(c Chunk) Change {
	change := Change{Chunk: c}
	ignore := func(reason string) Change {
		change.Ignored = true
		change.Reason = reason
		return change
	}

	switch c := c.(type) {
	case MetaChunk:
		if c.ConversationID == "" && c.UserMessageID == "" {
			return ignore("meta frame without identifiers")
		}
		if c.ConversationID != "" {
			a.conversationID = c.ConversationID
		}
		if c.UserMessageID != "" {
			a.userMessageID = c.UserMessageID
		}

	case SourcesChunk:
		if a.toolSources {
			return ignore("tool result sources take precedence")
		}
		a.sources = c.Sources

	case TokenChunk:
		a.content.WriteString(c.Content)
		a.tokens++

	case TimingChunk:
		t := c.Timings
		a.timings = &t

	case ConfidenceChunk:
		conf := c.Confidence
		a.confidence = &conf
		a.disclaimer = c.Disclaimer

	case ToolCallChunk:
		if a.toolCalled {
			return ignore("second tool_call in one turn")
		}
		if !a.tool.Advance(model.ToolStarting) {
			return ignore("tool_call after tool finished")
		}
		a.toolCalled = true
		a.toolName = c.Tool
		a.tool.ToolName = c.Tool
		a.tool.Args = c.Args

	case ToolProgressChunk:
		if !a.tool.Advance(model.ToolProcessing) {
			return ignore("tool_progress without running tool")
		}
		a.tool.Message = c.Message

	case ToolResultChunk:
		if a.tool.Status.IsTerminal() {
			return ignore("tool_result after tool finished")
		}
		result := c.Result
		a.toolResult = &result
		a.toolName = firstNonEmpty(c.Tool, a.toolName, "tool")
		if len(result.Sources) > 0 {
			a.sources = result.Sources
			a.toolSources = true
		}
		// Without a tool_call the payload is still kept.
		if a.tool.Advance(model.ToolComplete) {
			a.tool.Result = &result
		} else {
			change.Reason = "tool_result without running tool"
		}

	case ToolErrorChunk:
		if a.tool.Status.IsTerminal() {
			return ignore("tool_error after tool finished")
		}
		a.toolError = c.Error
		a.toolName = firstNonEmpty(c.Tool, a.toolName, "tool")
		if a.tool.Advance(model.ToolError) {
			a.tool.Error = c.Error
		} else {
			change.Reason = "tool_error without running tool"
		}

	case RewriteChunk:
		rw := c.Rewrite
		a.rewrite = &rw

	default:
		return ignore("unsupported chunk")
	}
	return change
}

// Snapshot returns the current live state.
func (a *Accumulator) Snapshot() Live {
	live := Live{
		Content:        a.content.String(),
		Disclaimer:     a.disclaimer,
		Tool:           a.tool,
		ConversationID: a.conversationID,
		UserMessageID:  a.userMessageID,
	}
	if a.sources != nil {
		live.Sources = append([]model.Source(nil), a.sources...)
	}
	if a.confidence != nil {
		conf := *a.confidence
		live.Confidence = &conf
	}
	if a.timings != nil {
		t := *a.timings
		live.Timings = &t
	}
	if a.rewrite != nil {
		rw := *a.rewrite
		live.Rewrite = &rw
	}
	return live
}

// ConversationID returns the backend-assigned conversation ID, if any.
func (a *Accumulator) ConversationID() string {
	return a.conversationID
}

// UserMessageID returns the backend-assigned user message ID, if any.
func (a *Accumulator) UserMessageID() string {
	return a.userMessageID
}

// ToolState returns the current tool state.
func (a *Accumulator) ToolState() model.ToolState {
	return a.tool
}

// Finalize builds the assistant message for a stream that ended normally.
func (a *Accumulator) Finalize() *model.Message {
	msg := model.NewAssistantMessage("")

	switch {
	case a.tokens > 0 && a.content.Len() > 0:
		msg.Content = a.content.String()
	case a.toolResult != nil:
		// Leave empty so the tool result renders as the body.
	default:
		msg.Content = NoResponseText
	}

	if a.sources != nil {
		msg.Sources = append([]model.Source(nil), a.sources...)
	}
	if a.confidence != nil {
		conf := *a.confidence
		msg.Confidence = &conf
	}
	msg.Disclaimer = a.disclaimer
	if a.timings != nil {
		t := *a.timings
		msg.Timings = &t
	}
	if a.rewrite != nil {
		rw := *a.rewrite
		msg.Rewrite = &rw
	}
	if a.toolResult != nil || a.toolError != "" {
		msg.ToolName = a.toolName
	}
	if a.toolResult != nil {
		tr := *a.toolResult
		msg.ToolResult = &tr
	}
	msg.ToolError = a.toolError
	return msg
}

// FailureMessage builds the synthetic assistant message for a turn that
// could not complete.
func FailureMessage(err error) *model.Message {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	msg := model.NewAssistantMessage(failurePrefix + reason)
	msg.Failed = true
	return msg
}
