// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
	now     func() time.Time
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts, now: time.Now}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := checkExportable(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder
	title := conv.GetTitle()

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "id: %s\n", escapeYAML(conv.ID.String()))
		if !conv.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		}
		if !conv.UpdatedAt.IsZero() {
			fmt.Fprintf(&sb, "updated: %s\n", conv.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.now().Format(time.RFC3339))
		sb.WriteString("generator: ragchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range conv.Messages {
		e.writeMessage(&sb, msg)
		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from ragchat on %s*\n", e.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

func (e *MarkdownExporter) writeMessage(sb *strings.Builder, msg *model.Message) {
	label := formatRoleLabel(msg)
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
	} else {
		fmt.Fprintf(sb, "### %s\n\n", label)
	}

	if e.options.IncludeHistory && len(msg.PairedHistory) > 0 {
		sb.WriteString(formatPairedHistory(msg.PairedHistory))
	}

	if len(msg.Attachments) > 0 {
		names := make([]string, len(msg.Attachments))
		for i, a := range msg.Attachments {
			names[i] = "`" + a.Filename + "`"
		}
		fmt.Fprintf(sb, "*Attached: %s*\n\n", strings.Join(names, ", "))
	}

	if e.options.IncludeMetadata && msg.Rewrite != nil && msg.Rewrite.Rewritten != "" {
		fmt.Fprintf(sb, "> Searched for: %s\n\n", msg.Rewrite.Rewritten)
	}

	if content := strings.TrimSpace(msg.Content); content != "" {
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}

	if msg.HasTool() {
		sb.WriteString(formatTool(msg))
	}

	if msg.NeedsDisclaimer() {
		sb.WriteString(formatDisclaimer(msg))
	}

	if e.options.IncludeSources && len(msg.Sources) > 0 {
		sb.WriteString(formatSources(msg.Sources))
	}

	if e.options.IncludeMetadata && msg.Role == model.RoleAssistant {
		if stats := formatMessageStats(msg); stats != "" {
			sb.WriteString(stats)
			sb.WriteString("\n\n")
		}
	}
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatRoleLabel returns a formatted label for the message role.
func formatRoleLabel(msg *model.Message) string {
	if msg.Role == "" {
		return "Unknown"
	}
	label := "[" + msg.Role.DisplayName() + "]"
	if msg.Failed {
		label += " (failed)"
	}
	return label
}

func formatPairedHistory(history []model.PairedExchange) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<details>\n<summary>Earlier versions (%d)</summary>\n\n", len(history))
	for i, ex := range history {
		fmt.Fprintf(&sb, "**Version %d**\n\n", i+1)
		sb.WriteString(quote(ex.UserContent))
		if ex.AssistantContent != "" {
			sb.WriteString(">\n")
			sb.WriteString(quote(ex.AssistantContent))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("</details>\n\n")
	return sb.String()
}

// formatTool formats the tool invocation attached to a message.
func formatTool(msg *model.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Tool**: `%s`", msg.ToolName)

	switch {
	case msg.ToolError != "":
		fmt.Fprintf(&sb, " [FAIL]\n\n```\n%s\n```\n\n", msg.ToolError)
	case msg.ToolResult != nil:
		sb.WriteString(" [OK]\n\n")
		if msg.ToolResult.ImageURL != "" {
			fmt.Fprintf(&sb, "![%s](%s)\n\n", msg.ToolName, msg.ToolResult.ImageURL)
		}
		if msg.ToolResult.Text != "" && msg.ToolResult.Text != msg.Content {
			sb.WriteString(msg.ToolResult.Text)
			sb.WriteString("\n\n")
		}
	default:
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func formatDisclaimer(msg *model.Message) string {
	text := msg.Disclaimer
	if text == "" {
		text = "This answer is weakly supported by the available sources."
	}
	if msg.Confidence != nil && msg.Confidence.Level != "" {
		return fmt.Sprintf("> **Warning** (confidence: %s): %s\n\n", msg.Confidence.Level, text)
	}
	return fmt.Sprintf("> **Warning**: %s\n\n", text)
}

// formatSources renders the citations as a numbered list.
func formatSources(sources []model.Source) string {
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for i, s := range sources {
		fmt.Fprintf(&sb, "%d. **%s** (%s)", i+1, escapeMarkdown(s.Title), s.FormatScore())
		if !s.Date.IsZero() {
			fmt.Fprintf(&sb, " - %s", s.Date)
		}
		if len(s.Speakers) > 0 {
			fmt.Fprintf(&sb, " - %s", strings.Join(s.Speakers, ", "))
		}
		sb.WriteString("\n")
		if snippet := strings.TrimSpace(s.Snippet()); snippet != "" {
			fmt.Fprintf(&sb, "   > %s\n", strings.Join(strings.Fields(snippet), " "))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatMessageStats formats confidence and timings for an answer.
func formatMessageStats(msg *model.Message) string {
	var parts []string
	if msg.Confidence != nil && msg.Confidence.Level != "" {
		parts = append(parts, fmt.Sprintf("Confidence: %s", msg.Confidence.Level))
	}
	if msg.Timings != nil {
		parts = append(parts, msg.Timings.Format())
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("<sub>Stats: %s</sub>", strings.Join(parts, " | "))
}

// quote prefixes every line of s for a Markdown blockquote.
func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
