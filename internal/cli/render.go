// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/ui/styles"
	"github.com/jeranaias/ragchat/internal/util"
)

// defaultDisclaimer is shown for low-confidence answers the backend did not
// explain.
const defaultDisclaimer = "The sources only partially support this answer. Check the citations before relying on it."

// =============================================================================
// RENDERER
// =============================================================================

// Renderer formats messages for the terminal. Without Markdown it produces
// plain text suitable for pipes.
type Renderer struct {
	md          *glamour.TermRenderer
	width       int
	showTimings bool
}

// NewRenderer creates a renderer. markdown enables glamour rendering;
// theme is "auto", "dark" or "light".
func NewRenderer(markdown bool, theme string, width int, showTimings bool) *Renderer {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	if width > MaxRenderWidth {
		width = MaxRenderWidth
	}
	r := &Renderer{width: width, showTimings: showTimings}
	if markdown {
		r.md = newMarkdownRenderer(theme, width-4)
	}
	return r
}

func newMarkdownRenderer(theme string, wrap int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	switch strings.ToLower(theme) {
	case styles.ModeDark, styles.ModeLight:
		style = glamour.WithStandardStyle(strings.ToLower(theme))
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))
	if err != nil {
		// Fall back to plain text.
		return nil
	}
	return r
}

// Markdown reports whether content is rendered through glamour. When it is,
// answers are printed once complete rather than token by token.
func (r *Renderer) Markdown() bool {
	return r.md != nil
}

// RenderMarkdown renders content, returning it unchanged on failure or when
// Markdown is off.
func (r *Renderer) RenderMarkdown(content string) string {
	if r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// ASSISTANT MESSAGES
// =============================================================================

// FormatRewrite renders the reformulated query, or "" when the backend kept
// the user's wording.
func (r *Renderer) FormatRewrite(rw *model.QueryRewrite) string {
	if rw == nil || rw.Rewritten == "" || strings.EqualFold(rw.Rewritten, rw.Original) {
		return ""
	}
	return DimStyle.Render("Searched for: "+rw.Rewritten) + "\n"
}

// FormatBody renders the answer text.
func (r *Renderer) FormatBody(msg *model.Message) string {
	if msg.Failed {
		return ErrorStyle.Render(msg.Content) + "\n"
	}
	body := r.RenderMarkdown(msg.Content)
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return body
}

// FormatFooter renders everything after the answer text: tool outcome,
// disclaimer, sources and timings.
func (r *Renderer) FormatFooter(msg *model.Message) string {
	var sb strings.Builder
	if tool := r.FormatTool(msg); tool != "" {
		sb.WriteString("\n" + tool)
	}
	if disclaimer := r.FormatDisclaimer(msg); disclaimer != "" {
		sb.WriteString("\n" + disclaimer)
	}
	if len(msg.Sources) > 0 {
		sb.WriteString("\n" + r.FormatSources(msg.Sources))
	}
	if r.showTimings && msg.Timings != nil {
		sb.WriteString("\n" + DimStyle.Render("[Timings] "+msg.Timings.Format()) + "\n")
	}
	return sb.String()
}

// FormatMessage renders a complete assistant message.
func (r *Renderer) FormatMessage(msg *model.Message) string {
	return r.FormatRewrite(msg.Rewrite) + r.FormatBody(msg) + r.FormatFooter(msg)
}

// FormatDisclaimer renders the low-confidence warning, or "".
func (r *Renderer) FormatDisclaimer(msg *model.Message) string {
	if !msg.NeedsDisclaimer() {
		return ""
	}
	text := msg.Disclaimer
	if text == "" {
		text = defaultDisclaimer
	}
	label := "[!] Low confidence"
	if msg.Confidence != nil && msg.Confidence.Level != "" {
		label = fmt.Sprintf("[!] Confidence: %s", msg.Confidence.Level)
	}
	return WarningStyle.Render(label) + "\n" + WarningStyle.Render(wrapPlain(text, r.width-2)) + "\n"
}

// FormatTool renders the outcome of a tool invocation, or "".
func (r *Renderer) FormatTool(msg *model.Message) string {
	if !msg.HasTool() {
		return ""
	}
	var sb strings.Builder
	if msg.ToolError != "" {
		sb.WriteString(RenderStatus("failed") + " " + msg.ToolName + ": " + msg.ToolError + "\n")
		return sb.String()
	}
	sb.WriteString(RenderStatus("ok") + " " + msg.ToolName + "\n")
	if res := msg.ToolResult; res != nil {
		if res.ImageURL != "" {
			sb.WriteString(RenderLabel("Image") + res.ImageURL + "\n")
		}
		if res.Text != "" && res.Text != msg.Content {
			sb.WriteString(r.RenderMarkdown(res.Text))
			if !strings.HasSuffix(res.Text, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// FormatToolState renders a live tool status line for a turn in progress.
func FormatToolState(state model.ToolState) string {
	if state.ToolName == "" {
		return ""
	}
	line := fmt.Sprintf("[Tool] %s: %s", state.ToolName, state.Status)
	if state.Message != "" {
		line += " - " + util.SingleLine(state.Message)
	}
	if state.Status == model.ToolError {
		return ErrorStyle.Render(line)
	}
	return InfoStyle.Render(line)
}

// =============================================================================
// SOURCES
// =============================================================================

// FormatSources renders a numbered citation list with relevance bars.
func (r *Renderer) FormatSources(sources []model.Source) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(fmt.Sprintf("Sources (%d)", len(sources))) + "\n")

	for i, s := range sources {
		bar := lipgloss.NewStyle().
			Foreground(styles.ScoreColor(s.RelevanceScore)).
			Render(styles.RenderProgressBar(10, s.RelevanceScore))

		title := util.SingleLine(s.Title)
		if title == "" {
			title = "Untitled"
		}
		prefix := fmt.Sprintf("%2d. ", i+1)
		score := " " + util.PadWidth(s.FormatScore(), 5)
		room := r.width - util.StringWidth(prefix) - 10 - util.StringWidth(score) - 2
		sb.WriteString(prefix + bar + score + " " + util.TruncateWidth(title, room) + "\n")

		var meta []string
		if !s.Date.IsZero() {
			meta = append(meta, s.Date.String())
		}
		if s.MeetingCategory != "" {
			meta = append(meta, s.MeetingCategory)
		}
		if len(s.Speakers) > 0 {
			meta = append(meta, strings.Join(s.Speakers, ", "))
		}
		if len(meta) > 0 {
			sb.WriteString("    " + DimStyle.Render(util.TruncateWidth(strings.Join(meta, " | "), r.width-4)) + "\n")
		}
		if snippet := util.SingleLine(s.Snippet()); snippet != "" {
			sb.WriteString("    " + DimStyle.Render(util.TruncateWidth(snippet, r.width-4)) + "\n")
		}
	}
	return sb.String()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// FormatConversationList renders a numbered conversation list with the
// current one marked.
func FormatConversationList(convs []*model.Conversation, current model.ID, now time.Time) string {
	if len(convs) == 0 {
		return DimStyle.Render("No conversations yet.") + "\n"
	}
	var sb strings.Builder
	for i, c := range convs {
		marker := "  "
		if c.ID == current {
			marker = PromptStyle.Render("> ")
		}
		count := c.MessageCount
		if len(c.Messages) > count {
			count = len(c.Messages)
		}
		title := util.TruncateWidth(util.SingleLine(c.GetTitle()), 44)
		meta := fmt.Sprintf("%d msgs", count)
		if age := formatAge(c.UpdatedAt, now); age != "" {
			meta += ", " + age
		}
		if c.ID.IsDraft() || c.ID.IsProvisional() {
			meta += ", unsaved"
		}
		sb.WriteString(fmt.Sprintf("%s%3d. %s %s\n", marker, i+1, util.PadWidth(title, 44), DimStyle.Render(meta)))
	}
	return sb.String()
}

// FormatTranscript renders the whole conversation.
func (r *Renderer) FormatTranscript(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(conv.GetTitle()) + "\n")
	sb.WriteString(RenderSeparator(util.StringWidth(conv.GetTitle())) + "\n")

	userNum := 0
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			userNum++
			label := fmt.Sprintf("%s #%d", msg.Role.DisplayName(), userNum)
			if msg.Versions() > 1 {
				label += fmt.Sprintf(" (edited, %d versions)", msg.Versions())
			}
			sb.WriteString("\n" + PromptStyle.Render(label) + "\n")
			sb.WriteString(msg.Content + "\n")
			for _, att := range msg.Attachments {
				sb.WriteString(DimStyle.Render("  attached: "+att.Filename) + "\n")
			}
		case model.RoleAssistant:
			sb.WriteString("\n" + TitleStyle.Render(msg.Role.DisplayName()) + "\n")
			sb.WriteString(r.FormatMessage(msg))
		default:
			sb.WriteString("\n" + DimStyle.Render(msg.Role.DisplayName()+": "+msg.Content) + "\n")
		}
	}
	return sb.String()
}

// FormatExchange renders one version of an edited exchange.
func (r *Renderer) FormatExchange(pe model.PairedExchange, version, total int) string {
	var sb strings.Builder
	label := fmt.Sprintf("Version %d/%d", version+1, total)
	if version+1 == total {
		label += " (current)"
	}
	sb.WriteString(InfoStyle.Render(label) + "\n")
	sb.WriteString(PromptStyle.Render("You") + "\n" + pe.UserContent + "\n\n")
	sb.WriteString(TitleStyle.Render("Assistant") + "\n")
	if pe.AssistantContent == "" {
		sb.WriteString(DimStyle.Render("(no response)") + "\n")
	} else {
		sb.WriteString(r.RenderMarkdown(pe.AssistantContent))
		if !strings.HasSuffix(pe.AssistantContent, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatAttachment renders one attachment with its processing status.
func FormatAttachment(att model.Attachment) string {
	line := RenderStatus(string(att.Status)) + " " + att.Filename
	if att.FileSize > 0 {
		line += DimStyle.Render(" (" + formatBytes(att.FileSize) + ")")
	}
	if att.ID != "" {
		line += DimStyle.Render(" id=" + att.ID)
	}
	if att.Error != "" {
		line += " " + ErrorStyle.Render(att.Error)
	}
	return line
}

// wrapPlain word-wraps text at width display columns.
func wrapPlain(text string, width int) string {
	if width <= 10 {
		return text
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if util.StringWidth(line)+1+util.StringWidth(w) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
