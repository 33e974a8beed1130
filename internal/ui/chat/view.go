// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/ui/styles"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	pane := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.renderToolLine(),
	)
	if m.showSources {
		pane = lipgloss.JoinVertical(lipgloss.Left, pane, m.renderSources(m.viewport.Width))
	}

	body := pane
	if w := m.theme.SidebarWidth(); w > 0 {
		sidebar := m.renderSidebar(w, m.viewport.Height+toolLineHeight+m.sourcesHeight())
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, pane)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderStatusBar(),
	)
}

// =============================================================================
// HEADER & SIDEBAR
// =============================================================================

func (m Model) renderHeader() string {
	title := "New chat"
	if conv, ok := m.conversation(); ok {
		title = conv.GetTitle()
	}

	meta := m.backendURL
	if m.offline {
		meta = "offline"
	}
	if !m.current.IsConfirmed() && !m.current.IsDraft() {
		meta += " | saving..."
	}

	left := m.theme.HeaderTitle.Render("ragchat") + " " + util.TruncateWidth(title, m.width/2)
	right := m.theme.HeaderMeta.Render(meta)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderSidebar(width, height int) string {
	inner := width - 2
	var lines []string
	lines = append(lines, m.theme.SidebarMeta.Render(fmt.Sprintf("%d chats", len(m.convs))))

	for _, c := range m.convs {
		if len(lines) >= height-1 {
			break
		}
		title := c.GetTitle()
		if c.ID.IsDraft() {
			title = "+ new chat"
		}
		marker := "  "
		if m.chat.Busy(c.ID) {
			marker = m.spinner.View() + " "
		} else if !c.ID.IsConfirmed() && !c.ID.IsDraft() {
			marker = "~ "
		}
		line := util.PadWidth(util.TruncateWidth(marker+util.SingleLine(title), inner), inner)
		if c.ID == m.current {
			lines = append(lines, m.theme.SidebarSelected.Render(line))
		} else {
			lines = append(lines, m.theme.SidebarItem.Render(line))
		}
	}

	return m.theme.Sidebar.Width(inner).Height(height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders the conversation on screen, including the live
// turn, for the given width.
func (m Model) renderTranscript(width int) string {
	conv, ok := m.conversation()
	if !ok || (len(conv.Messages) == 0 && !conv.Loaded && conv.ID.IsConfirmed()) {
		if ok {
			return m.theme.InfoStyle.Render("Loading...")
		}
		return ""
	}
	if len(conv.Messages) == 0 && len(conv.ActiveAttachments) == 0 {
		return m.renderWelcome()
	}

	var sb strings.Builder
	target := versionTarget(conv)
	for i := 0; i < len(conv.Messages); i++ {
		msg := conv.Messages[i]
		switch msg.Role {
		case model.RoleUser:
			if target != nil && msg.ID == target.ID {
				if v := m.shownVersion(msg); v < msg.Versions()-1 {
					sb.WriteString(m.renderHistorical(conv, msg, v, width))
					// Skip the live answer; the historical one replaced it.
					if i+1 < len(conv.Messages) && conv.Messages[i+1].Role == model.RoleAssistant {
						i++
					}
					continue
				}
			}
			sb.WriteString(m.renderUser(msg, width))
		case model.RoleAssistant:
			sb.WriteString(m.renderAssistant(msg, width))
		default:
			sb.WriteString(m.theme.MessageMeta.Render(msg.Content) + "\n\n")
		}
	}

	if live, ok := m.live[m.current]; ok {
		sb.WriteString(m.renderLive(live, width))
	}

	if len(conv.ActiveAttachments) > 0 {
		var names []string
		for _, a := range conv.ActiveAttachments {
			names = append(names, attachmentLabel(a))
		}
		sb.WriteString(m.theme.Attachment.Render("Attached: " + strings.Join(names, ", ")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) renderWelcome() string {
	lines := []string{
		m.theme.HeaderTitle.Render("Ask a question about your meetings and documents."),
		"",
		m.theme.MessageMeta.Render("Answers cite the transcripts they came from. Press F1 for keys and commands."),
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderUser(msg *model.Message, width int) string {
	var sb strings.Builder
	label := m.theme.UserLabel.Render("You")
	if n := msg.Versions(); n > 1 {
		label += " " + m.theme.VersionNav.Render(fmt.Sprintf("< %d/%d >", m.shownVersion(msg)+1, n))
	}
	if m.editing == msg.ID {
		label += " " + m.theme.WarningStyle.Render("(editing)")
	}
	sb.WriteString(label + "\n")
	sb.WriteString(wrap(msg.Content, width) + "\n")
	for _, a := range msg.Attachments {
		sb.WriteString(m.theme.Attachment.Render("  [doc] "+attachmentLabel(a)) + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// renderHistorical renders an earlier (question, answer) pair of an edited
// message.
func (m Model) renderHistorical(conv *model.Conversation, msg *model.Message, version, width int) string {
	ex, ok := conv.Exchange(msg.ID, version)
	if !ok {
		return m.renderUser(msg, width)
	}
	var sb strings.Builder
	sb.WriteString(m.theme.UserLabel.Render("You") + " " +
		m.theme.VersionNav.Render(fmt.Sprintf("< %d/%d >", version+1, msg.Versions())) + " " +
		m.theme.MessageMeta.Render("(earlier version)") + "\n")
	sb.WriteString(wrap(ex.UserContent, width) + "\n\n")
	sb.WriteString(m.theme.AssistantLabel.Render("Assistant") + "\n")
	sb.WriteString(m.renderMarkdown(ex.AssistantContent, width) + "\n\n")
	return sb.String()
}

func (m Model) renderAssistant(msg *model.Message, width int) string {
	var sb strings.Builder
	if msg.Failed {
		sb.WriteString(m.theme.FailedLabel.Render("Failed") + "\n")
		sb.WriteString(m.theme.ErrorStyle.Render(wrap(msg.Content, width)) + "\n\n")
		return sb.String()
	}

	sb.WriteString(m.theme.AssistantLabel.Render("Assistant") + "\n")
	if msg.Rewrite != nil && msg.Rewrite.Rewritten != "" {
		sb.WriteString(m.theme.Rewrite.Render("Searched for: "+msg.Rewrite.Rewritten) + "\n")
	}
	if msg.ToolName != "" {
		sb.WriteString(m.renderToolOutcome(msg.ToolName, msg.ToolResult, msg.ToolError) + "\n")
	}
	sb.WriteString(m.renderMarkdown(msg.Content, width) + "\n")
	if msg.Disclaimer != "" {
		sb.WriteString(m.theme.Disclaimer.Render(wrap(msg.Disclaimer, width)) + "\n")
	}
	if meta := m.messageMeta(msg.Sources, msg.Confidence, msg.Timings); meta != "" {
		sb.WriteString(m.theme.MessageMeta.Render(meta) + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// renderLive renders the reply being streamed. It is plain text until the
// turn ends.
func (m Model) renderLive(live stream.Live, width int) string {
	var sb strings.Builder
	sb.WriteString(m.theme.AssistantLabel.Render("Assistant") + " " + m.spinner.View() + "\n")
	if live.Rewrite != nil && live.Rewrite.Rewritten != "" {
		sb.WriteString(m.theme.Rewrite.Render("Searched for: "+live.Rewrite.Rewritten) + "\n")
	}
	if live.Content == "" {
		if len(live.Sources) > 0 {
			sb.WriteString(m.theme.MessageMeta.Render(fmt.Sprintf("Found %d sources, writing answer...", len(live.Sources))) + "\n")
		} else {
			sb.WriteString(m.theme.MessageMeta.Render("Searching...") + "\n")
		}
	} else {
		sb.WriteString(wrap(live.Content, width) + "\n")
	}
	if live.Disclaimer != "" {
		sb.WriteString(m.theme.Disclaimer.Render(wrap(live.Disclaimer, width)) + "\n")
	}
	return sb.String()
}

// renderToolLine shows the state of the tool running in the current turn.
func (m Model) renderToolLine() string {
	live, ok := m.live[m.current]
	if !ok || live.Tool.Status == model.ToolIdle {
		return ""
	}
	t := live.Tool
	switch t.Status {
	case model.ToolComplete:
		return m.theme.ToolSuccess.Render("[OK] " + t.ToolName)
	case model.ToolError:
		return m.theme.ToolError.Render("[ERR] " + t.ToolName + ": " + t.Error)
	default:
		line := m.spinner.View() + " " + t.ToolName
		if t.Message != "" {
			line += ": " + t.Message
		}
		return m.theme.ToolRunning.Render(util.TruncateWidth(line, m.viewport.Width))
	}
}

func (m Model) renderToolOutcome(name string, result *model.ToolResult, toolErr string) string {
	if toolErr != "" {
		return m.theme.ToolError.Render("[ERR] " + name + ": " + toolErr)
	}
	line := m.theme.ToolSuccess.Render("[OK] " + name)
	if result != nil && result.ImageURL != "" {
		line += " " + m.theme.LinkStyle.Render(result.ImageURL)
	}
	return line
}

func (m Model) messageMeta(sources []model.Source, conf *model.Confidence, timings *model.Timings) string {
	var parts []string
	if n := len(sources); n > 0 {
		parts = append(parts, fmt.Sprintf("%d sources (C-o)", n))
	}
	if conf != nil && conf.Level != "" {
		parts = append(parts, "confidence "+string(conf.Level))
	}
	if m.showTimings && timings != nil {
		parts = append(parts, timings.Format())
	}
	return strings.Join(parts, " | ")
}

// renderMarkdown renders finished content with glamour, falling back to
// wrapped plain text.
func (m Model) renderMarkdown(content string, width int) string {
	if !m.markdown || m.md == nil || content == "" {
		return wrap(content, width)
	}
	if out, ok := m.mdCache[content]; ok {
		return out
	}
	out, err := m.md.Render(content)
	if err != nil {
		return wrap(content, width)
	}
	out = strings.Trim(out, "\n")
	m.mdCache[content] = out
	return out
}

// =============================================================================
// SOURCES PANEL
// =============================================================================

func (m Model) renderSources(width int) string {
	sources := m.latestSources()
	if len(sources) == 0 {
		return m.theme.SourceMeta.Render("No sources for the latest answer.")
	}

	lines := []string{m.theme.SourceTitle.Render(fmt.Sprintf("Sources (%d)", len(sources)))}
	limit := m.sourcesHeight() - 1
	for i, s := range sources {
		if len(lines)+2 > limit+1 {
			lines = append(lines, m.theme.SourceMeta.Render(fmt.Sprintf("... %d more", len(sources)-i)))
			break
		}
		bar := lipgloss.NewStyle().Foreground(styles.ScoreColor(s.RelevanceScore)).
			Render(styles.RenderProgressBar(10, s.RelevanceScore))
		head := fmt.Sprintf("%d. %s %s %s", i+1, bar, s.FormatScore(), s.Title)
		if !s.Date.IsZero() {
			head += m.theme.SourceMeta.Render(" " + s.Date.String())
		}
		lines = append(lines, util.TruncateWidth(head, width))
		lines = append(lines, m.theme.SourceSnippet.Render(util.TruncateWidth("   "+util.SingleLine(s.Snippet()), width)))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// INPUT & STATUS BAR
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.status != "" && m.statusErr:
		left = m.theme.ErrorStyle.Render(m.status)
	case m.status != "":
		left = m.theme.InfoStyle.Render(m.status)
	}

	bindings := m.keys.ShortHelp()
	if m.busy() {
		bindings = m.keys.StreamingHelp()
	}
	right := m.renderBindings(bindings)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		// Not enough room; the status wins.
		return m.theme.StatusBar.Width(m.width).Render(util.TruncateWidth(left, m.width))
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderBindings(bindings []key.Binding) string {
	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderHelp() string {
	var sb strings.Builder
	sb.WriteString(m.theme.HeaderTitle.Render("Keys") + "\n\n")
	for _, group := range m.keys.FullHelp() {
		for _, b := range group {
			h := b.Help()
			sb.WriteString("  " + m.theme.ShortcutKey.Render(util.PadWidth(h.Key, 12)) + m.theme.ShortcutDesc.Render(h.Desc) + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(m.theme.HeaderTitle.Render("Commands") + "\n\n")
	for _, c := range slashCommands {
		sb.WriteString("  " + m.theme.ShortcutKey.Render(util.PadWidth(c[0], 24)) + m.theme.ShortcutDesc.Render(c[1]) + "\n")
	}
	sb.WriteString("\n" + m.theme.MessageMeta.Render("esc or F1 to close"))
	return lipgloss.NewStyle().Padding(1, 2).Render(sb.String())
}

// =============================================================================
// HELPERS
// =============================================================================

func attachmentLabel(a model.Attachment) string {
	switch a.Status {
	case model.AttachmentCompleted:
		return a.Filename
	case model.AttachmentFailed:
		return a.Filename + " (failed)"
	default:
		return a.Filename + " (" + string(a.Status) + ")"
	}
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
