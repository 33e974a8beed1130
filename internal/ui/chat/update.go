// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.refreshViewport(true)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case SessionEventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case TurnDoneMsg:
		m.handleTurnDone(msg)
		return m, nil

	case RefreshedMsg:
		m.offline = errors.Is(msg.Err, session.ErrOffline)
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		m.convs = m.chat.Conversations()
		return m, nil

	case OpenedMsg:
		if errors.Is(msg.Err, session.ErrOffline) {
			m.offline = true
			m.setStatus("Showing cached copy: backend unreachable")
		} else if msg.Err != nil {
			m.setError(fmt.Errorf("open: %w", msg.Err))
		}
		if msg.ID == m.current {
			m.refreshViewport(true)
		}
		return m, nil

	case DeletedMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
		} else {
			m.setStatus(fmt.Sprintf("Deleted %q", msg.Title))
		}
		m.convs = m.chat.Conversations()
		return m, nil

	case RenamedMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("rename: %w", msg.Err))
		} else {
			m.setStatus(fmt.Sprintf("Renamed to %q", msg.Title))
		}
		return m, nil

	case AttachedMsg:
		switch {
		case msg.Err != nil:
			m.setError(fmt.Errorf("attach: %w", msg.Err))
		default:
			m.setStatus(fmt.Sprintf("Attached %s (%s)", msg.Attachment.Filename, msg.Attachment.Status))
		}
		m.refreshViewport(false)
		return m, nil

	case ExportedMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("export: %w", msg.Err))
		} else {
			m.setStatus("Exported to " + msg.Path)
		}
		return m, nil

	case ConfigReloadedMsg:
		if m.onConfig != nil {
			m.onConfig(msg.Config)
		}
		m.markdown = msg.Config.UI.Markdown
		m.showTimings = msg.Config.UI.ShowTimings
		m.mdCache = make(map[string]string)
		m.setStatus("Configuration reloaded")
		m.refreshViewport(false)
		return m, nil

	case ConfigErrorMsg:
		m.setError(fmt.Errorf("config reload: %w", msg.Err))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy() {
			m.refreshViewport(false)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	// The viewport's own bindings (j, k, space...) would fire while typing.
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport, input and Markdown renderer for the window.
func (m *Model) layout() {
	m.theme.SetSize(m.width, m.height)

	mainWidth := m.width - m.theme.SidebarWidth()
	if m.theme.SidebarWidth() > 0 {
		mainWidth -= 2 // border and padding
	}
	if mainWidth < 20 {
		mainWidth = 20
	}

	vh := m.height - headerHeight - statusBarHeight - toolLineHeight - inputHeight - inputChrome - m.sourcesHeight()
	if vh < 3 {
		vh = 3
	}
	m.viewport.Width = mainWidth
	m.viewport.Height = vh
	m.input.SetWidth(m.width)

	if wrap := mainWidth - 2; wrap != m.mdWidth {
		m.mdWidth = wrap
		m.mdCache = make(map[string]string)
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			m.logger.Printf("WARN markdown renderer: %v", err)
			r = nil
		}
		m.md = r
	}
}

// sourcesHeight is the height of the sources panel, 0 when hidden.
func (m Model) sourcesHeight() int {
	if !m.showSources {
		return 0
	}
	n := len(m.latestSources())*2 + 1
	if n < 2 {
		n = 2
	}
	if limit := m.height / 3; n > limit {
		n = limit
	}
	return n
}

// refreshViewport re-renders the transcript. toBottom scrolls to the end;
// otherwise the view only follows new content when already at the bottom.
func (m *Model) refreshViewport(toBottom bool) {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript(m.viewport.Width))
	if toBottom || atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

func (m *Model) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventUpdated:
		m.convs = m.chat.Conversations()
		if ev.Err != nil {
			m.setError(ev.Err)
		}
		if m.indexOf(m.current) < 0 && !m.current.IsDraft() {
			// Deleted, or rolled back into a different position.
			m.current = m.chat.NewConversation()
			m.convs = m.chat.Conversations()
		}
		if ev.ConversationID.IsZero() || ev.ConversationID == m.current {
			m.refreshViewport(false)
		}

	case session.EventTurnStarted:
		m.live[ev.ConversationID] = stream.Live{}
		if m.awaitingDraft && m.current.IsDraft() && ev.ConversationID.IsProvisional() {
			m.current = ev.ConversationID
			m.awaitingDraft = false
		}
		m.convs = m.chat.Conversations()
		if ev.ConversationID == m.current {
			m.refreshViewport(true)
		}

	case session.EventLive:
		m.live[ev.ConversationID] = ev.Live
		if ev.ConversationID == m.current {
			m.refreshViewport(false)
		}

	case session.EventPromoted:
		if live, ok := m.live[ev.PreviousID]; ok {
			delete(m.live, ev.PreviousID)
			m.live[ev.ConversationID] = live
		}
		if m.current == ev.PreviousID {
			m.current = ev.ConversationID
		}
		m.convs = m.chat.Conversations()

	case session.EventTurnEnded:
		delete(m.live, ev.ConversationID)
		if ev.ConversationID == m.current {
			m.refreshViewport(false)
		}
	}
}

func (m *Model) handleTurnDone(msg TurnDoneMsg) {
	m.awaitingDraft = false
	switch {
	case msg.Err == nil:
		if m.status != "" && !m.statusErr {
			m.status = ""
		}
	case errors.Is(msg.Err, stream.ErrAbandoned):
		m.setStatus("Reply stopped")
	case errors.Is(msg.Err, session.ErrTurnInProgress):
		m.setError(msg.Err)
	default:
		// Failures are also in the transcript as a failed message.
		m.logger.Printf("turn failed: %v", msg.Err)
		m.setError(msg.Err)
	}
	m.convs = m.chat.Conversations()
	m.refreshViewport(false)
}

// =============================================================================
// KEYS
// =============================================================================

// handleKey processes global bindings. It returns handled=false for keys
// that belong to the input or viewport.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		for _, c := range m.convs {
			m.chat.Cancel(c.ID)
		}
		return tea.Quit, true

	case key.Matches(msg, m.keys.Abandon):
		switch {
		case m.busy():
			m.chat.Cancel(m.current)
		case m.editing != "":
			m.editing = ""
			m.input.Reset()
			m.setStatus("Edit cancelled")
		case m.showHelp:
			m.showHelp = false
		}
		return nil, true

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return nil, true

	case key.Matches(msg, m.keys.Send):
		return m.submit(), true

	case key.Matches(msg, m.keys.EditLast):
		m.startEdit()
		return nil, true

	case key.Matches(msg, m.keys.PrevVersion):
		m.stepVersion(-1)
		return nil, true

	case key.Matches(msg, m.keys.NextVersion):
		m.stepVersion(+1)
		return nil, true

	case key.Matches(msg, m.keys.NewChat):
		m.current = m.chat.NewConversation()
		m.editing = ""
		m.convs = m.chat.Conversations()
		m.refreshViewport(true)
		return nil, true

	case key.Matches(msg, m.keys.NextConv):
		return m.switchConversation(+1), true

	case key.Matches(msg, m.keys.PrevConv):
		return m.switchConversation(-1), true

	case key.Matches(msg, m.keys.Delete):
		return m.deleteCurrent(), true

	case key.Matches(msg, m.keys.Sources):
		m.showSources = !m.showSources
		m.layout()
		m.refreshViewport(false)
		return nil, true

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil, true

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil, true
	}
	return nil, false
}

// submit sends the input, resubmits an edit, or runs a slash command.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}
	if m.busy() {
		m.setError(session.ErrTurnInProgress)
		return nil
	}

	m.input.Reset()
	m.status = ""

	if m.editing != "" {
		msgID := m.editing
		m.editing = ""
		delete(m.versions, msgID)
		return editCmd(m.chat, m.current, msgID, text)
	}

	m.awaitingDraft = m.current.IsDraft()
	return sendCmd(m.chat, m.current, text)
}

// startEdit loads the last question into the input for resubmission.
func (m *Model) startEdit() {
	conv, ok := m.conversation()
	if !ok {
		return
	}
	last := conv.LastUserMessage()
	switch {
	case last == nil:
		m.setStatus("Nothing to edit yet")
	case m.busy():
		m.setError(session.ErrTurnInProgress)
	case !m.current.IsConfirmed():
		m.setError(session.ErrNotConfirmed)
	default:
		m.editing = last.ID
		m.input.SetValue(last.Content)
		m.input.CursorEnd()
		m.setStatus("Editing: enter resubmits, esc cancels")
	}
}

// stepVersion moves through the versions of the most recent edited message.
func (m *Model) stepVersion(delta int) {
	conv, ok := m.conversation()
	if !ok {
		return
	}
	target := versionTarget(conv)
	if target == nil {
		m.setStatus("No edited questions in this chat")
		return
	}
	total := target.Versions()
	next := m.shownVersion(target) + delta
	if next < 0 || next >= total {
		return
	}
	if next == total-1 {
		delete(m.versions, target.ID)
	} else {
		m.versions[target.ID] = next
	}
	m.setStatus(fmt.Sprintf("Version %d of %d", next+1, total))
	m.refreshViewport(false)
}

// switchConversation moves through the sidebar list, wrapping around.
func (m *Model) switchConversation(delta int) tea.Cmd {
	m.convs = m.chat.Conversations()
	if len(m.convs) == 0 {
		return nil
	}
	i := m.indexOf(m.current)
	if i < 0 {
		i = 0
	} else {
		i = (i + delta + len(m.convs)) % len(m.convs)
	}
	next := m.convs[i]
	m.current = next.ID
	m.editing = ""
	m.refreshViewport(true)
	if !next.Loaded && next.ID.IsConfirmed() {
		m.setStatus("Loading " + next.GetTitle() + "...")
		return openCmd(m.chat, next.ID)
	}
	return nil
}

// deleteCurrent deletes the conversation on screen and moves to the next.
func (m *Model) deleteCurrent() tea.Cmd {
	conv, ok := m.conversation()
	if !ok || m.current.IsDraft() {
		return nil
	}
	i := m.indexOf(m.current)
	cmd := deleteCmd(m.chat, m.current, conv.GetTitle())

	var next model.ID
	for j, c := range m.convs {
		if j != i && !c.ID.IsDraft() {
			next = c.ID
			if j > i {
				break
			}
		}
	}
	if next.IsZero() {
		next = m.chat.NewConversation()
	}
	m.current = next
	m.editing = ""
	m.refreshViewport(true)
	return cmd
}

// runCommand executes a slash command typed into the input.
func (m *Model) runCommand(line string) tea.Cmd {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/attach":
		if arg == "" {
			m.setStatus("usage: /attach <file>")
			return nil
		}
		m.setStatus("Uploading " + arg + "...")
		return attachCmd(m.chat, m.current, arg)
	case "/detach":
		if !m.chat.Detach(m.current, arg) {
			m.setStatus("No attachment " + arg)
		}
		m.refreshViewport(false)
	case "/rename":
		if arg == "" {
			m.setStatus("usage: /rename <title>")
			return nil
		}
		return renameCmd(m.chat, m.current, arg)
	case "/infographic", "/ghostwrite", "/ghostwriter":
		if arg == "" {
			m.setStatus("usage: " + name + " <prompt>")
			return nil
		}
		if m.busy() {
			m.setError(session.ErrTurnInProgress)
			return nil
		}
		kind := backend.GenerateInfographic
		if name != "/infographic" {
			kind = backend.GenerateGhostwriter
		}
		m.awaitingDraft = m.current.IsDraft()
		return generateCmd(m.chat, m.current, kind, arg)
	case "/export":
		return exportCmd(m.chat, m.current, arg)
	case "/refresh":
		m.setStatus("Refreshing...")
		return refreshCmd(m.chat)
	case "/help":
		m.showHelp = true
	default:
		m.setError(fmt.Errorf("unknown command %s (F1 for help)", name))
	}
	return nil
}
