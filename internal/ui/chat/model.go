// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/ui/styles"
	"github.com/jeranaias/ragchat/internal/util"
)

// Fixed heights of the chrome around the transcript.
const (
	headerHeight    = 1
	statusBarHeight = 1
	toolLineHeight  = 1
	inputHeight     = 3
	inputChrome     = 1 // top border
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures New.
type Options struct {
	Chat        *session.Chat
	Theme       *styles.Theme
	Markdown    bool
	ShowTimings bool
	BackendURL  string

	// OnConfig applies a configuration reloaded from disk.
	OnConfig func(cfg *config.Config)

	Logger *log.Logger
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	chat   *session.Chat
	theme  *styles.Theme
	keys   KeyMap
	logger *log.Logger

	width  int
	height int
	ready  bool

	// current is the conversation on screen. It follows promotions.
	current model.ID
	// awaitingDraft is set while a send from the draft waits for its
	// provisional conversation to appear.
	awaitingDraft bool
	convs         []*model.Conversation
	live          map[model.ID]stream.Live

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	md      *glamour.TermRenderer
	mdWidth int
	mdCache map[string]string

	// editing is the ID of the user message being edited, "" otherwise.
	editing string
	// versions maps a user message ID to the version on screen.
	versions map[string]int

	showSources bool
	showHelp    bool

	status    string
	statusErr bool
	offline   bool

	markdown    bool
	showTimings bool
	backendURL  string
	onConfig    func(cfg *config.Config)
}

// New creates the chat view.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}

	ta := textarea.New()
	ta.Placeholder = "Ask about your meetings and documents..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = styles.LineSpinner.Spinner()
	sp.Style = theme.Spinner

	return Model{
		chat:        opts.Chat,
		theme:       theme,
		keys:        DefaultKeyMap(),
		logger:      util.OrDiscard(opts.Logger),
		current:     opts.Chat.NewConversation(),
		live:        make(map[model.ID]stream.Live),
		viewport:    viewport.New(0, 0),
		input:       ta,
		spinner:     sp,
		mdCache:     make(map[string]string),
		versions:    make(map[string]int),
		markdown:    opts.Markdown,
		showTimings: opts.ShowTimings,
		backendURL:  opts.BackendURL,
		onConfig:    opts.OnConfig,
		convs:       opts.Chat.Conversations(),
	}
}

// Init starts the cursor blink and spinner and loads the conversation list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, refreshCmd(m.chat))
}

// Current returns the conversation on screen.
func (m Model) Current() model.ID {
	return m.current
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// conversation returns a snapshot of the conversation on screen.
func (m Model) conversation() (*model.Conversation, bool) {
	return m.chat.Get(m.current)
}

// busy reports whether the conversation on screen is streaming.
func (m Model) busy() bool {
	return m.chat.Busy(m.current)
}

// indexOf returns the position of id in the sidebar list, or -1.
func (m Model) indexOf(id model.ID) int {
	for i, c := range m.convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (m *Model) setStatus(msg string) {
	m.status = msg
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

// versionTarget returns the most recent edited user message, which the
// version keys step through.
func versionTarget(conv *model.Conversation) *model.Message {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if msg := conv.Messages[i]; msg.Role == model.RoleUser && msg.Versions() > 1 {
			return msg
		}
	}
	return nil
}

// shownVersion returns the version of msg on screen; the live version by
// default.
func (m Model) shownVersion(msg *model.Message) int {
	last := msg.Versions() - 1
	if v, ok := m.versions[msg.ID]; ok && v >= 0 && v < last {
		return v
	}
	return last
}

// latestSources returns the sources of the newest answer on screen.
func (m Model) latestSources() []model.Source {
	if live, ok := m.live[m.current]; ok && len(live.Sources) > 0 {
		return live.Sources
	}
	conv, ok := m.conversation()
	if !ok {
		return nil
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if msg := conv.Messages[i]; msg.Role == model.RoleAssistant {
			if msg.ToolResult != nil && len(msg.ToolResult.Sources) > 0 && len(msg.Sources) == 0 {
				return msg.ToolResult.Sources
			}
			return msg.Sources
		}
	}
	return nil
}
