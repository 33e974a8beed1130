// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive line-mode chat.
//
// Command: chat
// Short:   Chat in the terminal without the full-screen interface
//
// Examples:
//   ragchat chat
//   ragchat chat -c 42
//   ragchat chat --no-history
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and input history for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI whose history lives in the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(configDir, "chat_history")}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// lineReader is the input side of the REPL.
type lineReader interface {
	ReadInput(prompt string) (string, error)
}

// repl is one interactive chat session.
type repl struct {
	app      *App
	input    lineReader
	out      io.Writer
	renderer *Renderer
	printer  *streamPrinter

	current model.ID

	// Version browsing for /prev and /next.
	viewMsg     string
	viewVersion int

	mu     sync.Mutex
	cancel context.CancelFunc

	turns int
	start time.Time
}

func newREPL(app *App, input lineReader, out io.Writer, renderer *Renderer, printer *streamPrinter) *repl {
	r := &repl{
		app:      app,
		input:    input,
		out:      out,
		renderer: renderer,
		printer:  printer,
		current:  model.DraftID(),
		start:    time.Now(),
	}
	printer.promoted = func(old, current model.ID) {
		if r.current == old {
			r.current = current
		}
	}
	return r
}

// HandleChatCommand runs the interactive line-mode chat.
func HandleChatCommand(args Args) error {
	var printer *streamPrinter
	app, err := NewApp(args, AppOptions{
		RequireBackend: true,
		Listener: func(ev session.Event) {
			if printer != nil {
				printer.Listen(ev)
			}
		},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config()
	renderer := NewRenderer(IsStdoutTTY() && cfg.UI.Markdown, cfg.UI.Theme, GetTerminalWidth(), cfg.UI.ShowTimings)
	printer = newStreamPrinter(os.Stdout, os.Stdout, renderer)

	input := NewChatCLI()
	defer input.Close()

	r := newREPL(app, input, os.Stdout, renderer, printer)

	ctx := context.Background()
	if err := app.Chat.Refresh(ctx); err != nil {
		if !errors.Is(err, session.ErrOffline) {
			return err
		}
		r.warn(err)
	}
	if args.Conversation != "" {
		if err := r.open(ctx, args.Conversation); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if r.cancelTurn() {
				fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	if !args.Quiet {
		r.printWelcome()
	}
	return r.run(ctx)
}

// run reads lines until /quit, Ctrl+C at the prompt or EOF.
func (r *repl) run(ctx context.Context) error {
	for {
		line, err := r.input.ReadInput(PromptStyle.Render("ragchat> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				r.printExitSummary()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			r.printExitSummary()
			return nil
		}

		if strings.HasPrefix(line, "/") {
			keepGoing, err := r.handleSlashCommand(ctx, line)
			if err != nil {
				r.printErr(err)
			}
			if !keepGoing {
				r.printExitSummary()
				return nil
			}
			continue
		}

		if err := r.turn(ctx, func(ctx context.Context) (*model.Message, error) {
			return r.app.Chat.Send(ctx, r.current, line, nil)
		}); err != nil {
			r.printErr(err)
		}
	}
}

// turn runs one streaming call with its own cancel function for Ctrl+C.
func (r *repl) turn(parent context.Context, call func(ctx context.Context) (*model.Message, error)) error {
	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	msg, err := call(ctx)
	r.printer.Finish(msg)
	if id := r.printer.Conversation(); !id.IsZero() && msg != nil {
		r.current = r.app.Chat.Store().Resolve(id)
	}
	r.viewMsg = ""

	switch {
	case err == nil:
		r.turns++
		return nil
	case errors.Is(err, stream.ErrAbandoned):
		return nil
	case msg != nil && msg.Failed:
		// The failure text is already on screen.
		r.app.Logger.Printf("turn failed: %v", err)
		return nil
	}
	return err
}

// cancelTurn abandons the streaming turn, if any.
func (r *repl) cancelTurn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs one slash command. It returns false to quit.
func (r *repl) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	command, rest, _ := strings.Cut(line, " ")
	command = strings.ToLower(command)
	rest = strings.TrimSpace(rest)

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
	case "/quit", "/q", "/exit":
		return false, nil

	case "/new", "/n":
		r.current = r.app.Chat.NewConversation()
		r.viewMsg = ""
		r.info("New conversation")
	case "/list", "/ls":
		fmt.Fprint(r.out, FormatConversationList(r.app.Chat.Conversations(), r.current, time.Now()))
	case "/open", "/o":
		if rest == "" {
			return true, errors.New("usage: /open <number|id>")
		}
		if err := r.open(ctx, rest); err != nil {
			return true, err
		}
		r.showHistory()
	case "/history":
		r.showHistory()
	case "/delete":
		return true, r.deleteCurrent(ctx)
	case "/rename":
		if rest == "" {
			return true, errors.New("usage: /rename <title>")
		}
		if err := r.app.Chat.Rename(ctx, r.current, rest); err != nil {
			return true, err
		}
		r.info("Renamed to " + strconv.Quote(rest))

	case "/edit", "/e":
		return true, r.edit(ctx, rest)
	case "/prev":
		return true, r.browseVersion(-1)
	case "/next":
		return true, r.browseVersion(+1)

	case "/attach", "/a":
		if rest == "" {
			r.listAttachments()
			return true, nil
		}
		return true, r.attach(ctx, rest)
	case "/detach":
		if rest == "" {
			return true, errors.New("usage: /detach <attachment id>")
		}
		if !r.app.Chat.Detach(r.current, rest) {
			return true, ErrNotFound("attachment", rest)
		}
		r.info("Detached " + rest)

	case "/infographic":
		return true, r.generate(ctx, backend.GenerateInfographic, rest)
	case "/ghostwrite", "/ghostwriter":
		return true, r.generate(ctx, backend.GenerateGhostwriter, rest)

	case "/sources":
		r.showSources()
	case "/export":
		conv, err := r.loadedCurrent(ctx)
		if err != nil {
			return true, err
		}
		path, err := exportCurrent(conv, rest)
		if err != nil {
			return true, err
		}
		r.info("Exported to " + path)

	case "/cached":
		return true, r.cached(ctx, "")
	case "/search":
		if rest == "" {
			return true, errors.New("usage: /search <text>")
		}
		return true, r.cached(ctx, rest)

	case "/include-history":
		return true, r.includeHistory(rest)

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

// open switches to a conversation by list number or ID.
func (r *repl) open(ctx context.Context, ref string) error {
	id := model.ParseID(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		convs := r.app.Chat.Conversations()
		if n >= 1 && n <= len(convs) {
			id = convs[n-1].ID
		}
	}

	conv, err := r.app.Chat.Open(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrNotFound("conversation", ref)
	case errors.Is(err, session.ErrOffline):
		r.warn(err)
	case err != nil:
		return err
	}
	r.current = conv.ID
	r.viewMsg = ""
	return nil
}

// loadedCurrent returns the current conversation with its history.
func (r *repl) loadedCurrent(ctx context.Context) (*model.Conversation, error) {
	conv, err := r.app.Chat.Open(ctx, r.current)
	if errors.Is(err, session.ErrOffline) {
		r.warn(err)
		err = nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return nil, errors.New("no conversation yet; ask something first")
	}
	return conv, err
}

func (r *repl) showHistory() {
	conv, err := r.loadedCurrent(context.Background())
	if err != nil {
		r.printErr(err)
		return
	}
	if len(conv.Messages) == 0 {
		r.info("No messages yet")
		return
	}
	fmt.Fprint(r.out, r.renderer.FormatTranscript(conv))
}

func (r *repl) deleteCurrent(ctx context.Context) error {
	conv, ok := r.app.Chat.Get(r.current)
	if !ok || r.current.IsDraft() {
		return errors.New("nothing to delete")
	}
	if err := r.app.Chat.Delete(ctx, conv.ID); err != nil {
		return err
	}
	r.info("Deleted " + strconv.Quote(conv.GetTitle()))
	r.current = r.app.Chat.NewConversation()
	return nil
}

// edit resubmits a user message. "/edit text" edits the last one,
// "/edit #n text" the nth.
func (r *repl) edit(ctx context.Context, rest string) error {
	conv, err := r.loadedCurrent(ctx)
	if err != nil {
		return err
	}
	target := conv.LastUserMessage()
	if strings.HasPrefix(rest, "#") {
		ref, text, _ := strings.Cut(rest, " ")
		n, convErr := strconv.Atoi(strings.TrimPrefix(ref, "#"))
		if convErr != nil {
			return fmt.Errorf("invalid message number %q", ref)
		}
		target = nthUserMessage(conv, n)
		rest = strings.TrimSpace(text)
	}
	if target == nil {
		return errors.New("no message to edit")
	}
	if rest == "" {
		return errors.New("usage: /edit [#n] <new text>")
	}

	msgID := target.ID
	return r.turn(ctx, func(ctx context.Context) (*model.Message, error) {
		return r.app.Chat.Edit(ctx, r.current, msgID, rest)
	})
}

// nthUserMessage returns the nth user message, counting from 1.
func nthUserMessage(conv *model.Conversation, n int) *model.Message {
	for _, m := range conv.Messages {
		if m.Role != model.RoleUser {
			continue
		}
		n--
		if n == 0 {
			return m
		}
	}
	return nil
}

// browseVersion steps through the versions of the last edited message.
func (r *repl) browseVersion(delta int) error {
	conv, ok := r.app.Chat.Get(r.current)
	if !ok {
		return errors.New("no conversation yet")
	}

	msg := conv.MessageByID(r.viewMsg)
	if msg == nil {
		msg = lastEditedMessage(conv)
		if msg == nil {
			return errors.New("no edited messages in this conversation")
		}
		r.viewMsg = msg.ID
		r.viewVersion = msg.Versions() - 1
	}

	total := msg.Versions()
	next := r.viewVersion + delta
	if next < 0 || next >= total {
		return fmt.Errorf("already at version %d of %d", r.viewVersion+1, total)
	}
	r.viewVersion = next

	pe, _ := conv.Exchange(msg.ID, next)
	fmt.Fprint(r.out, r.renderer.FormatExchange(pe, next, total))
	return nil
}

func lastEditedMessage(conv *model.Conversation) *model.Message {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if m := conv.Messages[i]; m.Role == model.RoleUser && m.Versions() > 1 {
			return m
		}
	}
	return nil
}

func (r *repl) attach(ctx context.Context, path string) error {
	_, err := attachFile(ctx, r.app.Chat, r.current, path, r.out)
	return err
}

func (r *repl) listAttachments() {
	conv, ok := r.app.Chat.Get(r.current)
	if !ok || len(conv.ActiveAttachments) == 0 {
		r.info("No attachments (use /attach <file>)")
		return
	}
	for _, att := range conv.ActiveAttachments {
		fmt.Fprintln(r.out, FormatAttachment(att))
	}
}

func (r *repl) generate(ctx context.Context, kind backend.GenerateKind, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("usage: /%s <prompt>", kind)
	}
	return r.turn(ctx, func(ctx context.Context) (*model.Message, error) {
		return r.app.Chat.Generate(ctx, r.current, kind, prompt)
	})
}

// showSources prints the citations of the latest answer.
func (r *repl) showSources() {
	conv, ok := r.app.Chat.Get(r.current)
	if !ok {
		r.info("No answer yet")
		return
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if m := conv.Messages[i]; m.Role == model.RoleAssistant {
			if len(m.Sources) == 0 {
				r.info("The last answer cited no sources")
				return
			}
			fmt.Fprint(r.out, r.renderer.FormatSources(m.Sources))
			return
		}
	}
	r.info("No answer yet")
}

// cached lists or searches the local conversation cache.
func (r *repl) cached(ctx context.Context, query string) error {
	if r.app.Cache == nil {
		return errors.New("the local cache is disabled")
	}
	var (
		metas []storage.Meta
		err   error
	)
	if query == "" {
		metas, err = r.app.Cache.List(ctx)
	} else {
		metas, err = r.app.Cache.Search(ctx, query)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, storage.FormatList(metas))
	return nil
}

func (r *repl) includeHistory(arg string) error {
	if arg == "" {
		state := "off"
		if r.app.Config().Chat.IncludeHistory {
			state = "on"
		}
		r.info("include-history is " + state)
		return nil
	}
	on, err := ParseBoolString(arg)
	if err != nil {
		return errors.New("usage: /include-history on|off")
	}
	r.app.Update(func(cfg *config.Config) { cfg.Chat.IncludeHistory = on })
	r.info(fmt.Sprintf("include-history set to %v for this session", on))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *repl) info(msg string) {
	fmt.Fprintln(r.out, InfoStyle.Render("[*]")+" "+msg)
}

func (r *repl) warn(err error) {
	fmt.Fprintln(r.out, WarningStyle.Render("[!]")+" "+err.Error())
}

func (r *repl) printErr(err error) {
	fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+err.Error())
}

func (r *repl) printWelcome() {
	cfg := r.app.Config()
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("ragchat interactive chat"))
	fmt.Fprintln(r.out, RenderSeparator(30))
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Backend:"), CommandStyle.Render(cfg.Backend.URL))
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Documents:"), cfg.Chat.DocType)
	if r.current.IsConfirmed() {
		if conv, ok := r.app.Chat.Get(r.current); ok {
			fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Conversation:"), conv.GetTitle())
		}
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+C to cancel a reply, /quit to exit."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	cmds := [][2]string{
		{"/new", "Start a new conversation"},
		{"/list", "List conversations"},
		{"/open <n|id>", "Switch to a conversation"},
		{"/history", "Show the current conversation"},
		{"/edit [#n] <text>", "Edit a question and regenerate the answer"},
		{"/prev, /next", "Browse versions of an edited question"},
		{"/attach [file]", "Attach a document, or list attachments"},
		{"/detach <id>", "Remove an attachment"},
		{"/infographic <prompt>", "Generate an infographic"},
		{"/ghostwrite <prompt>", "Draft text with the ghostwriter"},
		{"/sources", "Show the sources of the last answer"},
		{"/rename <title>", "Rename the conversation"},
		{"/delete", "Delete the conversation"},
		{"/export [path]", "Export to Markdown or JSON"},
		{"/cached, /search <q>", "Browse the local cache"},
		{"/include-history on|off", "Send earlier turns as context"},
		{"/quit", "Exit"},
	}
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", CommandStyle.Render(fmt.Sprintf("%-24s", c[0])), DimStyle.Render(c[1]))
	}
}

func (r *repl) printExitSummary() {
	if r.turns == 0 {
		fmt.Fprintln(r.out, InfoStyle.Render("Goodbye!"))
		return
	}
	fmt.Fprintf(r.out, "%s %d answers in %s\n",
		InfoStyle.Render("Session:"), r.turns, formatDurationShort(time.Since(r.start).Round(time.Second)))
}
