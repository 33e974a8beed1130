// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates chat turns between the store and the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/store"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the subset of *backend.Client the session uses.
type Backend interface {
	StreamChat(ctx context.Context, req backend.ChatRequest) (stream.Source, error)
	StreamEdit(ctx context.Context, conversationID, messageID string, req backend.ChatRequest) (stream.Source, error)
	StreamGenerate(ctx context.Context, req backend.GenerateRequest) (stream.Source, error)
	ListConversations(ctx context.Context) ([]*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	RenameConversation(ctx context.Context, id, title string) error
	UploadDocument(ctx context.Context, filename string, r io.Reader) (*backend.Document, error)
	WaitForDocument(ctx context.Context, id string, opts backend.PollOptions) (*backend.Document, error)
}

// Cache is the subset of *storage.Cache the session uses.
type Cache interface {
	Save(ctx context.Context, conv *model.Conversation) error
	Load(ctx context.Context, id string) (*model.Conversation, error)
	Delete(ctx context.Context, id string) error
}

// CacheLister is implemented by caches that can list their contents; Refresh
// uses it when the backend is unreachable.
type CacheLister interface {
	ListSummaries(ctx context.Context) ([]*model.Conversation, error)
}

// Defaults are the retrieval filters sent with every chat request.
type Defaults struct {
	IncludeHistory  bool
	DocType         backend.DocType
	MeetingCategory string
}

// Options configures a Chat.
type Options struct {
	Backend    Backend
	Repository store.Repository // default: store.NewMemoryStore()
	Cache      Cache            // optional
	Logger     *log.Logger
	Defaults   Defaults
	Poll       backend.PollOptions
	Listener   Listener
}

// =============================================================================
// CHAT
// =============================================================================

// Chat runs send, edit and generate turns against the backend and keeps the
// store in step with what the backend confirms.
//
// At most one turn streams per conversation; different conversations may
// stream concurrently. All methods are safe for concurrent use.
type Chat struct {
	backend  Backend
	repo     store.Repository
	cache    Cache
	logger   *log.Logger
	listener Listener

	mu       sync.Mutex
	defaults Defaults
	poll     backend.PollOptions
	turns    map[model.ID]*turn
	tools    map[model.ID]model.ToolState
	loading  map[model.ID]chan struct{}
}

// turn is one in-flight send, edit or generate. id follows promotions.
type turn struct {
	id     model.ID
	cancel context.CancelFunc
}

// New creates a Chat. opts.Backend is required.
func New(opts Options) *Chat {
	repo := opts.Repository
	if repo == nil {
		repo = store.NewMemoryStore()
	}
	return &Chat{
		backend:  opts.Backend,
		repo:     repo,
		cache:    opts.Cache,
		logger:   util.OrDiscard(opts.Logger),
		listener: opts.Listener,
		defaults: opts.Defaults,
		poll:     opts.Poll,
		turns:    make(map[model.ID]*turn),
		tools:    make(map[model.ID]model.ToolState),
		loading:  make(map[model.ID]chan struct{}),
	}
}

// Store returns the underlying repository.
func (c *Chat) Store() store.Repository {
	return c.repo
}

// SetDefaults replaces the request defaults, e.g. after a config reload.
func (c *Chat) SetDefaults(d Defaults, poll backend.PollOptions) {
	c.mu.Lock()
	c.defaults = d
	c.poll = poll
	c.mu.Unlock()
}

// NewConversation returns the ID of the draft conversation, creating it if
// needed.
func (c *Chat) NewConversation() model.ID {
	id := c.repo.StartDraft()
	c.emit(Event{Kind: EventUpdated, ConversationID: id})
	return id
}

// Conversations returns the conversation list, head first.
func (c *Chat) Conversations() []*model.Conversation {
	return c.repo.List()
}

// Get returns a copy of a conversation.
func (c *Chat) Get(id model.ID) (*model.Conversation, bool) {
	return c.repo.Get(id)
}

// Busy reports whether id has a streaming turn.
func (c *Chat) Busy(id model.ID) bool {
	id = c.repo.Resolve(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.turns[id]
	return ok
}

// ToolState returns the tool state of the conversation's current turn.
func (c *Chat) ToolState(id model.ID) model.ToolState {
	id = c.repo.Resolve(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools[id]
}

// Cancel abandons the streaming turn in id, if any.
func (c *Chat) Cancel(id model.ID) bool {
	id = c.repo.Resolve(id)
	c.mu.Lock()
	t, ok := c.turns[id]
	c.mu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// =============================================================================
// TURN GUARD
// =============================================================================

// begin claims id for a new turn.
func (c *Chat) begin(ctx context.Context, id model.ID) (*turn, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.turns[id]; busy {
		return nil, nil, ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{id: id, cancel: cancel}
	c.turns[id] = t
	c.tools[id] = model.ToolState{}
	return t, turnCtx, nil
}

// rekey moves a turn to the conversation's new ID.
func (c *Chat) rekey(t *turn, id model.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.id == id {
		return
	}
	delete(c.turns, t.id)
	delete(c.tools, t.id)
	t.id = id
	c.turns[id] = t
	c.tools[id] = model.ToolState{}
}

func (c *Chat) setTool(t *turn, state model.ToolState) {
	c.mu.Lock()
	c.tools[t.id] = state
	c.mu.Unlock()
}

// end releases the turn and resets its tool state.
func (c *Chat) end(t *turn) {
	t.cancel()
	c.mu.Lock()
	if c.turns[t.id] == t {
		delete(c.turns, t.id)
	}
	delete(c.tools, t.id)
	c.mu.Unlock()
	c.emit(Event{Kind: EventTurnEnded, ConversationID: t.id})
}

// =============================================================================
// SEND
// =============================================================================

// Send posts text to the conversation and streams the reply.
//
// A draft or zero id starts a new conversation under a provisional ID that is
// promoted when the backend names it. attachments scope retrieval; nil means
// the conversation's active attachments. Only usable attachments are sent.
//
// Every call that gets past validation ends with exactly one assistant
// message appended: the reply, or a failure message returned together with
// the error. The exception is abandonment through ctx or Cancel, which
// appends nothing and returns an error wrapping stream.ErrAbandoned.
func (c *Chat) Send(ctx context.Context, id model.ID, text string, attachments []model.Attachment) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	id = c.repo.Resolve(id)
	if !id.IsZero() && !id.IsDraft() {
		conv, ok := c.repo.Get(id)
		if !ok {
			return nil, ErrNotFound
		}
		if attachments == nil {
			attachments = conv.ActiveAttachments
		}
	} else {
		id = model.DraftID()
		if draft, ok := c.repo.Get(id); ok && attachments == nil {
			attachments = draft.ActiveAttachments
		}
	}

	t, turnCtx, err := c.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer c.end(t)

	userMsg := model.NewUserMessage(text)
	userMsg.Attachments = append([]model.Attachment(nil), attachments...)

	if id.IsDraft() {
		c.rekey(t, c.repo.CreateProvisional(userMsg))
	} else if !c.repo.Append(id, userMsg) {
		return nil, ErrNotFound
	}
	c.emit(Event{Kind: EventTurnStarted, ConversationID: t.id})

	req := c.chatRequest(text, attachments)
	if t.id.IsConfirmed() {
		req.ConversationID = t.id.String()
	}

	src, err := c.backend.StreamChat(turnCtx, req)
	return c.finish(turnCtx, t, userMsg.ID, src, err)
}

func (c *Chat) chatRequest(query string, attachments []model.Attachment) backend.ChatRequest {
	c.mu.Lock()
	d := c.defaults
	c.mu.Unlock()
	return backend.ChatRequest{
		Query:           query,
		IncludeHistory:  d.IncludeHistory,
		DocType:         d.DocType,
		MeetingCategory: d.MeetingCategory,
		DocumentIDs:     model.UsableIDs(attachments),
	}
}

// =============================================================================
// EDIT
// =============================================================================

// Edit replaces the content of a sent user message and regenerates the
// conversation from it.
//
// The conversation is truncated after msgID and the discarded exchange is
// kept in the message's paired history before the request is made. The
// outcome rules are those of Send.
func (c *Chat) Edit(ctx context.Context, id model.ID, msgID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	id = c.repo.Resolve(id)
	conv, ok := c.repo.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if !id.IsConfirmed() {
		return nil, ErrNotConfirmed
	}
	target := conv.MessageByID(msgID)
	if target == nil || target.Role != model.RoleUser {
		return nil, ErrMessageNotFound
	}

	t, turnCtx, err := c.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer c.end(t)

	edited, ok := c.repo.TruncateForEdit(id, msgID, text)
	if !ok {
		return nil, ErrMessageNotFound
	}
	c.emit(Event{Kind: EventTurnStarted, ConversationID: t.id})

	attachments := edited.Attachments
	if attachments == nil {
		attachments = conv.ActiveAttachments
	}
	req := c.chatRequest(text, attachments)

	src, err := c.backend.StreamEdit(turnCtx, id.String(), msgID, req)
	return c.finish(turnCtx, t, msgID, src, err)
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate runs an auxiliary tool flow (infographic, ghostwriter) in the
// conversation. The prompt is recorded as a user message; the tool's result
// arrives as the assistant message's ToolResult.
func (c *Chat) Generate(ctx context.Context, id model.ID, kind backend.GenerateKind, prompt string) (*model.Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyMessage
	}
	kind, err := backend.ParseGenerateKind(string(kind))
	if err != nil {
		return nil, err
	}

	id = c.repo.Resolve(id)
	var attachments []model.Attachment
	if !id.IsZero() && !id.IsDraft() {
		conv, ok := c.repo.Get(id)
		if !ok {
			return nil, ErrNotFound
		}
		attachments = conv.ActiveAttachments
	} else {
		id = model.DraftID()
		if draft, ok := c.repo.Get(id); ok {
			attachments = draft.ActiveAttachments
		}
	}

	t, turnCtx, err := c.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer c.end(t)

	userMsg := model.NewUserMessage(prompt)
	if id.IsDraft() {
		c.rekey(t, c.repo.CreateProvisional(userMsg))
	} else if !c.repo.Append(id, userMsg) {
		return nil, ErrNotFound
	}
	c.emit(Event{Kind: EventTurnStarted, ConversationID: t.id})

	req := backend.GenerateRequest{
		Kind:        kind,
		Prompt:      prompt,
		DocumentIDs: model.UsableIDs(attachments),
	}
	if t.id.IsConfirmed() {
		req.ConversationID = t.id.String()
	}

	src, err := c.backend.StreamGenerate(turnCtx, req)
	return c.finish(turnCtx, t, userMsg.ID, src, err)
}

// =============================================================================
// TURN COMPLETION
// =============================================================================

// finish runs the stream and appends exactly one outcome to the turn's
// conversation, or nothing when the turn was abandoned.
func (c *Chat) finish(ctx context.Context, t *turn, userMsgID string, src stream.Source, openErr error) (*model.Message, error) {
	if openErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", stream.ErrAbandoned, ctx.Err())
		}
		return c.fail(t, openErr)
	}

	obs := stream.ObserverFunc(func(change stream.Change, live stream.Live) {
		if meta, ok := change.Chunk.(stream.MetaChunk); ok && !change.Ignored {
			userMsgID = c.applyMeta(t, meta, userMsgID)
		}
		c.setTool(t, live.Tool)
		c.emit(Event{Kind: EventLive, ConversationID: t.id, Live: live})
	})

	res, err := stream.Run(ctx, src, obs)
	if err != nil {
		if errors.Is(err, stream.ErrAbandoned) {
			c.logger.Printf("turn in %s abandoned", t.id)
			return nil, err
		}
		return c.fail(t, err)
	}
	if res.Skipped > 0 {
		c.logger.Printf("WARN %d malformed frames skipped in %s", res.Skipped, t.id)
	}

	if !c.repo.Append(t.id, res.Message) {
		// Deleted while streaming.
		c.logger.Printf("WARN dropping reply for removed conversation %s", t.id)
		return res.Message, nil
	}
	c.saveCache(t.id)
	c.emit(Event{Kind: EventUpdated, ConversationID: t.id})
	return res.Message, nil
}

// applyMeta promotes the conversation and renames the user message as the
// backend confirms them.
func (c *Chat) applyMeta(t *turn, meta stream.MetaChunk, userMsgID string) string {
	if meta.ConversationID != "" {
		confirmed := model.ConfirmedID(meta.ConversationID)
		switch {
		case t.id == confirmed:
		case t.id.IsConfirmed():
			c.logger.Printf("WARN backend reported conversation %s during a turn in %s", confirmed, t.id)
		default:
			old := t.id
			if c.repo.Promote(old, confirmed) {
				c.rekey(t, confirmed)
				c.emit(Event{Kind: EventPromoted, ConversationID: confirmed, PreviousID: old})
			}
		}
	}
	if meta.UserMessageID != "" && meta.UserMessageID != userMsgID {
		if c.repo.RewriteMessageID(userMsgID, meta.UserMessageID) {
			return meta.UserMessageID
		}
	}
	return userMsgID
}

// fail appends the failure message for err and returns it with err.
func (c *Chat) fail(t *turn, err error) (*model.Message, error) {
	c.logger.Printf("turn in %s failed: %v", t.id, err)
	msg := stream.FailureMessage(err)
	if c.repo.Append(t.id, msg) {
		c.emit(Event{Kind: EventUpdated, ConversationID: t.id, Err: err})
	}
	return msg, err
}

func (c *Chat) saveCache(id model.ID) {
	if c.cache == nil || !id.IsConfirmed() {
		return
	}
	conv, ok := c.repo.Get(id)
	if !ok {
		return
	}
	if err := c.cache.Save(context.Background(), conv); err != nil {
		c.logger.Printf("WARN cache save %s: %v", id, err)
	}
}
