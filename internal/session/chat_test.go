// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/store"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

type editCall struct {
	convID, msgID string
	req           backend.ChatRequest
}

// fakeBackend scripts stream responses and records requests.
type fakeBackend struct {
	mu sync.Mutex

	chatReqs  []backend.ChatRequest
	editCalls []editCall
	genReqs   []backend.GenerateRequest
	getCalls  int
	deletes   []string
	renames   []string

	// open returns the source for the next stream, or an error.
	open func() (stream.Source, error)
	// onEdit runs before the edit stream opens.
	onEdit func()
	// onGet runs before GetConversation answers.
	onGet func()

	list      []*model.Conversation
	listErr   error
	conv      *model.Conversation
	getErr    error
	deleteErr error
	renameErr error

	uploadDoc *backend.Document
	waitDoc   *backend.Document
	waitErr   error
}

func (f *fakeBackend) next() (stream.Source, error) {
	if f.open == nil {
		return stream.NewSliceSource([]stream.Chunk{stream.TokenChunk{Content: "ok"}}, nil), nil
	}
	return f.open()
}

func (f *fakeBackend) StreamChat(ctx context.Context, req backend.ChatRequest) (stream.Source, error) {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()
	return f.next()
}

func (f *fakeBackend) StreamEdit(ctx context.Context, convID, msgID string, req backend.ChatRequest) (stream.Source, error) {
	f.mu.Lock()
	f.editCalls = append(f.editCalls, editCall{convID, msgID, req})
	f.mu.Unlock()
	if f.onEdit != nil {
		f.onEdit()
	}
	return f.next()
}

func (f *fakeBackend) StreamGenerate(ctx context.Context, req backend.GenerateRequest) (stream.Source, error) {
	f.mu.Lock()
	f.genReqs = append(f.genReqs, req)
	f.mu.Unlock()
	return f.next()
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	return f.list, f.listErr
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	f.getCalls++
	f.mu.Unlock()
	if f.onGet != nil {
		f.onGet()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.conv.Clone(), nil
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeBackend) RenameConversation(ctx context.Context, id, title string) error {
	f.renames = append(f.renames, title)
	return f.renameErr
}

func (f *fakeBackend) UploadDocument(ctx context.Context, filename string, r io.Reader) (*backend.Document, error) {
	io.Copy(io.Discard, r)
	return f.uploadDoc, nil
}

func (f *fakeBackend) WaitForDocument(ctx context.Context, id string, opts backend.PollOptions) (*backend.Document, error) {
	return f.waitDoc, f.waitErr
}

// blockingSource yields its chunks, then blocks until closed.
type blockingSource struct {
	chunks  []stream.Chunk
	reached chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newBlockingSource(chunks ...stream.Chunk) *blockingSource {
	return &blockingSource{chunks: chunks, reached: make(chan struct{}), closed: make(chan struct{})}
}

func (b *blockingSource) Next() (stream.Chunk, error) {
	if len(b.chunks) > 0 {
		c := b.chunks[0]
		b.chunks = b.chunks[1:]
		return c, nil
	}
	select {
	case <-b.reached:
	default:
		close(b.reached)
	}
	<-b.closed
	return nil, io.ErrClosedPipe
}

func (b *blockingSource) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newTestChat(t *testing.T, fb *fakeBackend) (*Chat, *recorder) {
	t.Helper()
	rec := &recorder{}
	chat := New(Options{
		Backend:  fb,
		Defaults: Defaults{IncludeHistory: true, DocType: backend.DocTypeMeeting},
		Listener: rec.listen,
	})
	return chat, rec
}

func slice(chunks ...stream.Chunk) func() (stream.Source, error) {
	return func() (stream.Source, error) { return stream.NewSliceSource(chunks, nil), nil }
}

// seed inserts a loaded, confirmed conversation with the given messages.
func seed(t *testing.T, chat *Chat, id string, msgs ...*model.Message) model.ID {
	t.Helper()
	prov := chat.repo.CreateProvisional(nil)
	cid := model.ConfirmedID(id)
	require.True(t, chat.repo.Promote(prov, cid))
	require.True(t, chat.repo.LoadMessages(cid, msgs))
	return cid
}

func contents(conv *model.Conversation) []string {
	out := make([]string, len(conv.Messages))
	for i, m := range conv.Messages {
		out[i] = string(m.Role[0]) + ":" + m.Content
	}
	return out
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_NewConversationPromotes(t *testing.T) {
	fb := &fakeBackend{open: slice(
		stream.MetaChunk{ConversationID: "c_42", UserMessageID: "m_7"},
		stream.SourcesChunk{Sources: []model.Source{{Title: "Standup", RelevanceScore: 80}}},
		stream.TokenChunk{Content: "Tiered "},
		stream.TokenChunk{Content: "pricing."},
	)}
	chat, rec := newTestChat(t, fb)

	draft := chat.NewConversation()
	msg, err := chat.Send(context.Background(), draft, "What did we decide?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tiered pricing.", msg.Content)

	convs := chat.Conversations()
	require.Len(t, convs, 1, "draft replaced, not duplicated")
	conv := convs[0]
	assert.Equal(t, model.ConfirmedID("c_42"), conv.ID)
	assert.Equal(t, []string{"u:What did we decide?", "a:Tiered pricing."}, contents(conv))
	assert.Equal(t, "m_7", conv.Messages[0].ID)
	assert.Len(t, conv.Messages[1].Sources, 1)

	promoted := rec.kinds(EventPromoted)
	require.Len(t, promoted, 1)
	assert.True(t, promoted[0].PreviousID.IsProvisional())
	assert.Equal(t, model.ConfirmedID("c_42"), promoted[0].ConversationID)

	require.Len(t, fb.chatReqs, 1)
	assert.Empty(t, fb.chatReqs[0].ConversationID, "new conversations send no id")
	assert.Equal(t, backend.DocTypeMeeting, fb.chatReqs[0].DocType)
	assert.True(t, fb.chatReqs[0].IncludeHistory)

	// Provisional ID captured before promotion still resolves.
	_, ok := chat.Get(promoted[0].PreviousID)
	assert.True(t, ok)
	assert.False(t, chat.Busy(conv.ID))
}

func TestSend_ExistingConversation(t *testing.T) {
	fb := &fakeBackend{}
	chat, _ := newTestChat(t, fb)
	id := seed(t, chat, "c_1", model.NewUserMessage("q1"), model.NewAssistantMessage("a1"))
	chat.repo.SetAttachments(id, []model.Attachment{
		{ID: "d_ok", Status: model.AttachmentCompleted},
		{ID: "d_bad", Status: model.AttachmentFailed},
		{ID: "d_wip", Status: model.AttachmentProcessing},
	})

	_, err := chat.Send(context.Background(), id, "  q2  ", nil)
	require.NoError(t, err)

	require.Len(t, fb.chatReqs, 1)
	assert.Equal(t, "c_1", fb.chatReqs[0].ConversationID)
	assert.Equal(t, "q2", fb.chatReqs[0].Query)
	assert.Equal(t, []string{"d_ok"}, fb.chatReqs[0].DocumentIDs)

	conv, _ := chat.Get(id)
	assert.Equal(t, []string{"u:q1", "a:a1", "u:q2", "a:ok"}, contents(conv))
	assert.Len(t, conv.Messages[2].Attachments, 3)
}

func TestSend_Validation(t *testing.T) {
	chat, _ := newTestChat(t, &fakeBackend{})

	_, err := chat.Send(context.Background(), model.DraftID(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = chat.Send(context.Background(), model.ConfirmedID("nope"), "hi", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, chat.Conversations())
}

func TestSend_OpenFailureAppendsOneFailure(t *testing.T) {
	authErr := &backend.APIError{Status: 401, Message: "token expired"}
	fb := &fakeBackend{open: func() (stream.Source, error) { return nil, authErr }}
	chat, _ := newTestChat(t, fb)
	id := seed(t, chat, "c_1")

	msg, err := chat.Send(context.Background(), id, "hello", nil)
	require.Error(t, err)
	assert.True(t, backend.IsUnauthorized(err))
	require.NotNil(t, msg)
	assert.True(t, msg.Failed)

	conv, _ := chat.Get(id)
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[1].Failed)
	assert.Contains(t, conv.Messages[1].Content, "token expired")
}

func TestSend_TransportFailureDiscardsPartial(t *testing.T) {
	fb := &fakeBackend{open: func() (stream.Source, error) {
		return stream.NewSliceSource([]stream.Chunk{stream.TokenChunk{Content: "half an ans"}}, errors.New("connection reset")), nil
	}}
	chat, _ := newTestChat(t, fb)
	id := seed(t, chat, "c_1")

	msg, err := chat.Send(context.Background(), id, "hello", nil)
	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Frames)

	conv, _ := chat.Get(id)
	require.Len(t, conv.Messages, 2, "exactly one outcome")
	assert.True(t, msg.Failed)
	assert.True(t, conv.Messages[1].Failed)
	assert.NotContains(t, conv.Messages[1].Content, "half an ans")
}

func TestSend_FailureAfterPromotionLandsInSameConversation(t *testing.T) {
	fb := &fakeBackend{open: func() (stream.Source, error) {
		return stream.NewSliceSource([]stream.Chunk{stream.MetaChunk{ConversationID: "c_9"}}, errors.New("eof mid-stream")), nil
	}}
	chat, _ := newTestChat(t, fb)
	other := seed(t, chat, "c_other")

	_, err := chat.Send(context.Background(), model.DraftID(), "hi", nil)
	require.Error(t, err)

	conv, ok := chat.Get(model.ConfirmedID("c_9"))
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hi", conv.Messages[0].Content)
	assert.True(t, conv.Messages[1].Failed)

	untouched, _ := chat.Get(other)
	assert.Empty(t, untouched.Messages)
}

func TestSend_AbandonAppendsNothing(t *testing.T) {
	src := newBlockingSource(stream.TokenChunk{Content: "partial"})
	fb := &fakeBackend{open: func() (stream.Source, error) { return src, nil }}
	chat, _ := newTestChat(t, fb)
	id := seed(t, chat, "c_1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := chat.Send(ctx, id, "hello", nil)
		done <- err
	}()

	<-src.reached
	assert.True(t, chat.Busy(id))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, stream.ErrAbandoned)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after cancel")
	}

	conv, _ := chat.Get(id)
	assert.Equal(t, []string{"u:hello"}, contents(conv))
	assert.False(t, chat.Busy(id))
}

func TestCancel_AbandonsTurn(t *testing.T) {
	src := newBlockingSource()
	fb := &fakeBackend{open: func() (stream.Source, error) { return src, nil }}
	chat, _ := newTestChat(t, fb)
	id := seed(t, chat, "c_1")

	done := make(chan error, 1)
	go func() {
		_, err := chat.Send(context.Background(), id, "hello", nil)
		done <- err
	}()
	<-src.reached

	assert.True(t, chat.Cancel(id))
	assert.ErrorIs(t, <-done, stream.ErrAbandoned)
	assert.False(t, chat.Cancel(id))
}

func TestSend_TurnGuard(t *testing.T) {
	src := newBlockingSource()
	opened := 0
	fb := &fakeBackend{}
	fb.open = func() (stream.Source, error) {
		opened++
		if opened == 1 {
			return src, nil
		}
		return stream.NewSliceSource([]stream.Chunk{stream.TokenChunk{Content: "b"}}, nil), nil
	}
	chat, _ := newTestChat(t, fb)
	a := seed(t, chat, "c_a")
	b := seed(t, chat, "c_b")

	done := make(chan struct{})
	go func() {
		chat.Send(context.Background(), a, "first", nil)
		close(done)
	}()
	<-src.reached

	_, err := chat.Send(context.Background(), a, "second", nil)
	assert.ErrorIs(t, err, ErrTurnInProgress)
	_, err = chat.Edit(context.Background(), a, "whatever", "x")
	assert.Error(t, err)

	convA, _ := chat.Get(a)
	assert.Equal(t, []string{"u:first"}, contents(convA), "rejected send changes nothing")

	_, err = chat.Send(context.Background(), b, "other conversation", nil)
	assert.NoError(t, err)

	src.Close()
	<-done
}

func TestSend_ToolStateResetAroundTurn(t *testing.T) {
	fb := &fakeBackend{}
	chat, rec := newTestChat(t, fb)
	id := seed(t, chat, "c_1")

	var during []model.ToolStatus
	fb.open = slice(
		stream.ToolCallChunk{Tool: "search"},
		stream.ToolProgressChunk{Message: "looking"},
		stream.ToolResultChunk{Result: model.ToolResult{Text: "found"}},
		stream.TokenChunk{Content: "done"},
	)

	_, err := chat.Send(context.Background(), id, "go", nil)
	require.NoError(t, err)

	for _, ev := range rec.kinds(EventLive) {
		during = append(during, ev.Live.Tool.Status)
	}
	assert.Equal(t, []model.ToolStatus{model.ToolStarting, model.ToolProcessing, model.ToolComplete, model.ToolComplete}, during)
	assert.Equal(t, model.ToolState{}, chat.ToolState(id), "reset after the turn")
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_TruncatesBeforeResubmitting(t *testing.T) {
	fb := &fakeBackend{open: slice(stream.TokenChunk{Content: "A1'"})}
	chat, _ := newTestChat(t, fb)

	u1 := model.NewUserMessage("U1")
	id := seed(t, chat, "c_1", u1, model.NewAssistantMessage("A1"), model.NewUserMessage("U2"), model.NewAssistantMessage("A2"))

	var atResubmit *model.Conversation
	fb.onEdit = func() { atResubmit, _ = chat.Get(id) }

	msg, err := chat.Edit(context.Background(), id, u1.ID, "U1'")
	require.NoError(t, err)
	assert.Equal(t, "A1'", msg.Content)

	require.NotNil(t, atResubmit)
	assert.Equal(t, []string{"u:U1'"}, contents(atResubmit))
	assert.Equal(t, []model.PairedExchange{{UserContent: "U1", AssistantContent: "A1"}}, atResubmit.Messages[0].PairedHistory)

	require.Len(t, fb.editCalls, 1)
	assert.Equal(t, "c_1", fb.editCalls[0].convID)
	assert.Equal(t, u1.ID, fb.editCalls[0].msgID)
	assert.Equal(t, "U1'", fb.editCalls[0].req.Query)

	conv, _ := chat.Get(id)
	assert.Equal(t, []string{"u:U1'", "a:A1'"}, contents(conv))
}

func TestEdit_Errors(t *testing.T) {
	chat, _ := newTestChat(t, &fakeBackend{})
	a1 := model.NewAssistantMessage("A1")
	id := seed(t, chat, "c_1", model.NewUserMessage("U1"), a1)

	_, err := chat.Edit(context.Background(), id, "missing", "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = chat.Edit(context.Background(), id, a1.ID, "x")
	assert.ErrorIs(t, err, ErrMessageNotFound, "only user messages are editable")

	prov := chat.repo.CreateProvisional(model.NewUserMessage("draft q"))
	conv, _ := chat.Get(prov)
	_, err = chat.Edit(context.Background(), prov, conv.Messages[0].ID, "x")
	assert.ErrorIs(t, err, ErrNotConfirmed)

	after, _ := chat.Get(id)
	assert.Equal(t, []string{"u:U1", "a:A1"}, contents(after))
}

func TestEdit_FailureKeepsTruncation(t *testing.T) {
	fb := &fakeBackend{open: func() (stream.Source, error) { return nil, errors.New("502") }}
	chat, _ := newTestChat(t, fb)
	u1 := model.NewUserMessage("U1")
	id := seed(t, chat, "c_1", u1, model.NewAssistantMessage("A1"))

	_, err := chat.Edit(context.Background(), id, u1.ID, "U1'")
	require.Error(t, err)

	conv, _ := chat.Get(id)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "U1'", conv.Messages[0].Content)
	assert.True(t, conv.Messages[1].Failed)
}

// =============================================================================
// GENERATE
// =============================================================================

func TestGenerate(t *testing.T) {
	fb := &fakeBackend{open: slice(
		stream.MetaChunk{ConversationID: "c_5"},
		stream.ToolCallChunk{Tool: "infographic"},
		stream.ToolResultChunk{Result: model.ToolResult{ImageURL: "https://img/1.png"}},
	)}
	chat, _ := newTestChat(t, fb)

	msg, err := chat.Generate(context.Background(), model.DraftID(), backend.GenerateInfographic, "Q3 roadmap")
	require.NoError(t, err)
	require.NotNil(t, msg.ToolResult)
	assert.Equal(t, "https://img/1.png", msg.ToolResult.ImageURL)
	assert.Equal(t, "infographic", msg.ToolName)

	require.Len(t, fb.genReqs, 1)
	assert.Equal(t, backend.GenerateInfographic, fb.genReqs[0].Kind)

	conv, ok := chat.Get(model.ConfirmedID("c_5"))
	require.True(t, ok)
	assert.Len(t, conv.Messages, 2)

	_, err = chat.Generate(context.Background(), model.DraftID(), "poem", "x")
	assert.Error(t, err)
}

// =============================================================================
// OPEN / REFRESH
// =============================================================================

func TestOpen_LoadsOnce(t *testing.T) {
	remote := model.NewConversation(model.ConfirmedID("c_1"))
	remote.SetMessages([]*model.Message{model.NewUserMessage("q"), model.NewAssistantMessage("a")})
	fb := &fakeBackend{conv: remote, list: []*model.Conversation{
		model.NewSummary(model.ConfirmedID("c_1"), "Pricing", 2, time.Now(), time.Now()),
	}}
	chat, _ := newTestChat(t, fb)

	require.NoError(t, chat.Refresh(context.Background()))
	listed, ok := chat.Get(model.ConfirmedID("c_1"))
	require.True(t, ok)
	assert.False(t, listed.Loaded)

	for i := 0; i < 3; i++ {
		conv, err := chat.Open(context.Background(), model.ConfirmedID("c_1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"u:q", "a:a"}, contents(conv))
		assert.Equal(t, "Pricing", conv.Title)
	}
	assert.Equal(t, 1, fb.getCalls)

	_, err := chat.Open(context.Background(), model.ConfirmedID("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_FallsBackToCache(t *testing.T) {
	cache, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	cached := model.NewConversation(model.ConfirmedID("c_1"))
	cached.AddMessage(model.NewUserMessage("cached q"))
	require.NoError(t, cache.Save(context.Background(), cached))

	fb := &fakeBackend{
		getErr:  errors.New("dial tcp: connection refused"),
		listErr: errors.New("dial tcp: connection refused"),
	}
	chat := New(Options{Backend: fb, Cache: cache})

	err = chat.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
	require.Len(t, chat.Conversations(), 1)

	conv, err := chat.Open(context.Background(), model.ConfirmedID("c_1"))
	assert.ErrorIs(t, err, ErrOffline)
	require.NotNil(t, conv)
	assert.Equal(t, []string{"u:cached q"}, contents(conv))
}

func TestOpen_CacheFallbackKeepsNewerState(t *testing.T) {
	id := model.ConfirmedID("c_1")
	fresh := []*model.Message{model.NewUserMessage("fresh q"), model.NewAssistantMessage("fresh a")}

	tests := []struct {
		name   string
		during func(chat *Chat)
		want   []string
	}{
		{
			name:   "loaded meanwhile",
			during: func(chat *Chat) { chat.repo.LoadMessages(id, fresh) },
			want:   []string{"u:fresh q", "a:fresh a"},
		},
		{
			name: "turn finished meanwhile",
			during: func(chat *Chat) {
				chat.repo.Append(id, model.NewUserMessage("new q"))
				chat.repo.Append(id, model.NewAssistantMessage("new a"))
			},
			want: []string{"u:cached q", "u:new q", "a:new a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			defer cache.Close()

			cached := model.NewConversation(id)
			cached.AddMessage(model.NewUserMessage("cached q"))
			require.NoError(t, cache.Save(context.Background(), cached))

			fb := &fakeBackend{
				getErr:  errors.New("dial tcp: connection refused"),
				listErr: errors.New("dial tcp: connection refused"),
			}
			chat := New(Options{Backend: fb, Cache: cache})
			fb.onGet = func() { tt.during(chat) }

			require.ErrorIs(t, chat.Refresh(context.Background()), ErrOffline)

			conv, err := chat.Open(context.Background(), id)
			assert.ErrorIs(t, err, ErrOffline)
			require.NotNil(t, conv)
			assert.Equal(t, tt.want, contents(conv))
		})
	}
}

func TestSend_WritesThroughToCache(t *testing.T) {
	cache, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	fb := &fakeBackend{open: slice(stream.MetaChunk{ConversationID: "c_1"}, stream.TokenChunk{Content: "answer"})}
	chat := New(Options{Backend: fb, Cache: cache})

	_, err = chat.Send(context.Background(), model.DraftID(), "question", nil)
	require.NoError(t, err)

	saved, err := cache.Load(context.Background(), "c_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u:question", "a:answer"}, contents(saved))
}

// =============================================================================
// DELETE / RENAME
// =============================================================================

func TestDelete_RollsBackOnFailure(t *testing.T) {
	fb := &fakeBackend{deleteErr: errors.New("500")}
	chat, _ := newTestChat(t, fb)
	seed(t, chat, "c_3")
	mid := seed(t, chat, "c_2")
	seed(t, chat, "c_1")

	err := chat.Delete(context.Background(), mid)
	require.Error(t, err)

	var order []string
	for _, c := range chat.Conversations() {
		order = append(order, c.ID.String())
	}
	assert.Equal(t, []string{"c_1", "c_2", "c_3"}, order, "restored at its old position")

	fb.deleteErr = &backend.APIError{Status: 404}
	require.NoError(t, chat.Delete(context.Background(), mid), "already gone counts as deleted")
	_, ok := chat.Get(mid)
	assert.False(t, ok)

	assert.ErrorIs(t, chat.Delete(context.Background(), mid), ErrNotFound)
}

func TestDelete_ProvisionalIsLocalOnly(t *testing.T) {
	fb := &fakeBackend{}
	chat, _ := newTestChat(t, fb)
	prov := chat.repo.CreateProvisional(model.NewUserMessage("q"))

	require.NoError(t, chat.Delete(context.Background(), prov))
	assert.Empty(t, fb.deletes)
	assert.Empty(t, chat.Conversations())
}

func TestRename(t *testing.T) {
	fb := &fakeBackend{}
	chat, _ := newTestChat(t, fb)
	id := seed(t, chat, "c_1", model.NewUserMessage("original question"))

	require.NoError(t, chat.Rename(context.Background(), id, "  Pricing\nreview "))
	conv, _ := chat.Get(id)
	assert.Equal(t, "Pricing review", conv.GetTitle())

	fb.renameErr = errors.New("403")
	assert.Error(t, chat.Rename(context.Background(), id, "Nope"))
	conv, _ = chat.Get(id)
	assert.Equal(t, "Pricing review", conv.GetTitle(), "reverted")

	assert.Error(t, chat.Rename(context.Background(), id, "   "))
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func TestAttach(t *testing.T) {
	t.Run("completed document scopes the next send", func(t *testing.T) {
		fb := &fakeBackend{
			uploadDoc: &backend.Document{ID: "d_1", Filename: "notes.pdf", Status: "processing"},
			waitDoc:   &backend.Document{ID: "d_1", Filename: "notes.pdf", Status: "completed"},
		}
		chat, _ := newTestChat(t, fb)

		att, err := chat.Attach(context.Background(), model.DraftID(), "notes.pdf", strings.NewReader("pdf"))
		require.NoError(t, err)
		assert.True(t, att.Usable())

		_, err = chat.Send(context.Background(), model.DraftID(), "summarize", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"d_1"}, fb.chatReqs[0].DocumentIDs)
	})

	t.Run("failed document stays listed and unused", func(t *testing.T) {
		fb := &fakeBackend{
			uploadDoc: &backend.Document{ID: "d_2", Filename: "scan.pdf", Status: "processing"},
			waitDoc:   &backend.Document{ID: "d_2", Filename: "scan.pdf", Status: "failed", Message: "no text"},
			waitErr:   &backend.DocumentError{DocumentID: "d_2", Reason: "no text"},
		}
		chat, _ := newTestChat(t, fb)
		id := seed(t, chat, "c_1")

		att, err := chat.Attach(context.Background(), id, "scan.pdf", strings.NewReader("x"))
		var docErr *backend.DocumentError
		require.ErrorAs(t, err, &docErr)
		assert.Equal(t, model.AttachmentFailed, att.Status)

		conv, _ := chat.Get(id)
		require.Len(t, conv.ActiveAttachments, 1)
		assert.Equal(t, model.AttachmentFailed, conv.ActiveAttachments[0].Status)
		assert.Equal(t, "no text", conv.ActiveAttachments[0].Error)

		_, err = chat.Send(context.Background(), id, "q", nil)
		require.NoError(t, err)
		assert.Empty(t, fb.chatReqs[0].DocumentIDs)

		assert.True(t, chat.Detach(id, "d_2"))
		conv, _ = chat.Get(id)
		assert.Empty(t, conv.ActiveAttachments)
	})
}

func TestNew_DefaultsToMemoryStore(t *testing.T) {
	chat := New(Options{Backend: &fakeBackend{}})
	_, ok := chat.Store().(*store.MemoryStore)
	assert.True(t, ok)
}
