// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-session list of conversations and their messages.
package store

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// length returns the number of conversations in s.
func length(s *MemoryStore) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func ids(convs []*model.Conversation) []model.ID {
	out := make([]model.ID, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func contents(c *model.Conversation) []string {
	out := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = m.Content
	}
	return out
}

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestMemoryStore_CreateProvisional(t *testing.T) {
	s := NewMemoryStore()
	s.StartDraft()

	first := model.NewUserMessage("what did we decide on pricing?")
	id := s.CreateProvisional(first)

	if !id.IsProvisional() {
		t.Fatalf("CreateProvisional returned %v (%s), want provisional", id, id.Kind())
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1 (draft replaced)", len(list))
	}
	if list[0].ID != id {
		t.Errorf("head = %v, want %v", list[0].ID, id)
	}
	if got := contents(list[0]); !reflect.DeepEqual(got, []string{first.Content}) {
		t.Errorf("messages = %v", got)
	}

	// The store keeps its own copy.
	first.Content = "mutated"
	conv, _ := s.Get(id)
	if conv.Messages[0].Content == "mutated" {
		t.Error("store shares memory with caller")
	}
}

func TestMemoryStore_StartDraftSingleAtHead(t *testing.T) {
	s := NewMemoryStore()
	s.StartDraft()
	p := s.CreateProvisional(model.NewUserMessage("hi"))
	s.StartDraft()
	s.StartDraft()

	got := ids(s.List())
	want := []model.ID{model.DraftID(), p}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

// =============================================================================
// PROMOTION TESTS
// =============================================================================

func TestMemoryStore_PromoteKeepsPositionAndHistory(t *testing.T) {
	s := NewMemoryStore()
	older := s.CreateProvisional(model.NewUserMessage("older"))
	p := s.CreateProvisional(model.NewUserMessage("newer"))
	s.Append(p, model.NewAssistantMessage("answer"))

	confirmed := model.ConfirmedID("c_100")
	if !s.Promote(p, confirmed) {
		t.Fatal("Promote returned false")
	}

	got := ids(s.List())
	if !reflect.DeepEqual(got, []model.ID{confirmed, older}) {
		t.Errorf("order = %v", got)
	}

	conv, ok := s.Get(p)
	if !ok {
		t.Fatal("lookup by provisional id should resolve after promotion")
	}
	if conv.ID != confirmed {
		t.Errorf("resolved ID = %v, want %v", conv.ID, confirmed)
	}
	if !reflect.DeepEqual(contents(conv), []string{"newer", "answer"}) {
		t.Errorf("history = %v", contents(conv))
	}
	if s.Resolve(p) != confirmed {
		t.Errorf("Resolve(%v) = %v", p, s.Resolve(p))
	}
}

func TestMemoryStore_PromoteIdempotent(t *testing.T) {
	s := NewMemoryStore()
	p := s.CreateProvisional(model.NewUserMessage("q"))
	confirmed := model.ConfirmedID("c_1")

	s.Promote(p, confirmed)
	once := s.List()

	if s.Promote(p, confirmed) {
		t.Error("second Promote should be a no-op")
	}
	twice := s.List()

	if !reflect.DeepEqual(ids(once), ids(twice)) || !reflect.DeepEqual(contents(once[0]), contents(twice[0])) {
		t.Errorf("state changed on repeated promotion: %v vs %v", ids(once), ids(twice))
	}

	if s.Promote(model.NewProvisionalID(), model.ConfirmedID("c_2")) {
		t.Error("promoting an unknown id should be a no-op")
	}
	if length(s) != 1 {
		t.Errorf("length = %d, want 1", length(s))
	}
}

func TestMemoryStore_PromoteMergesListedSummary(t *testing.T) {
	s := NewMemoryStore()
	p := s.CreateProvisional(model.NewUserMessage("q"))
	confirmed := model.ConfirmedID("c_9")

	// A refresh raced ahead and listed the new conversation already.
	s.ReplaceSummaries([]*model.Conversation{
		model.NewSummary(confirmed, "Listed title", 2, time.Now(), time.Now()),
	})
	s.Promote(p, confirmed)

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1: %v", len(list), ids(list))
	}
	if list[0].ID != confirmed || len(list[0].Messages) != 1 {
		t.Errorf("got %v with %d messages", list[0].ID, len(list[0].Messages))
	}
}

func TestMemoryStore_PromoteRejectsNonConfirmed(t *testing.T) {
	s := NewMemoryStore()
	p := s.CreateProvisional(model.NewUserMessage("q"))
	if s.Promote(p, model.NewProvisionalID()) {
		t.Error("promotion to a provisional id must be rejected")
	}
	if s.Promote(p, model.ID{}) {
		t.Error("promotion to the zero id must be rejected")
	}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestMemoryStore_AppendBumpsUpdatedAt(t *testing.T) {
	s := NewMemoryStore()
	id := s.CreateProvisional(model.NewUserMessage("q"))
	before, _ := s.Get(id)

	time.Sleep(2 * time.Millisecond)
	if !s.Append(id, model.NewAssistantMessage("a")) {
		t.Fatal("Append returned false")
	}
	after, _ := s.Get(id)
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Error("UpdatedAt not bumped")
	}
}

func TestMemoryStore_AppendNeverResurrects(t *testing.T) {
	s := NewMemoryStore()
	id := s.CreateProvisional(model.NewUserMessage("q"))
	s.Delete(id)

	if s.Append(id, model.NewAssistantMessage("late answer")) {
		t.Error("Append to deleted conversation should be dropped")
	}
	if length(s) != 0 {
		t.Errorf("length = %d, want 0", length(s))
	}

	// Also after promotion: the alias resolves, the target is gone.
	p := s.CreateProvisional(model.NewUserMessage("q2"))
	s.Promote(p, model.ConfirmedID("c_5"))
	s.Delete(model.ConfirmedID("c_5"))
	if s.Append(p, model.NewAssistantMessage("late")) {
		t.Error("Append via alias to deleted conversation should be dropped")
	}
}

func TestMemoryStore_RewriteMessageID(t *testing.T) {
	s := NewMemoryStore()
	u := model.NewUserMessage("q")
	id := s.CreateProvisional(u)

	if !s.RewriteMessageID(u.ID, "m_42") {
		t.Fatal("RewriteMessageID returned false")
	}
	conv, _ := s.Get(id)
	if conv.Messages[0].ID != "m_42" {
		t.Errorf("message ID = %q", conv.Messages[0].ID)
	}
	if s.RewriteMessageID("missing", "x") {
		t.Error("rewriting an unknown message should report false")
	}
}

func TestMemoryStore_LoadMessagesReplaces(t *testing.T) {
	s := NewMemoryStore()
	id := model.ConfirmedID("c_1")
	s.ReplaceSummaries([]*model.Conversation{model.NewSummary(id, "t", 2, time.Now(), time.Now())})

	conv, _ := s.Get(id)
	if conv.Loaded {
		t.Fatal("summary should not be loaded")
	}

	s.LoadMessages(id, []*model.Message{model.NewUserMessage("a"), model.NewAssistantMessage("b")})
	conv, _ = s.Get(id)
	if !conv.Loaded || !reflect.DeepEqual(contents(conv), []string{"a", "b"}) {
		t.Errorf("loaded=%v messages=%v", conv.Loaded, contents(conv))
	}
}

// =============================================================================
// EDIT TESTS
// =============================================================================

func TestMemoryStore_TruncateForEdit(t *testing.T) {
	s := NewMemoryStore()
	u1 := model.NewUserMessage("U1")
	id := s.CreateProvisional(u1)
	s.Append(id, model.NewAssistantMessage("A1"))
	s.Append(id, model.NewUserMessage("U2"))
	s.Append(id, model.NewAssistantMessage("A2"))

	edited, ok := s.TruncateForEdit(id, u1.ID, "U1'")
	if !ok {
		t.Fatal("TruncateForEdit returned false")
	}

	conv, _ := s.Get(id)
	if !reflect.DeepEqual(contents(conv), []string{"U1'"}) {
		t.Errorf("messages = %v, want [U1']", contents(conv))
	}
	want := []model.PairedExchange{{UserContent: "U1", AssistantContent: "A1"}}
	if !reflect.DeepEqual(conv.Messages[0].PairedHistory, want) {
		t.Errorf("PairedHistory = %+v, want %+v", conv.Messages[0].PairedHistory, want)
	}
	if edited.Content != "U1'" || edited.ID != u1.ID {
		t.Errorf("edited = %+v", edited)
	}
}

func TestMemoryStore_TruncateForEditHistoryGrows(t *testing.T) {
	s := NewMemoryStore()
	u := model.NewUserMessage("v1")
	id := s.CreateProvisional(u)

	// No following assistant message: empty response is recorded.
	s.TruncateForEdit(id, u.ID, "v2")
	s.Append(id, model.NewAssistantMessage("r2"))
	s.TruncateForEdit(id, u.ID, "v3")

	conv, _ := s.Get(id)
	want := []model.PairedExchange{
		{UserContent: "v1", AssistantContent: ""},
		{UserContent: "v2", AssistantContent: "r2"},
	}
	if !reflect.DeepEqual(conv.Messages[0].PairedHistory, want) {
		t.Errorf("PairedHistory = %+v", conv.Messages[0].PairedHistory)
	}
}

func TestMemoryStore_TruncateForEditMissing(t *testing.T) {
	s := NewMemoryStore()
	id := s.CreateProvisional(model.NewUserMessage("q"))
	a := model.NewAssistantMessage("a")
	s.Append(id, a)

	tests := []struct {
		name  string
		conv  model.ID
		msgID string
	}{
		{"unknown message", id, "nope"},
		{"unknown conversation", model.ConfirmedID("x"), a.ID},
		{"assistant message", id, a.ID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := s.TruncateForEdit(tc.conv, tc.msgID, "new"); ok {
				t.Error("expected no-op")
			}
		})
	}
	conv, _ := s.Get(id)
	if len(conv.Messages) != 2 {
		t.Errorf("conversation modified: %v", contents(conv))
	}
}

// =============================================================================
// DELETE / RESTORE TESTS
// =============================================================================

func TestMemoryStore_DeleteRestore(t *testing.T) {
	s := NewMemoryStore()
	a := s.CreateProvisional(model.NewUserMessage("a"))
	b := s.CreateProvisional(model.NewUserMessage("b"))
	c := s.CreateProvisional(model.NewUserMessage("c"))

	removed, ok := s.Delete(b)
	if !ok {
		t.Fatal("Delete returned false")
	}
	if got := ids(s.List()); !reflect.DeepEqual(got, []model.ID{c, a}) {
		t.Errorf("after delete = %v", got)
	}

	if !s.Restore(removed) {
		t.Fatal("Restore returned false")
	}
	if got := ids(s.List()); !reflect.DeepEqual(got, []model.ID{c, b, a}) {
		t.Errorf("after restore = %v", got)
	}
	if s.Restore(removed) {
		t.Error("double restore should be rejected")
	}
	if _, ok := s.Delete(model.ConfirmedID("nope")); ok {
		t.Error("deleting unknown id should report false")
	}
}

// =============================================================================
// SUMMARY MERGE TESTS
// =============================================================================

func TestMemoryStore_ReplaceSummaries(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	s.ReplaceSummaries([]*model.Conversation{
		model.NewSummary(model.ConfirmedID("c_1"), "one", 2, now, now),
		model.NewSummary(model.ConfirmedID("c_2"), "two", 4, now, now),
	})
	s.LoadMessages(model.ConfirmedID("c_1"), []*model.Message{model.NewUserMessage("hello"), model.NewAssistantMessage("hi")})
	p := s.CreateProvisional(model.NewUserMessage("pending"))

	s.ReplaceSummaries([]*model.Conversation{
		model.NewSummary(model.ConfirmedID("c_3"), "three", 1, now, now),
		model.NewSummary(model.ConfirmedID("c_1"), "one renamed", 2, now, now),
	})

	got := ids(s.List())
	want := []model.ID{p, model.ConfirmedID("c_3"), model.ConfirmedID("c_1")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	c1, _ := s.Get(model.ConfirmedID("c_1"))
	if !c1.Loaded || len(c1.Messages) != 2 {
		t.Error("loaded history was clobbered")
	}
	if c1.Title != "one renamed" {
		t.Errorf("title = %q", c1.Title)
	}
}

func TestMemoryStore_AttachmentsAndTitle(t *testing.T) {
	s := NewMemoryStore()
	id := s.CreateProvisional(model.NewUserMessage("q"))
	atts := []model.Attachment{{ID: "d1", Filename: "notes.pdf", Status: model.AttachmentCompleted}}

	if !s.SetAttachments(id, atts) {
		t.Fatal("SetAttachments returned false")
	}
	atts[0].Filename = "mutated"
	conv, _ := s.Get(id)
	if conv.ActiveAttachments[0].Filename != "notes.pdf" {
		t.Error("attachments share memory with caller")
	}

	s.SetTitle(id, "Pricing")
	conv, _ = s.Get(id)
	if conv.GetTitle() != "Pricing" {
		t.Errorf("title = %q", conv.GetTitle())
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewMemoryStore()
	a := s.CreateProvisional(model.NewUserMessage("a"))
	b := s.CreateProvisional(model.NewUserMessage("b"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.Append(a, model.NewAssistantMessage("x")) }()
		go func() { defer wg.Done(); _ = s.List() }()
	}
	wg.Wait()

	conv, _ := s.Get(a)
	if len(conv.Messages) != 51 {
		t.Errorf("messages = %d, want 51", len(conv.Messages))
	}
	if conv, _ := s.Get(b); len(conv.Messages) != 1 {
		t.Errorf("other conversation touched: %d", len(conv.Messages))
	}
}
