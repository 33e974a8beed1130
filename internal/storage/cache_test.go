// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func testConversation(id string, updated time.Time, texts ...string) *model.Conversation {
	conv := model.NewConversation(model.ConfirmedID(id))
	for i, text := range texts {
		if i%2 == 0 {
			conv.AddMessage(model.NewUserMessage(text))
		} else {
			msg := model.NewAssistantMessage(text)
			msg.Sources = []model.Source{{Title: "Weekly sync", RelevanceScore: 87}}
			conv.AddMessage(msg)
		}
	}
	conv.CreatedAt = updated.Add(-time.Hour)
	conv.UpdatedAt = updated
	return conv
}

// =============================================================================
// SAVE / LOAD TESTS
// =============================================================================

func TestSaveAndLoad(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	conv := testConversation("c_1", now, "What did we decide on pricing?", "Tiered pricing.")
	conv.Messages[0].PairedHistory = []model.PairedExchange{{UserContent: "old q", AssistantContent: "old a"}}

	if err := cache.Save(ctx, conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := cache.Load(ctx, "c_1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.ID.IsConfirmed() || loaded.ID.String() != "c_1" {
		t.Errorf("ID = %v", loaded.ID)
	}
	if !loaded.Loaded {
		t.Error("loaded conversation should be marked Loaded")
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(loaded.Messages))
	}
	if loaded.Messages[1].Sources[0].RelevanceScore != 87 {
		t.Errorf("score = %v", loaded.Messages[1].Sources[0].RelevanceScore)
	}
	if len(loaded.Messages[0].PairedHistory) != 1 {
		t.Errorf("paired history lost")
	}
	if loaded.GetTitle() != "What did we decide on pricing?" {
		t.Errorf("title = %q", loaded.GetTitle())
	}
}

func TestSave_ReplacesExisting(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	now := time.Now()

	conv := testConversation("c_1", now, "q1", "a1")
	if err := cache.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}
	conv.AddMessage(model.NewUserMessage("q2"))
	if err := cache.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	metas, err := cache.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Fatalf("got %d entries, want 1", len(metas))
	}
	if metas[0].MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", metas[0].MessageCount)
	}
	if metas[0].Preview != "q2" {
		t.Errorf("Preview = %q, want last user message", metas[0].Preview)
	}
}

func TestSave_RejectsUnconfirmed(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	for _, id := range []model.ID{model.DraftID(), model.NewProvisionalID()} {
		err := cache.Save(ctx, model.NewConversation(id))
		if !errors.Is(err, ErrNotCacheable) {
			t.Errorf("Save(%v) = %v, want ErrNotCacheable", id, err)
		}
	}
	if err := cache.Save(ctx, nil); !errors.Is(err, ErrNotCacheable) {
		t.Errorf("Save(nil) = %v", err)
	}
}

func TestLoad_NotFound(t *testing.T) {
	cache := openTestCache(t)
	_, err := cache.Load(context.Background(), "missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("got %v, want ErrConversationNotFound", err)
	}
}

// =============================================================================
// LIST / SEARCH TESTS
// =============================================================================

func TestList_MostRecentFirst(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "newest", "middle"} {
		offset := map[int]time.Duration{0: -2 * time.Hour, 1: 0, 2: -time.Hour}[i]
		if err := cache.Save(ctx, testConversation(id, base.Add(offset), "q "+id)); err != nil {
			t.Fatal(err)
		}
	}

	metas, err := cache.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, m := range metas {
		ids = append(ids, m.ID)
	}
	if got := strings.Join(ids, ","); got != "newest,middle,old" {
		t.Errorf("order = %s", got)
	}
}

func TestListSummaries(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	cache.Save(ctx, testConversation("c_1", time.Now(), "q1", "a1"))

	sums, err := cache.ListSummaries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 {
		t.Fatalf("got %d summaries", len(sums))
	}
	if !sums[0].ID.IsConfirmed() || sums[0].Loaded || sums[0].MessageCount != 2 {
		t.Errorf("summary = %+v", sums[0])
	}
}

func TestList_Empty(t *testing.T) {
	metas, err := openTestCache(t).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if metas == nil || len(metas) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", metas)
	}
}

func TestSearch(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	now := time.Now()

	cache.Save(ctx, testConversation("c_1", now, "Budget review for Q3"))
	cache.Save(ctx, testConversation("c_2", now.Add(-time.Minute), "Caf\u00e9 offsite planning"))

	tests := []struct {
		query string
		want  int
	}{
		{"budget", 1},
		{"CAFE\u0301", 1},
		{"", 2},
		{"nothing", 0},
	}
	for _, tt := range tests {
		got, err := cache.Search(ctx, tt.query)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("Search(%q) = %d results, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestEnforceLimit(t *testing.T) {
	cache := openTestCache(t)
	cache.MaxConversations = 3
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		conv := testConversation(fmt.Sprintf("c_%d", i), base.Add(time.Duration(i)*time.Minute), "q")
		if err := cache.Save(ctx, conv); err != nil {
			t.Fatal(err)
		}
	}

	metas, _ := cache.List(ctx)
	if len(metas) != 3 {
		t.Fatalf("got %d entries, want 3", len(metas))
	}
	if metas[2].ID != "c_2" {
		t.Errorf("oldest survivor = %s, want c_2", metas[2].ID)
	}
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDelete(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	cache.Save(ctx, testConversation("c_1", time.Now(), "q"))
	if err := cache.Delete(ctx, "c_1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cache.Load(ctx, "c_1"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("conversation still cached: %v", err)
	}
	if err := cache.Delete(ctx, "c_1"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	cache, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	cache.Save(ctx, testConversation("c_1", time.Now(), "q"))
	cache.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.Load(ctx, "c_1"); err != nil {
		t.Errorf("Load after reopen: %v", err)
	}
}

// =============================================================================
// FORMATTING TESTS
// =============================================================================

func TestFormatList(t *testing.T) {
	if got := FormatList(nil); got != "No cached conversations." {
		t.Errorf("empty = %q", got)
	}

	out := FormatList([]Meta{{ID: "c_1", Title: "Pricing decisions", MessageCount: 4, UpdatedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)}})
	for _, want := range []string{"Pricing decisions", "2024-03-05 10:00", "4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConversationError_Is(t *testing.T) {
	err := fmt.Errorf("open: %w", &ConversationError{Message: "conversation not found"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Error("errors.Is should match by message")
	}
	if errors.Is(err, ErrNotCacheable) {
		t.Error("different messages must not match")
	}
}
