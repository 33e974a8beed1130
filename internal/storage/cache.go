// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local conversation cache for ragchat.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// DefaultMaxConversations bounds the number of cached conversations.
const DefaultMaxConversations = 200

// schema holds one row per confirmed conversation. The full conversation is
// kept as JSON in body; the other columns serve listing and search.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	preview       TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	body          BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
`

// =============================================================================
// CACHE TYPE
// =============================================================================

// Meta describes a cached conversation for listing.
type Meta struct {
	ID           string
	Title        string
	Preview      string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Cache persists conversations in a local SQLite database so they can be
// reopened when the backend is unreachable.
type Cache struct {
	db   *sql.DB
	path string

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// DefaultPath returns ~/.ragchat/cache.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ragchat", "cache.db"), nil
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Cache{db: db, path: path, MaxConversations: DefaultMaxConversations}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save stores conv, replacing any previous copy. Only conversations with a
// backend-confirmed ID are cached; anything else returns ErrNotCacheable.
func (c *Cache) Save(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || !conv.ID.IsConfirmed() {
		return ErrNotCacheable
	}

	snapshot := conv.Clone()
	snapshot.Loaded = true
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	count := len(snapshot.Messages)
	if snapshot.MessageCount > count {
		count = snapshot.MessageCount
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, preview, message_count, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			preview = excluded.preview,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at,
			body = excluded.body`,
		snapshot.ID.String(),
		util.Normalize(snapshot.GetTitle()),
		util.TruncateRunes(util.SingleLine(snapshot.Preview()), 80),
		count,
		snapshot.CreatedAt.UnixMilli(),
		snapshot.UpdatedAt.UnixMilli(),
		body,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", snapshot.ID, err)
	}

	if c.MaxConversations > 0 {
		if err := c.enforceLimit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// enforceLimit removes the least recently updated conversations over the limit.
func (c *Cache) enforceLimit(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id NOT IN (
			SELECT id FROM conversations ORDER BY updated_at DESC, id LIMIT ?
		)`, c.MaxConversations)
	if err != nil {
		return fmt.Errorf("failed to trim cache: %w", err)
	}
	return nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load returns the cached conversation with the given backend ID.
func (c *Cache) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx, "SELECT body FROM conversations WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, &ConversationError{Message: "corrupt cache entry " + id}
	}
	conv.Loaded = true
	return &conv, nil
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns all cached conversations, most recently updated first.
func (c *Cache) List(ctx context.Context) ([]Meta, error) {
	return c.query(ctx, `
		SELECT id, title, preview, message_count, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC, id`)
}

// ListSummaries returns the cached conversations as unloaded summaries,
// the same shape as a backend listing.
func (c *Cache) ListSummaries(ctx context.Context) ([]*model.Conversation, error) {
	metas, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Conversation, len(metas))
	for i, m := range metas {
		out[i] = model.NewSummary(model.ConfirmedID(m.ID), m.Title, m.MessageCount, m.CreatedAt, m.UpdatedAt)
	}
	return out, nil
}

// Search returns cached conversations whose title or preview contains query,
// ignoring case and Unicode composition.
func (c *Cache) Search(ctx context.Context, query string) ([]Meta, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return all, nil
	}

	var results []Meta
	for _, m := range all {
		if util.FoldContains(m.Title, query) || util.FoldContains(m.Preview, query) {
			results = append(results, m)
		}
	}
	return results, nil
}

func (c *Cache) query(ctx context.Context, q string, args ...any) ([]Meta, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var m Meta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Title, &m.Preview, &m.MessageCount, &created, &updated); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation from the cache.
func (c *Cache) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Clear removes every cached conversation.
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM conversations")
	return err
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when a conversation isn't cached.
	// Use errors.Is(err, ErrConversationNotFound) to check for this error.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrNotCacheable is returned when saving a conversation the backend has
	// not confirmed yet.
	ErrNotCacheable = &ConversationError{Message: "conversation has no confirmed id"}
)

// ConversationError represents a cache error. Two errors match under
// errors.Is when their messages are equal.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList renders metas as a table for the REPL.
func FormatList(metas []Meta) string {
	if len(metas) == 0 {
		return "No cached conversations."
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("#", 4) + util.PadWidth("Updated", 18) + util.PadWidth("Msgs", 6) + "Title\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	for i, m := range metas {
		sb.WriteString(util.PadWidth(fmt.Sprintf("%d", i+1), 4))
		sb.WriteString(util.PadWidth(m.UpdatedAt.Format("2006-01-02 15:04"), 18))
		sb.WriteString(util.PadWidth(fmt.Sprintf("%d", m.MessageCount), 6))
		sb.WriteString(util.TruncateWidth(m.Title, 32))
		sb.WriteString("\n")
	}
	return sb.String()
}
