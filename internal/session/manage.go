// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// LISTING & LOADING
// =============================================================================

// Refresh merges the backend's conversation list into the store. When the
// backend is unreachable and the cache can list, the cached conversations are
// merged instead and the error wraps ErrOffline.
func (c *Chat) Refresh(ctx context.Context) error {
	summaries, err := c.backend.ListConversations(ctx)
	if err != nil {
		lister, ok := c.cache.(CacheLister)
		if !ok || backend.IsUnauthorized(err) {
			return err
		}
		cached, cacheErr := lister.ListSummaries(ctx)
		if cacheErr != nil {
			c.logger.Printf("WARN cache list: %v", cacheErr)
			return err
		}
		c.repo.ReplaceSummaries(cached)
		c.emit(Event{Kind: EventUpdated})
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}

	c.repo.ReplaceSummaries(summaries)
	c.emit(Event{Kind: EventUpdated})
	return nil
}

// Open returns the conversation with its history, fetching it from the
// backend the first time. Concurrent opens of the same conversation share
// one fetch.
//
// If the fetch fails and the cache has a copy, the cached history is loaded
// and returned along with an error wrapping ErrOffline.
func (c *Chat) Open(ctx context.Context, id model.ID) (*model.Conversation, error) {
	id = c.repo.Resolve(id)
	conv, ok := c.repo.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if conv.Loaded || !id.IsConfirmed() {
		return conv, nil
	}

	c.mu.Lock()
	if wait, inflight := c.loading[id]; inflight {
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.loaded(id)
	}
	done := make(chan struct{})
	c.loading[id] = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.loading, id)
		c.mu.Unlock()
		close(done)
	}()

	remote, err := c.backend.GetConversation(ctx, id.String())
	if err != nil {
		if c.cache == nil {
			return nil, err
		}
		cached, cacheErr := c.cache.Load(ctx, id.String())
		if cacheErr != nil {
			return nil, err
		}
		// As below, a load that completed meanwhile wins. Messages appended
		// locally are newer than the cached copy and are kept after it.
		if current, ok := c.repo.Get(id); ok && !current.Loaded {
			c.repo.LoadMessages(id, mergeLocal(cached.Messages, current.Messages))
		}
		c.emit(Event{Kind: EventUpdated, ConversationID: id})
		conv, _ := c.repo.Get(id)
		return conv, fmt.Errorf("%w: %w", ErrOffline, err)
	}

	// Only fill a conversation that is still unloaded; a turn may have
	// finished meanwhile.
	if current, ok := c.repo.Get(id); ok && !current.Loaded {
		c.repo.LoadMessages(id, remote.Messages)
		if remote.Title != "" && current.Title == "" {
			c.repo.SetTitle(id, remote.Title)
		}
	}
	c.saveCache(id)
	c.emit(Event{Kind: EventUpdated, ConversationID: id})
	return c.loaded(id)
}

// mergeLocal returns history followed by the local messages it lacks.
func mergeLocal(history, local []*model.Message) []*model.Message {
	seen := make(map[string]bool, len(history))
	for _, m := range history {
		seen[m.ID] = true
	}
	out := append([]*model.Message(nil), history...)
	for _, m := range local {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func (c *Chat) loaded(id model.ID) (*model.Conversation, error) {
	conv, ok := c.repo.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

// =============================================================================
// DELETE & RENAME
// =============================================================================

// Delete removes a conversation. The removal is applied locally first and
// undone if the backend refuses it. A streaming turn in the conversation is
// abandoned.
func (c *Chat) Delete(ctx context.Context, id model.ID) error {
	id = c.repo.Resolve(id)
	c.Cancel(id)

	removed, ok := c.repo.Delete(id)
	if !ok {
		return ErrNotFound
	}
	c.emit(Event{Kind: EventUpdated, ConversationID: id})

	if !id.IsConfirmed() {
		return nil
	}

	if err := c.backend.DeleteConversation(ctx, id.String()); err != nil && !errors.Is(err, backend.ErrNotFound) {
		c.repo.Restore(removed)
		c.emit(Event{Kind: EventUpdated, ConversationID: id, Err: err})
		return fmt.Errorf("delete failed, conversation restored: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Delete(ctx, id.String()); err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
			c.logger.Printf("WARN cache delete %s: %v", id, err)
		}
	}
	return nil
}

// Rename sets a conversation's title, reverting it if the backend refuses.
func (c *Chat) Rename(ctx context.Context, id model.ID, title string) error {
	title = util.SingleLine(util.Normalize(title))
	if title == "" {
		return errors.New("title is empty")
	}

	id = c.repo.Resolve(id)
	conv, ok := c.repo.Get(id)
	if !ok {
		return ErrNotFound
	}
	previous := conv.Title

	c.repo.SetTitle(id, title)
	c.emit(Event{Kind: EventUpdated, ConversationID: id})
	if !id.IsConfirmed() {
		return nil
	}

	if err := c.backend.RenameConversation(ctx, id.String(), title); err != nil {
		c.repo.SetTitle(id, previous)
		c.emit(Event{Kind: EventUpdated, ConversationID: id, Err: err})
		return err
	}
	c.saveCache(id)
	return nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attach uploads a document and adds it to the conversation's active
// attachments, then waits for processing. A document that fails processing
// stays in the list marked failed and is never sent as a document ID.
func (c *Chat) Attach(ctx context.Context, id model.ID, filename string, r io.Reader) (model.Attachment, error) {
	id = c.repo.Resolve(id)
	if id.IsZero() || id.IsDraft() {
		id = c.repo.StartDraft()
	}
	if _, ok := c.repo.Get(id); !ok {
		return model.Attachment{}, ErrNotFound
	}

	doc, err := c.backend.UploadDocument(ctx, filename, r)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	att := doc.Attachment()
	c.putAttachment(id, att)

	if att.Status.IsTerminal() {
		if att.Status == model.AttachmentFailed {
			return att, &backend.DocumentError{DocumentID: att.ID, Filename: att.Filename, Reason: att.Error}
		}
		return att, nil
	}

	c.mu.Lock()
	poll := c.poll
	c.mu.Unlock()

	final, err := c.backend.WaitForDocument(ctx, att.ID, poll)
	switch {
	case final != nil:
		att = final.Attachment()
		if att.Filename == "" {
			att.Filename = doc.Filename
		}
	case err != nil:
		att.Status = model.AttachmentFailed
		att.Error = err.Error()
	}
	c.putAttachment(id, att)
	return att, err
}

// putAttachment adds or replaces att in the conversation's active list.
func (c *Chat) putAttachment(id model.ID, att model.Attachment) {
	conv, ok := c.repo.Get(id)
	if !ok {
		return
	}
	list := conv.ActiveAttachments
	replaced := false
	for i := range list {
		if list[i].ID == att.ID {
			list[i] = att
			replaced = true
		}
	}
	if !replaced {
		list = append(list, att)
	}
	c.repo.SetAttachments(id, list)
	c.emit(Event{Kind: EventUpdated, ConversationID: id})
}

// Detach removes an attachment from the conversation's active list.
func (c *Chat) Detach(id model.ID, attachmentID string) bool {
	id = c.repo.Resolve(id)
	conv, ok := c.repo.Get(id)
	if !ok {
		return false
	}
	kept := conv.ActiveAttachments[:0]
	found := false
	for _, a := range conv.ActiveAttachments {
		if a.ID == attachmentID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if found {
		c.repo.SetAttachments(id, kept)
		c.emit(Event{Kind: EventUpdated, ConversationID: id})
	}
	return found
}
