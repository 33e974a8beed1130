// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-session list of conversations and their messages.
package store

import (
	"sync"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// maxAliasDepth bounds alias resolution; promotions never chain deeper than
// provisional -> confirmed in practice.
const maxAliasDepth = 8

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is the in-memory Repository.
//
// The UI runs stream consumers on goroutines, so the store guards its state
// with a mutex even though only one turn per conversation is ever in flight.
type MemoryStore struct {
	mu sync.RWMutex

	// order lists conversation IDs head first.
	order []model.ID
	convs map[model.ID]*model.Conversation

	// aliases maps promoted IDs to their replacement.
	aliases map[model.ID]model.ID
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:   make(map[model.ID]*model.Conversation),
		aliases: make(map[model.ID]model.ID),
	}
}

var _ Repository = (*MemoryStore)(nil)

// =============================================================================
// CREATION & PROMOTION
// =============================================================================

// CreateProvisional implements Repository.
func (s *MemoryStore) CreateProvisional(first *model.Message) model.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.NewProvisionalID()
	conv := model.NewConversation(id)

	// Attachments picked on the draft scope its first turn.
	if draft, ok := s.convs[model.DraftID()]; ok {
		conv.ActiveAttachments = draft.ActiveAttachments
		s.removeLocked(draft.ID)
	}
	if first != nil {
		conv.AddMessage(first.Clone())
	}
	s.insertLocked(0, conv)
	return id
}

// StartDraft implements Repository.
func (s *MemoryStore) StartDraft() model.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.DraftID()
	conv, ok := s.convs[id]
	if ok {
		s.removeLocked(id)
	} else {
		conv = model.NewConversation(id)
	}
	s.insertLocked(0, conv)
	return id
}

// Promote implements Repository.
func (s *MemoryStore) Promote(oldID, newID model.ID) bool {
	if !newID.IsConfirmed() || oldID == newID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[oldID]
	if !ok {
		return false
	}

	idx := s.indexLocked(oldID)

	// A summary for newID may already be listed; the local history wins.
	if existing, dup := s.convs[newID]; dup {
		if conv.Title == "" {
			conv.Title = existing.Title
		}
		s.removeLocked(newID)
		idx = s.indexLocked(oldID)
	}

	delete(s.convs, oldID)
	conv.ID = newID
	s.convs[newID] = conv
	s.order[idx] = newID
	s.aliases[oldID] = newID
	return true
}

// Resolve implements Repository.
func (s *MemoryStore) Resolve(id model.ID) model.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(id)
}

// =============================================================================
// MESSAGES
// =============================================================================

// Append implements Repository.
func (s *MemoryStore) Append(convID model.ID, msg *model.Message) bool {
	if msg == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[s.resolveLocked(convID)]
	if !ok {
		return false
	}
	conv.AddMessage(msg.Clone())
	return true
}

// RewriteMessageID implements Repository.
func (s *MemoryStore) RewriteMessageID(oldID, newID string) bool {
	if oldID == "" || newID == "" || oldID == newID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if msg := s.convs[id].MessageByID(oldID); msg != nil {
			msg.ID = newID
			return true
		}
	}
	return false
}

// LoadMessages implements Repository.
func (s *MemoryStore) LoadMessages(convID model.ID, msgs []*model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[s.resolveLocked(convID)]
	if !ok {
		return false
	}
	copied := make([]*model.Message, len(msgs))
	for i, m := range msgs {
		copied[i] = m.Clone()
	}
	conv.SetMessages(copied)
	return true
}

// TruncateForEdit implements Repository.
func (s *MemoryStore) TruncateForEdit(convID model.ID, msgID, newContent string) (*model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[s.resolveLocked(convID)]
	if !ok {
		return nil, false
	}
	i := conv.MessageIndex(msgID)
	if i < 0 || conv.Messages[i].Role != model.RoleUser {
		return nil, false
	}

	edited := conv.Messages[i]
	oldAssistant := ""
	if i+1 < len(conv.Messages) && conv.Messages[i+1].Role == model.RoleAssistant {
		oldAssistant = conv.Messages[i+1].Content
	}

	for j := i + 1; j < len(conv.Messages); j++ {
		conv.Messages[j] = nil
	}
	conv.Messages = conv.Messages[:i+1]

	edited.PairedHistory = append(edited.PairedHistory, model.PairedExchange{
		UserContent:      edited.Content,
		AssistantContent: oldAssistant,
	})
	edited.Content = newContent
	edited.Timestamp = time.Now()
	conv.MessageCount = len(conv.Messages)
	conv.UpdatedAt = time.Now()

	return edited.Clone(), true
}

// =============================================================================
// DELETE & RESTORE
// =============================================================================

// Delete implements Repository.
func (s *MemoryStore) Delete(id model.ID) (Removed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = s.resolveLocked(id)
	conv, ok := s.convs[id]
	if !ok {
		return Removed{}, false
	}
	idx := s.indexLocked(id)
	s.removeLocked(id)
	return Removed{Conversation: conv, Index: idx}, true
}

// Restore implements Repository.
func (s *MemoryStore) Restore(r Removed) bool {
	if r.Conversation == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.convs[r.Conversation.ID]; exists {
		return false
	}
	idx := r.Index
	if idx < 0 || idx > len(s.order) {
		idx = len(s.order)
	}
	s.insertLocked(idx, r.Conversation)
	return true
}

// =============================================================================
// QUERIES
// =============================================================================

// Get implements Repository.
func (s *MemoryStore) Get(id model.ID) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[s.resolveLocked(id)]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// List implements Repository.
func (s *MemoryStore) List() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.convs[id].Clone())
	}
	return out
}

// =============================================================================
// METADATA
// =============================================================================

// ReplaceSummaries implements Repository.
//
// The resulting order is: conversations not yet confirmed, then conversations
// promoted in this session that the listing does not include yet, then the
// listing in backend order.
func (s *MemoryStore) ReplaceSummaries(summaries []*model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listed := make(map[model.ID]bool, len(summaries))
	for _, sum := range summaries {
		listed[sum.ID] = true
	}
	promoted := make(map[model.ID]bool, len(s.aliases))
	for _, id := range s.aliases {
		promoted[id] = true
	}

	var order []model.ID
	convs := make(map[model.ID]*model.Conversation, len(summaries)+len(s.order))

	for _, id := range s.order {
		if !id.IsConfirmed() || (promoted[id] && !listed[id]) {
			order = append(order, id)
			convs[id] = s.convs[id]
		}
	}

	for _, sum := range summaries {
		if _, dup := convs[sum.ID]; dup || sum.ID.IsZero() {
			continue
		}
		if existing, ok := s.convs[sum.ID]; ok && existing.Loaded {
			existing.Title = sum.Title
			if sum.UpdatedAt.After(existing.UpdatedAt) {
				existing.UpdatedAt = sum.UpdatedAt
			}
			if sum.MessageCount > existing.MessageCount {
				existing.MessageCount = sum.MessageCount
			}
			convs[sum.ID] = existing
		} else {
			convs[sum.ID] = sum.Clone()
		}
		order = append(order, sum.ID)
	}

	s.order = order
	s.convs = convs
}

// SetAttachments implements Repository.
func (s *MemoryStore) SetAttachments(convID model.ID, attachments []model.Attachment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[s.resolveLocked(convID)]
	if !ok {
		return false
	}
	conv.ActiveAttachments = append([]model.Attachment(nil), attachments...)
	return true
}

// SetTitle implements Repository.
func (s *MemoryStore) SetTitle(convID model.ID, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[s.resolveLocked(convID)]
	if !ok {
		return false
	}
	conv.SetTitle(title)
	return true
}

// =============================================================================
// HELPERS (caller holds mu)
// =============================================================================

func (s *MemoryStore) resolveLocked(id model.ID) model.ID {
	for i := 0; i < maxAliasDepth; i++ {
		next, ok := s.aliases[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}

func (s *MemoryStore) indexLocked(id model.ID) int {
	for i, o := range s.order {
		if o == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) insertLocked(idx int, conv *model.Conversation) {
	s.order = append(s.order, model.ID{})
	copy(s.order[idx+1:], s.order[idx:])
	s.order[idx] = conv.ID
	s.convs[conv.ID] = conv
}

func (s *MemoryStore) removeLocked(id model.ID) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return
	}
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	delete(s.convs, id)
}
