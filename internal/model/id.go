// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// ID KIND
// =============================================================================

// Kind tells where an identifier came from.
type Kind int

const (
	// KindConfirmed is a backend-issued identifier.
	KindConfirmed Kind = iota
	// KindProvisional is a client-generated identifier awaiting confirmation.
	KindProvisional
	// KindDraft is the single not-yet-created conversation.
	KindDraft
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindProvisional:
		return "provisional"
	case KindDraft:
		return "draft"
	default:
		return "confirmed"
	}
}

const (
	// DraftSentinel is the textual form of the draft conversation ID.
	DraftSentinel = "new"

	// provisionalPrefix marks provisional IDs in their textual form only.
	// Nothing outside this file should look at it.
	provisionalPrefix = "tmp-"
)

// =============================================================================
// ID TYPE
// =============================================================================

// ID identifies a conversation or message. The zero value is "no ID".
type ID struct {
	kind  Kind
	value string
}

// DraftID returns the ID of the draft conversation.
func DraftID() ID {
	return ID{kind: KindDraft, value: DraftSentinel}
}

// NewProvisionalID generates a fresh client-side ID.
func NewProvisionalID() ID {
	return ID{kind: KindProvisional, value: provisionalPrefix + uuid.New().String()}
}

// ConfirmedID wraps a backend-issued identifier.
func ConfirmedID(value string) ID {
	if value == "" {
		return ID{}
	}
	return ID{kind: KindConfirmed, value: value}
}

// ParseID restores an ID from its textual form, keeping its kind.
func ParseID(s string) ID {
	switch {
	case s == "":
		return ID{}
	case s == DraftSentinel:
		return DraftID()
	case strings.HasPrefix(s, provisionalPrefix):
		return ID{kind: KindProvisional, value: s}
	default:
		return ID{kind: KindConfirmed, value: s}
	}
}

// String returns the textual form of the ID.
func (id ID) String() string {
	return id.value
}

// Kind returns the kind of the ID.
func (id ID) Kind() Kind {
	return id.kind
}

// IsZero returns true for the empty ID.
func (id ID) IsZero() bool {
	return id.value == ""
}

// IsDraft returns true for the draft sentinel.
func (id ID) IsDraft() bool {
	return id.kind == KindDraft && id.value != ""
}

// IsProvisional returns true for client-generated IDs.
func (id ID) IsProvisional() bool {
	return id.kind == KindProvisional && id.value != ""
}

// IsConfirmed returns true for backend-issued IDs.
func (id ID) IsConfirmed() bool {
	return id.kind == KindConfirmed && id.value != ""
}

// MarshalJSON encodes the ID as its textual form.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON decodes the textual form, restoring the kind.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ParseID(s)
	return nil
}
