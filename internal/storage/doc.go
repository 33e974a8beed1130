// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local conversation cache for ragchat.
//
// The backend owns conversation history. The cache keeps a copy of every
// conversation the client has completed a turn in, so a conversation can be
// reopened and exported while the backend is unreachable.
//
// # Key Types
//
//   - Cache: SQLite database (modernc.org/sqlite, no cgo)
//   - Meta: Lightweight metadata for listing
//
// # Usage
//
//	cache, err := storage.Open(path)
//	defer cache.Close()
//	err = cache.Save(ctx, conv)
//	metas, err := cache.List(ctx)
//	conv, err := cache.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// The database lives at ~/.ragchat/cache.db unless [cache] path is set.
package storage
