// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the RAG chat service.
//
// The service exposes a streaming chat endpoint, an edit endpoint that
// regenerates a conversation from an edited message, auxiliary tool streams,
// conversation CRUD and document upload. Every request carries the bearer
// token from the configuration.
//
// # Key Types
//
//   - Client: Pooled HTTP client; streams use a timeout-less client bounded by context
//   - ChatRequest: Body of chat and edit requests
//   - Document: Upload envelope and processing status
//   - APIError, RateLimitError, DocumentError: Typed failures
//
// # Usage
//
//	client := backend.New(backend.Config{BaseURL: url, Token: token})
//	src, err := client.StreamChat(ctx, backend.ChatRequest{Query: "What did we decide?"})
//	if backend.IsUnauthorized(err) {
//	    // sign out
//	}
//	res, err := stream.Run(ctx, src, observer)
//
// # Errors
//
// Non-2xx responses become *APIError, except 429 which becomes
// *RateLimitError. Use errors.Is with ErrUnauthorized, ErrNotFound and
// ErrRateLimited rather than inspecting status codes.
package backend
