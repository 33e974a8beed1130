// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes and reduces the chat response stream.
//
// The backend answers a chat request with Server-Sent Events, one JSON
// object per frame, discriminated by a "type" field. There is no end
// sentinel: the end of the HTTP body ends the turn.
//
// # Key Types
//
//   - Chunk: Sealed sum type over the frame variants (MetaChunk, TokenChunk, ...)
//   - FrameReader: SSE framing and decoding over an HTTP body
//   - Accumulator: Pure per-chunk fold producing live state and a final message
//   - Run: Drives a Source through an Accumulator with an Observer
//
// # Usage
//
//	src := stream.NewFrameReader(resp.Body, logger)
//	res, err := stream.Run(ctx, src, stream.ObserverFunc(func(c stream.Change, live stream.Live) {
//	    render(live.Content)
//	}))
//	switch {
//	case errors.Is(err, stream.ErrAbandoned):
//	    // user went away; nothing to append
//	case err != nil:
//	    msg := stream.FailureMessage(err)
//	default:
//	    msg := res.Message
//	}
//
// # Relevance Scores
//
// Source.RelevanceScore is a percentage everywhere in this module. Decode
// scales the 0-1 similarities of sources frames; tool result sources are
// already percentages.
package stream
