// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrAbandoned is returned when the consumer stops reading before the stream
// ends. No message is produced for an abandoned turn.
var ErrAbandoned = errors.New("stream abandoned")

// TransportError is a failure of the underlying stream before it ended.
// Frames counts how many chunks were applied before the failure.
type TransportError struct {
	Frames int
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Frames > 0 {
		return fmt.Sprintf("stream interrupted after %d frames: %v", e.Frames, e.Err)
	}
	return fmt.Sprintf("stream failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// OBSERVER
// =============================================================================

// Observer sees every applied chunk before the next one is read.
type Observer interface {
	OnChange(change Change, live Live)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(change Change, live Live)

// OnChange implements Observer.
func (f ObserverFunc) OnChange(change Change, live Live) {
	f(change, live)
}

// skipCounter is implemented by sources that drop malformed frames.
type skipCounter interface {
	Skipped() int
}

// =============================================================================
// RUN
// =============================================================================

// Result is the outcome of a stream that ended normally.
type Result struct {
	Message        *model.Message
	ConversationID string
	UserMessageID  string
	ToolState      model.ToolState
	Frames         int
	Skipped        int
}

// Run consumes src until it ends, applying each chunk and notifying obs.
//
// Cancelling ctx closes src, discards the partial turn and returns an error
// wrapping ErrAbandoned. Any other read failure returns a *TransportError.
// The source is always closed on return.
func Run(ctx context.Context, src Source, obs Observer) (*Result, error) {
	defer src.Close()

	// Unblock a pending read when the consumer goes away.
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()

	acc := NewAccumulator()
	frames := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAbandoned, err)
		}

		chunk, err := src.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrAbandoned, ctxErr)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &TransportError{Frames: frames, Err: err}
		}

		change := acc.Apply(chunk)
		frames++
		if obs != nil {
			obs.OnChange(change, acc.Snapshot())
		}
	}

	result := &Result{
		Message:        acc.Finalize(),
		ConversationID: acc.ConversationID(),
		UserMessageID:  acc.UserMessageID(),
		ToolState:      acc.ToolState(),
		Frames:         frames,
	}
	if sc, ok := src.(skipCounter); ok {
		result.Skipped = sc.Skipped()
	}
	return result, nil
}
