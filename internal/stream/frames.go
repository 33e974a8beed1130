// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// =============================================================================
// FRAME READER CONSTANTS
// =============================================================================

// MaxFrameSize is the largest frame the reader accepts (1 MiB).
const MaxFrameSize = 1 << 20

// initialBufferSize is the starting line buffer; it grows up to MaxFrameSize.
const initialBufferSize = 64 * 1024

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("stream frame exceeds maximum size")

// =============================================================================
// SOURCE
// =============================================================================

// Source yields decoded chunks in arrival order. Next returns io.EOF when the
// stream ends normally. Close releases the underlying transport and may be
// called more than once.
type Source interface {
	Next() (Chunk, error)
	Close() error
}

// =============================================================================
// FRAME READER
// =============================================================================

// FrameReader reads SSE frames from an HTTP body and decodes them.
//
// Only data fields are used: multiple data lines in one event are joined with
// a newline, and event, id, retry and comment lines are ignored. A final
// event without a terminating blank line is still delivered at EOF.
// Frames that fail to decode are logged and skipped.
type FrameReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *log.Logger

	skipped   int
	closeOnce sync.Once
	closeErr  error
}

// NewFrameReader wraps body. A nil logger discards warnings.
func NewFrameReader(body io.ReadCloser, logger *log.Logger) *FrameReader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, initialBufferSize), MaxFrameSize)
	return &FrameReader{
		body:    body,
		scanner: scanner,
		logger:  logger,
	}
}

// Next returns the next decodable chunk.
func (r *FrameReader) Next() (Chunk, error) {
	for {
		data, err := r.readEvent()
		if err != nil {
			return nil, err
		}

		chunk, err := Decode(data)
		if err != nil {
			r.skipped++
			r.logger.Printf("WARN skipping malformed stream frame: %v", err)
			continue
		}
		return chunk, nil
	}
}

// Skipped returns how many frames were dropped as malformed.
func (r *FrameReader) Skipped() int {
	return r.skipped
}

// Close releases the body.
func (r *FrameReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}

// readEvent returns the data of the next event that has any.
func (r *FrameReader) readEvent() ([]byte, error) {
	var data []byte
	hasData := false

	for r.scanner.Scan() {
		line := r.scanner.Bytes()

		// Empty line ends the event.
		if len(line) == 0 {
			if hasData {
				return data, nil
			}
			continue
		}

		field, value := splitField(line)
		if field != "data" {
			continue
		}
		// Tolerate an OpenAI-style terminator.
		if bytes.Equal(value, []byte("[DONE]")) {
			continue
		}

		if hasData {
			data = append(data, '\n')
		}
		data = append(data, value...)
		hasData = true
		if len(data) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
	}

	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrFrameTooLarge
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if hasData {
		return data, nil
	}
	return nil, io.EOF
}

// splitField splits "field: value", dropping one leading space from the value.
// Lines starting with ':' are comments and have an empty field.
func splitField(line []byte) (string, []byte) {
	if line[0] == ':' {
		return "", nil
	}
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}

// =============================================================================
// SLICE SOURCE
// =============================================================================

// SliceSource is a Source over chunks already in memory. Packages built on
// Run use it to script streams in their tests.
type SliceSource struct {
	mu     sync.Mutex
	chunks []Chunk
	err    error
	closed bool
}

// NewSliceSource returns a Source yielding chunks, then err (io.EOF if nil).
func NewSliceSource(chunks []Chunk, err error) *SliceSource {
	if err == nil {
		err = io.EOF
	}
	return &SliceSource{chunks: chunks, err: err}
}

// Next implements Source.
func (s *SliceSource) Next() (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if len(s.chunks) == 0 {
		return nil, s.err
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

// Close implements Source.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
