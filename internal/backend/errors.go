// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

var (
	// ErrNotConfigured indicates the backend URL is not set.
	ErrNotConfigured = errors.New("backend URL not configured")

	// ErrUnauthorized indicates the bearer token was rejected. The caller
	// should sign out and ask for a new token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDocumentTimeout indicates a document did not finish processing in time.
	ErrDocumentTimeout = errors.New("document processing timed out")
)

// =============================================================================
// API ERROR
// =============================================================================

// APIError is a non-success HTTP response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Is maps status codes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// IsUnauthorized reports whether err means the session must re-authenticate.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// =============================================================================
// RATE LIMIT ERROR
// =============================================================================

// RateLimitError represents a rate limit error with retry information.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// =============================================================================
// DOCUMENT ERROR
// =============================================================================

// DocumentError reports a document whose processing failed on the backend.
type DocumentError struct {
	DocumentID string
	Filename   string
	Reason     string
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	name := e.Filename
	if name == "" {
		name = e.DocumentID
	}
	if e.Reason != "" {
		return fmt.Sprintf("document %s failed: %s", name, e.Reason)
	}
	return fmt.Sprintf("document %s failed", name)
}

// =============================================================================
// RESPONSE MAPPING
// =============================================================================

// errorBody covers the error envelopes the backend is known to send.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		for _, raw := range []json.RawMessage{eb.Detail, eb.Error} {
			if len(raw) == 0 {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

// handleErrorResponse converts a non-2xx response into an error.
func handleErrorResponse(resp *http.Response, body []byte) error {
	msg := errorMessage(body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    msg,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
