// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, display and exit codes for the ragchat commands.
//
// Commands always return errors and never print-and-return-nil; main decides
// how to show them and which exit code to use.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the backend rejected the bearer token
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user cancelled with Ctrl+C
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "upload"
	Action  string // e.g. "wait"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // e.g. "conversation", "file"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// ErrUnsupportedFormat creates an error for unsupported export formats.
func ErrUnsupportedFormat(format string, supported []string) error {
	return &ValidationError{
		Field:   "format",
		Value:   format,
		Reason:  "unsupported format",
		Example: fmt.Sprintf("supported formats: %v", supported),
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError prints err to stderr, or as a JSON error response on stdout
// in JSON mode.
func DisplayError(command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(command, err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", DimStyle.Render("hint:"), hint)
	}
}

// DisplayErrorJSON outputs an error as JSON.
func DisplayErrorJSON(command string, err error) {
	output := map[string]any{
		"success":    false,
		"error":      err.Error(),
		"error_type": errorType(err),
		"exit_code":  GetExitCode(err),
	}
	if command != "" {
		output["command"] = command
	}

	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &validationErr):
		output["field"] = validationErr.Field
		if validationErr.Example != "" {
			output["example"] = validationErr.Example
		}
	case errors.As(err, &notFoundErr):
		output["resource"] = notFoundErr.Resource
		output["id"] = notFoundErr.ID
	case errors.As(err, &apiErr):
		output["status"] = apiErr.Status
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "validation_error"
	case ExitConfigError:
		return "config_error"
	case ExitAuthError:
		return "auth_error"
	case ExitNetworkError:
		return "network_error"
	case ExitNotFoundError:
		return "not_found_error"
	case ExitTimeoutError:
		return "timeout_error"
	case ExitInterrupted:
		return "interrupted"
	default:
		return "generic_error"
	}
}

// errorHint suggests the next step for errors the user can fix.
func errorHint(err error) string {
	switch {
	case errors.Is(err, config.ErrNoBackend), errors.Is(err, backend.ErrNotConfigured):
		return "ragchat config set backend.url https://rag.example.com"
	case errors.Is(err, backend.ErrUnauthorized):
		return "ragchat config set backend.token <token>, or set RAGCHAT_TOKEN"
	case errors.Is(err, backend.ErrRateLimited):
		return "wait a moment and try again"
	default:
		return ""
	}
}

// =============================================================================
// EXIT CODES
// =============================================================================

// GetExitCode maps an error onto an exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var configErrs config.ValidateErrors
	var configErr config.ValidationError
	var notFoundErr *NotFoundError
	var netErr net.Error
	var transportErr *stream.TransportError

	switch {
	case errors.Is(err, stream.ErrAbandoned), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &validationErr),
		errors.Is(err, session.ErrEmptyMessage):
		return ExitUsageError
	case errors.Is(err, config.ErrNoBackend),
		errors.Is(err, backend.ErrNotConfigured),
		errors.As(err, &configErrs),
		errors.As(err, &configErr):
		return ExitConfigError
	case errors.Is(err, backend.ErrUnauthorized):
		return ExitAuthError
	case errors.As(err, &notFoundErr),
		errors.Is(err, backend.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrMessageNotFound):
		return ExitNotFoundError
	case errors.Is(err, backend.ErrDocumentTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, backend.ErrRateLimited),
		errors.As(err, &transportErr),
		errors.As(err, &netErr):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// =============================================================================
// REPORTED ERRORS
// =============================================================================

// reportedError marks an error that was already shown to the user, e.g. as
// a JSON error response. Run only uses it for the exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// isReported reports whether err was already displayed.
func isReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
