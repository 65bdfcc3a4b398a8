// Package errors provides centralized error definitions and error handling utilities
// for the inspector. It defines sentinel errors, typed errors carrying the offending
// plugin, command, or path, and classification helpers.
//
// # Error Types
//
// The taxonomy mirrors how a failed operation should be treated by a test run:
//   - NotFoundError: a plugin, manifest, or source document is missing (fatal, never retried)
//   - ManifestError: a plugin manifest is missing or unparseable
//   - PreconditionError: no plugin selected, no document open, missing identifier
//   - TimeoutError: a dispatched command produced no completion marker in time
//   - CommandError: the bridge rejected or failed a dispatch
//   - ChannelError: a write or rename in the shared channel failed
//
// # Usage
//
//	err := errors.NewPreconditionError("runCommand", errors.ErrPluginNotSelected)
//	if errors.Is(err, errors.ErrPluginNotSelected) { ... }
//
//	var timeout *errors.TimeoutError
//	if errors.As(err, &timeout) {
//	    fmt.Println(timeout.Command, timeout.Elapsed)
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lookup sentinel errors
var (
	// ErrNotFound indicates that a resource could not be found.
	ErrNotFound = New("not found")
	// ErrPluginNotFound indicates that no plugin bundle exists under the plugin folder.
	ErrPluginNotFound = New("plugin not found")
	// ErrSourceNotFound indicates that the document to open does not exist.
	ErrSourceNotFound = New("source document not found")
	// ErrInvalidManifest indicates that a plugin manifest is missing or unparseable.
	ErrInvalidManifest = New("invalid plugin manifest")
)

// Precondition sentinel errors
var (
	// ErrPreconditionViolation is the parent of every precondition sentinel.
	ErrPreconditionViolation = New("precondition violated")
	// ErrPluginNotSelected indicates that runCommand was called before selectPlugin.
	ErrPluginNotSelected = New("no plugin selected")
	// ErrNoDocumentOpen indicates that a document operation ran without an open document.
	ErrNoDocumentOpen = New("no document open")
	// ErrMissingIdentifier indicates that a command identifier was empty.
	ErrMissingIdentifier = New("missing command identifier")
)

// Execution sentinel errors
var (
	// ErrCommandTimedOut indicates that no completion marker arrived within the bound.
	ErrCommandTimedOut = New("command timed out")
	// ErrCommandFailed indicates that the bridge failed to dispatch a command.
	ErrCommandFailed = New("command failed")
	// ErrChannelWrite indicates that a shared channel write or rename failed.
	ErrChannelWrite = New("channel write failed")
	// ErrInvalidScript indicates that a tagged script failed validation.
	ErrInvalidScript = New("invalid script")
	// ErrAlreadyExists indicates that a resource already exists.
	ErrAlreadyExists = New("already exists")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// InspectorError is the base interface for all typed errors in this package.
type InspectorError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the caller may retry the operation.
	// The inspector itself never retries.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func withCause(msg string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("%s: %v", msg, cause)
	}
	return msg
}

// -----------------------------------------------------------------------------
// Typed Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a plugin, manifest, or document that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("plugin", "Test.sketchplugin").WithCause(errors.ErrPluginNotFound)
//	fmt.Println(err) // "plugin 'Test.sketchplugin' not found: plugin not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityError,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return withCause(e.message, e.cause)
}

// Is reports whether target is ErrNotFound, a *NotFoundError, or matches the cause.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return target == ErrNotFound
}

// ManifestError represents a plugin manifest that is missing or cannot be parsed.
type ManifestError struct {
	baseError
	Path string
}

// NewManifestError creates a new ManifestError for the manifest at path.
func NewManifestError(path string, cause error) *ManifestError {
	return &ManifestError{
		baseError: baseError{
			message:    fmt.Sprintf("invalid manifest at %s", path),
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *ManifestError) Error() string {
	return withCause(e.message, e.cause)
}

// Is reports whether target is ErrInvalidManifest or a *ManifestError.
func (e *ManifestError) Is(target error) bool {
	if _, ok := target.(*ManifestError); ok {
		return true
	}
	return target == ErrInvalidManifest
}

// PreconditionError represents a call made in a state that does not allow it.
// These are programmer errors and are surfaced immediately.
//
// Example:
//
//	err := errors.NewPreconditionError("dump", errors.ErrNoDocumentOpen)
//	fmt.Println(err) // "precondition violated [op=dump]: no document open"
type PreconditionError struct {
	baseError
	Operation string
}

// NewPreconditionError creates a new PreconditionError. The requirement should be
// one of the precondition sentinels.
func NewPreconditionError(operation string, requirement error) *PreconditionError {
	return &PreconditionError{
		baseError: baseError{
			message:    "precondition violated",
			cause:      requirement,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *PreconditionError) Error() string {
	prefix := e.message
	if e.Operation != "" {
		prefix = fmt.Sprintf("%s [op=%s]", e.message, e.Operation)
	}
	return withCause(prefix, e.cause)
}

// Is reports whether target is ErrPreconditionViolation or a *PreconditionError.
func (e *PreconditionError) Is(target error) bool {
	if _, ok := target.(*PreconditionError); ok {
		return true
	}
	return target == ErrPreconditionViolation
}

// TimeoutError represents a dispatched command that produced no completion
// marker within the configured bound.
//
// Example:
//
//	err := errors.NewTimeoutError("removeSelected", 10*time.Second, 10*time.Second)
//	fmt.Println(err) // "command 'removeSelected' timed out after 10s (limit: 10s)"
type TimeoutError struct {
	baseError
	Command string
	Elapsed time.Duration
	Limit   time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(command string, elapsed, limit time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    fmt.Sprintf("command '%s' timed out", command),
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Command: command,
		Elapsed: elapsed,
		Limit:   limit,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("%s after %s (limit: %s)", e.message, e.Elapsed.Round(time.Millisecond), e.Limit)
	return withCause(base, e.cause)
}

// Is reports whether target is ErrCommandTimedOut or a *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return target == ErrCommandTimedOut
}

// CommandError represents a dispatch the bridge failed to deliver.
//
// Example:
//
//	err := errors.NewCommandError("Test", "removeSelected", execErr).WithOutput(stderr)
type CommandError struct {
	baseError
	Plugin  string
	Command string
	Output  string
}

// NewCommandError creates a new CommandError.
func NewCommandError(plugin, command string, cause error) *CommandError {
	return &CommandError{
		baseError: baseError{
			message:    "command failed",
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Plugin:  plugin,
		Command: command,
	}
}

// WithOutput attaches captured bridge output.
func (e *CommandError) WithOutput(output string) *CommandError {
	e.Output = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *CommandError) Error() string {
	var parts []string
	if e.Plugin != "" {
		parts = append(parts, fmt.Sprintf("plugin=%s", e.Plugin))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}

	prefix := e.message
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", e.message, strings.Join(parts, ", "))
	}

	msg := withCause(prefix, e.cause)
	if e.Output != "" {
		msg = fmt.Sprintf("%s\nbridge output: %s", msg, e.Output)
	}
	return msg
}

// Is reports whether target is ErrCommandFailed or a *CommandError.
func (e *CommandError) Is(target error) bool {
	if _, ok := target.(*CommandError); ok {
		return true
	}
	return target == ErrCommandFailed
}

// ChannelError represents a failed write, rename, or clear in the shared channel.
type ChannelError struct {
	baseError
	Op   string
	Path string
}

// NewChannelError creates a new ChannelError.
func NewChannelError(op, path string, cause error) *ChannelError {
	return &ChannelError{
		baseError: baseError{
			message:    "channel write failed",
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
		Op:   op,
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *ChannelError) Error() string {
	return withCause(fmt.Sprintf("%s [op=%s, path=%s]", e.message, e.Op, e.Path), e.cause)
}

// Is reports whether target is ErrChannelWrite or a *ChannelError.
func (e *ChannelError) Is(target error) bool {
	if _, ok := target.(*ChannelError); ok {
		return true
	}
	return target == ErrChannelWrite
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a condition the caller may
// retry at its own discretion. Only timeouts qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var inspectorErr InspectorError
	if As(err, &inspectorErr) {
		return inspectorErr.IsRetryable()
	}
	return Is(err, ErrCommandTimedOut)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var inspectorErr InspectorError
	if As(err, &inspectorErr) {
		return inspectorErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement InspectorError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var inspectorErr InspectorError
	if As(err, &inspectorErr) {
		return inspectorErr.Severity()
	}
	return SeverityError
}

// IsPrecondition returns true for programmer errors such as a missing plugin
// selection or no open document.
func IsPrecondition(err error) bool {
	return Is(err, ErrPreconditionViolation)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to open document")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to copy %s", path)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
