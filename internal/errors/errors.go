// Package errors provides structured error types for dap-inferiors.
// Each error carries a machine-readable code and a hint that is shown to the
// user (or the MCP client) alongside the message.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Launch errors
	CodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	CodeAlreadyRunning       ErrorCode = "ALREADY_RUNNING"
	CodeAdapterExited        ErrorCode = "ADAPTER_EXITED"
	CodeTimeout              ErrorCode = "TIMEOUT"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// Protocol errors
	CodeProtocolRequestFailed ErrorCode = "PROTOCOL_REQUEST_FAILED"

	// Session errors
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Launch configuration errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
)

// DebugError is a structured error type with a code, a readable message and
// an optional hint on how to fix the problem.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message describes what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DebugError with the same code.
func (e *DebugError) Is(target error) bool {
	var other *DebugError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// HasCode reports whether err (or anything it wraps) is a DebugError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var de *DebugError
	if !stderrors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// --- Launch Errors ---

// InvalidConfiguration creates an error for a debugger or program path that failed validation
func InvalidConfiguration(field, value, reason string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidConfiguration,
		Message: fmt.Sprintf("invalid %s '%s': %s", field, value, reason),
		Hint:    "Point the path at an existing file, or use the bare debugger name to resolve it through PATH.",
		Details: map[string]interface{}{
			"field": field,
			"value": value,
		},
	}
}

// AlreadyRunning creates an error for a launch attempted while a connection is open
func AlreadyRunning(pid int) *DebugError {
	return &DebugError{
		Code:    CodeAlreadyRunning,
		Message: "debug adapter supports only one client connection at a time",
		Hint:    "End the current debug session before starting a new one.",
		Details: map[string]interface{}{
			"pid": pid,
		},
	}
}

// AdapterExited creates an error for an adapter that terminated before it was ready
func AdapterExited(code int) *DebugError {
	return &DebugError{
		Code:    CodeAdapterExited,
		Message: fmt.Sprintf("debug adapter exited with code %d", code),
		Hint:    "Check the adapter log output above for the reason it stopped.",
		Details: map[string]interface{}{
			"exitCode": code,
		},
	}
}

// Timeout creates an error for a readiness marker that never arrived
func Timeout(operation string, seconds int) *DebugError {
	return &DebugError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("timeout waiting for %s", operation),
		Hint:    "Increase adapter.start_timeout_seconds if the adapter is slow to start.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": seconds,
		},
	}
}

// AdapterSpawnFailed creates an error when the adapter process cannot be started
func AdapterSpawnFailed(script string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter %s: %v", script, err),
		Hint:    "Check adapter.install_path and that bin/run_debug_adapter is executable.",
		Cause:   err,
		Details: map[string]interface{}{
			"script": script,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to the adapter endpoint fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The adapter reported readiness but is not accepting connections. It may have crashed.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- Protocol Errors ---

// ProtocolRequestFailed creates an error for a rejected custom request round trip
func ProtocolRequestFailed(command string, err error) *DebugError {
	return &DebugError{
		Code:    CodeProtocolRequestFailed,
		Message: fmt.Sprintf("%s request failed: %v", command, err),
		Cause:   err,
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use session_status to see the active session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// NoActiveSession creates an error for process operations without a running session
func NoActiveSession() *DebugError {
	return &DebugError{
		Code:    CodeNoActiveSession,
		Message: "no debug session is running",
		Hint:    "Start a debug session from the IDE first.",
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Launch Configuration Errors ---

// ConfigNotFound creates an error for missing launch.json configurations
func ConfigNotFound(configName string, availableConfigs []string) *DebugError {
	var hint string
	if len(availableConfigs) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(availableConfigs, ", "))
	} else {
		hint = "No configurations found in launch.json."
	}

	return &DebugError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": availableConfigs,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(configName, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", configName, reason),
		Hint:    "Check the launch.json file for syntax errors.",
		Details: map[string]interface{}{
			"configName": configName,
			"reason":     reason,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, preserving any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Cause:   err,
	}
}
