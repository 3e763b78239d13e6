// Package errors provides structured error types for the DBGP debugger server.
// Each error carries a machine-readable code plus a hint that tells the
// operator (or the MCP client) what to check next.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Transport errors
	CodeTransportConnectFailed ErrorCode = "TRANSPORT_CONNECT_FAILED"
	CodeConnectionClosed       ErrorCode = "CONNECTION_CLOSED"
	CodeTransportIO            ErrorCode = "TRANSPORT_IO"

	// DBGP protocol errors
	CodeProtocolError     ErrorCode = "PROTOCOL_ERROR"
	CodePathNotFound      ErrorCode = "PATH_NOT_FOUND"
	CodeInvalidBreakpoint ErrorCode = "INVALID_BREAKPOINT"

	// Configuration errors
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"

	// Debug adapter errors
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"
	CodeDAPInitFailed        ErrorCode = "DAP_INIT_FAILED"
	CodeDAPLaunchFailed      ErrorCode = "DAP_LAUNCH_FAILED"
	CodeDAPTimeout           ErrorCode = "DAP_TIMEOUT"
	CodeDAPRequestFailed     ErrorCode = "DAP_REQUEST_FAILED"
)

// DebugError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the address, the path expression)
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

// --- Transport Errors ---

// TransportConnectFailed creates an error when the IDE cannot be reached
func TransportConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeTransportConnectFailed,
		Message: fmt.Sprintf("failed to connect to IDE at %s: %v", address, err),
		Hint:    "Make sure the IDE is listening for debug connections on this host and port (usually 9003).",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// ConnectionClosed creates an error for a connection the IDE has closed
func ConnectionClosed(conn string) *DebugError {
	return &DebugError{
		Code:    CodeConnectionClosed,
		Message: fmt.Sprintf("%s connection closed by IDE", conn),
		Hint:    "The IDE stopped the debug session or went away. Restart listening in the IDE to debug again.",
		Details: map[string]interface{}{
			"conn": conn,
		},
	}
}

// TransportIO creates an error for a failed read or write
func TransportIO(op string, err error) *DebugError {
	return &DebugError{
		Code:    CodeTransportIO,
		Message: fmt.Sprintf("%s failed: %v", op, err),
		Hint:    "The connection to the IDE is broken.",
		Cause:   err,
		Details: map[string]interface{}{
			"operation": op,
		},
	}
}

// --- Protocol Errors ---

// ProtocolError creates an error for a command the engine cannot process
func ProtocolError(command, reason string) *DebugError {
	return &DebugError{
		Code:    CodeProtocolError,
		Message: fmt.Sprintf("cannot process %s: %s", command, reason),
		Details: map[string]interface{}{
			"command": command,
			"reason":  reason,
		},
	}
}

// PathNotFound creates an error for a property path that does not resolve
func PathNotFound(expression, key string) *DebugError {
	return &DebugError{
		Code:    CodePathNotFound,
		Message: fmt.Sprintf("property %q not found at key %q", expression, key),
		Hint:    "The variable may have gone out of scope, or an intermediate value cannot be indexed.",
		Details: map[string]interface{}{
			"expression": expression,
			"key":        key,
		},
	}
}

// InvalidBreakpoint creates an error for a breakpoint that cannot be armed
func InvalidBreakpoint(file, line string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidBreakpoint,
		Message: fmt.Sprintf("invalid breakpoint location %s:%s", file, line),
		Hint:    "Line breakpoints need a file (-f) and a numeric line (-n).",
		Details: map[string]interface{}{
			"file": file,
			"line": line,
		},
	}
}

// --- Configuration Errors ---

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(field, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration field '%s' is invalid: %s", field, reason),
		Hint:    "Check the configuration file, the DBGP_* environment variables and the command line flags.",
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// ConfigNotFound creates an error for a missing launch.json configuration
func ConfigNotFound(configName string, available []string) *DebugError {
	var hint string
	if len(available) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(available, ", "))
	} else {
		hint = "No configurations found in launch.json. Create a launch configuration first."
	}

	return &DebugError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": available,
		},
	}
}

// --- Debug Adapter Errors ---

// AdapterSpawnFailed creates an error when the debug adapter cannot be started
func AdapterSpawnFailed(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter %s: %v", path, err),
		Hint:    "Install Delve (go install github.com/go-delve/delve/cmd/dlv@latest) or set adapter.path.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to the adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed. Check its stderr output.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// DAPInitFailed creates an error for DAP initialization failures
func DAPInitFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPInitFailed,
		Message: fmt.Sprintf("debug adapter initialization failed: %v", err),
		Hint:    "The debug adapter may be incompatible or crashed during startup.",
		Cause:   err,
	}
}

// DAPLaunchFailed creates an error for launch failures
func DAPLaunchFailed(program string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPLaunchFailed,
		Message: fmt.Sprintf("failed to launch program: %v", err),
		Hint:    "Check that the program path is correct and that it compiles.",
		Cause:   err,
		Details: map[string]interface{}{
			"program": program,
		},
	}
}

// DAPTimeout creates an error for DAP timeouts
func DAPTimeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeDAPTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "The debug adapter did not answer in time.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// DAPRequestFailed creates an error for a DAP request the adapter rejected
func DAPRequestFailed(command, message string) *DebugError {
	return &DebugError{
		Code:    CodeDAPRequestFailed,
		Message: fmt.Sprintf("%s request failed: %s", command, message),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// --- Helpers ---

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

// IsCode reports whether err is, or wraps, a DebugError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Code == code
	}
	return false
}
