// Package types defines shared data types used across the DBGP server.
//
// This package provides type definitions for:
//   - SessionState: the engine state machine (disconnected, main loop, at breakpoint, terminated)
//   - SessionInfo: a JSON snapshot of the engine for status reporting
//   - BreakpointInfo: one armed breakpoint location and its protocol id
//
// These types are what the MCP surface serializes, so they carry JSON tags.
package types

// SessionState represents the state of the debugger session engine
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateMainLoop     SessionState = "main_loop"
	StateAtBreakpoint SessionState = "at_breakpoint"
	StateTerminated   SessionState = "terminated"
)

// BreakpointInfo represents a breakpoint in the registry
type BreakpointInfo struct {
	ID       int    `json:"id"`
	Location string `json:"location"`
}

// SessionInfo represents information about the debugger session
type SessionInfo struct {
	AppID           string       `json:"appId"`
	IDEKey          string       `json:"ideKey"`
	Address         string       `json:"address"`
	State           SessionState `json:"state"`
	Daemon          bool         `json:"daemon"`
	SingleStep      bool         `json:"singleStep"`
	DeferredCommand string       `json:"deferredCommand,omitempty"`
	MainConnected   bool         `json:"mainConnected"`
	DebugConnected  bool         `json:"debugConnected"`
	Breakpoints     int          `json:"breakpoints"`
}
