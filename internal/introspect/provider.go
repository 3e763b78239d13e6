// Package introspect defines the execution introspection capability the
// debugger consumes: where a paused execution context is, what its call
// trace looks like, and which variables are in scope at a given depth.
//
// The host environment supplies the implementation. It must call the
// registered statement hook synchronously, on the thread of control that is
// executing the target, every time an instrumented statement is reached;
// blocking inside the hook is how the target is paused.
package introspect

import "github.com/ctagard/dbgpd/internal/property"

// RawFrame is one frame of a provider's call trace, innermost first.
type RawFrame struct {
	// Class is the type the function belongs to; empty for plain functions.
	Class string

	// CallType joins Class and Function ("->", "::", ".").
	CallType string

	Function string
	File     string
	Line     int
}

// Context is a paused (or running) execution context.
type Context interface {
	// ID identifies the context; equal IDs mean the same context.
	ID() uint64

	// Location returns the statement about to execute.
	Location() (file string, line int)

	// RawTrace returns the call trace with the first fromDepth frames skipped.
	RawTrace(fromDepth int) []RawFrame

	// DefinedVariables returns the variables in scope of the frame at
	// fromDepth in RawTrace(0), as a map value.
	DefinedVariables(fromDepth int) property.Value
}

// Hook is called for every instrumented statement.
type Hook func(Context)

// Provider is the host's introspection capability.
type Provider interface {
	// Current returns the context that is executing right now.
	Current() Context

	// OnEveryStatement registers the statement hook. Callers register once
	// per process.
	OnEveryStatement(hook Hook)
}
