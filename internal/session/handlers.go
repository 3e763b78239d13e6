package session

import (
	"strconv"

	"github.com/ctagard/dbgpd/internal/dbgp"
	"github.com/ctagard/dbgpd/internal/errors"
	"github.com/ctagard/dbgpd/internal/introspect"
	"github.com/ctagard/dbgpd/internal/property"
	"github.com/ctagard/dbgpd/pkg/types"
)

// handler answers one command in context c. A nil element sends nothing.
type handler func(c introspect.Context, cmd dbgp.Command) (*dbgp.Element, error)

// commandTable maps the supported command names to their handlers.
func (e *Engine) commandTable() map[string]handler {
	return map[string]handler{
		"init":              e.handleInit,
		"feature_set":       e.handleFeatureSet,
		"stdout":            e.handleStdout,
		"status":            e.handleStatus,
		"step_into":         e.handleStepInto,
		"eval":              e.handleEval,
		"breakpoint_set":    e.handleBreakpointSet,
		"breakpoint_remove": e.handleBreakpointRemove,
		"stack_get":         e.handleStackGet,
		"context_names":     e.handleContextNames,
		"context_get":       e.handleContextGet,
		"property_get":      e.handlePropertyGet,
		"step_over":         e.handleContinuation,
		"run":               e.handleContinuation,
	}
}

func (e *Engine) handleInit(_ introspect.Context, _ dbgp.Command) (*dbgp.Element, error) {
	return dbgp.Init(e.opts.AppID, e.opts.IDEKey, e.opts.Language), nil
}

func (e *Engine) handleFeatureSet(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	name, _ := cmd.Flag("n")
	return dbgp.NewResponse(cmd).
		Set("feature", name).
		Set("success", "1"), nil
}

func (e *Engine) handleStdout(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	return dbgp.NewResponse(cmd).Set("success", "1"), nil
}

func (e *Engine) handleStatus(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	status := dbgp.StatusStarting
	if e.State() == types.StateAtBreakpoint {
		status = dbgp.StatusBreak
	}
	return dbgp.NewResponse(cmd).
		Set("status", status).
		Set("reason", dbgp.ReasonOK), nil
}

func (e *Engine) handleStepInto(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	return dbgp.NewResponse(cmd).
		Set("status", dbgp.StatusBreak).
		Set("reason", dbgp.ReasonOK), nil
}

// handleEval answers the fixed set of environment queries; other expressions
// get no response.
func (e *Engine) handleEval(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	v, ok := dbgp.CannedEval(cmd.Data())
	if !ok {
		return nil, nil
	}
	return dbgp.NewResponse(cmd).Add(dbgp.EvalProperty(v)), nil
}

func (e *Engine) handleBreakpointSet(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	file, _ := cmd.Flag("f")
	lineno, _ := cmd.Flag("n")

	line, err := strconv.Atoi(lineno)
	if file == "" || err != nil || line < 1 {
		bpErr := errors.InvalidBreakpoint(file, lineno).WithDetails("transaction_id", cmd.TransactionID)
		return dbgp.NewResponse(cmd).Add(dbgp.Error(dbgp.ErrBreakpointNotSet, bpErr.Message)), bpErr
	}

	id := e.SetBreakpoint(file, line)
	return dbgp.NewResponse(cmd).Set("id", strconv.Itoa(id)), nil
}

// handleBreakpointRemove always answers; a malformed id removes nothing.
func (e *Engine) handleBreakpointRemove(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	raw := cmd.FlagOr("d", "")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return dbgp.NewResponse(cmd), errors.ProtocolError(cmd.Name, "malformed breakpoint id "+strconv.Quote(raw)).
			WithDetails("transaction_id", cmd.TransactionID).
			WithCause(err)
	}
	e.RemoveBreakpoint(id)
	return dbgp.NewResponse(cmd), nil
}

func (e *Engine) handleStackGet(c introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	resp := dbgp.NewResponse(cmd)
	for _, f := range e.trace.Frames(c) {
		resp.Add(dbgp.StackFrame(f.QualifiedName, f.Level, f.File, f.Line))
	}
	return resp, nil
}

func (e *Engine) handleContextNames(_ introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	local := dbgp.NewElement("context").Set("name", "Local").Set("id", "1")
	return dbgp.NewResponse(cmd).Add(local), nil
}

func (e *Engine) handleContextGet(c introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	vars := e.trace.Variables(c, depth(cmd))

	resp := dbgp.NewResponse(cmd)
	for _, n := range property.Serialize(vars) {
		resp.Add(dbgp.Property(n))
	}
	return resp, nil
}

// handlePropertyGet resolves a property path. An unreachable path sends no
// response.
func (e *Engine) handlePropertyGet(c introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	name, _ := cmd.Flag("n")
	vars := e.trace.Variables(c, depth(cmd))

	node, err := property.Lookup(vars, name)
	if err != nil {
		return nil, err
	}
	return dbgp.NewResponse(cmd).Add(dbgp.Property(node)), nil
}

// handleContinuation answers step_over and run with the location execution
// stopped at.
func (e *Engine) handleContinuation(c introspect.Context, cmd dbgp.Command) (*dbgp.Element, error) {
	var (
		file string
		line int
	)
	if frames := e.trace.Frames(c); len(frames) > 0 {
		file, line = frames[0].File, frames[0].Line
	}

	resp := dbgp.NewElement("response").
		Set("xmlns", dbgp.Namespace).
		Set("xmlns:xdebug", dbgp.XdebugNamespace).
		Set("command", cmd.Name).
		Set("transaction_id", cmd.TransactionID).
		Set("status", dbgp.StatusBreak).
		Set("reason", dbgp.ReasonOK)
	return resp.Add(dbgp.Message(file, line)), nil
}

// depth returns the -d stack depth, 0 when absent.
func depth(cmd dbgp.Command) int {
	d, err := strconv.Atoi(cmd.FlagOr("d", "0"))
	if err != nil || d < 0 {
		return 0
	}
	return d
}
