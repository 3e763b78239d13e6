// Package session implements the DBGP session engine.
//
// The engine holds two connections to the IDE. The main connection is opened
// on Start and carries launch negotiation; the debug connection is opened the
// first time execution stops and is serviced, synchronously inside the
// statement hook, for as long as the target is paused. step_over and run
// cannot be answered while paused: they are parked in a single deferred slot
// and answered on the next stop.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ctagard/dbgpd/internal/breakpoint"
	"github.com/ctagard/dbgpd/internal/dbgp"
	"github.com/ctagard/dbgpd/internal/errors"
	"github.com/ctagard/dbgpd/internal/introspect"
	"github.com/ctagard/dbgpd/internal/trace"
	"github.com/ctagard/dbgpd/internal/transport"
	"github.com/ctagard/dbgpd/pkg/types"
)

// DefaultLanguage is announced in the init handshake unless overridden.
const DefaultLanguage = "PHP"

// DefaultInternalClasses name the debugger's own frames in raw traces.
var DefaultInternalClasses = []string{"session.Engine", "trace.Adapter"}

// Connection labels.
const (
	ConnMain  = "main"
	ConnDebug = "debug"
)

// Options configures an Engine.
type Options struct {
	// Address is the IDE's host:port.
	Address string
	IDEKey  string

	// Language is the fixed language tag of the handshake.
	Language string

	// AppID identifies this process to the IDE. A random UUID if empty.
	AppID string

	// InternalClasses overrides DefaultInternalClasses.
	InternalClasses []string

	Logger *slog.Logger
}

// Engine is a debugger session. Create one per process with New.
type Engine struct {
	opts     Options
	provider introspect.Provider
	registry *breakpoint.Registry
	trace    *trace.Adapter
	logger   *slog.Logger
	handlers map[string]handler

	hookOnce sync.Once

	// pauseMu is held while a context is stopped at a breakpoint.
	pauseMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	state      types.SessionState
	main       *transport.Conn
	debug      *transport.Conn
	paused     introspect.Context
	singleStep bool
	deferred   *dbgp.Command
	daemon     bool
}

// New creates an engine for the given introspection provider.
func New(provider introspect.Provider, opts Options) *Engine {
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.AppID == "" {
		opts.AppID = uuid.New().String()
	}
	if opts.InternalClasses == nil {
		opts.InternalClasses = DefaultInternalClasses
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		opts:     opts,
		provider: provider,
		registry: breakpoint.NewRegistry(),
		trace:    trace.NewAdapter(provider, opts.InternalClasses...),
		logger:   opts.Logger,
		ctx:      context.Background(),
		state:    types.StateDisconnected,
	}
	e.handlers = e.commandTable()
	return e
}

// Registry returns the engine's breakpoint registry.
func (e *Engine) Registry() *breakpoint.Registry {
	return e.registry
}

// Start opens the main connection, sends the handshake and services IDE
// negotiation. It returns once the IDE asks for the stack, leaving a
// background loop on the main connection, or when the connection fails.
// Cancelling ctx closes both connections.
func (e *Engine) Start(ctx context.Context) error {
	conn, err := transport.Dial(ctx, ConnMain, e.opts.Address)
	if err != nil {
		e.logger.Error("failed to connect to IDE", "address", e.opts.Address, "err", err)
		return err
	}

	e.mu.Lock()
	e.ctx = ctx
	e.main = conn
	e.mu.Unlock()
	context.AfterFunc(ctx, e.Close)

	if err := e.sendInit(conn); err != nil {
		return err
	}
	e.logger.Info("connected to IDE", "address", e.opts.Address, "idekey", e.opts.IDEKey, "appid", e.opts.AppID)

	return e.mainLoop(conn)
}

// mainLoop services the main connection until a stack_get hands it over to
// a background loop, or the connection fails.
func (e *Engine) mainLoop(conn *transport.Conn) error {
	e.setState(types.StateMainLoop)

	for {
		data, err := conn.Receive()
		if err != nil {
			e.terminate(conn, err)
			return err
		}
		if !e.process(conn, data) {
			return nil
		}
	}
}

// OnStatement is the statement hook. It stops in c when single-stepping or
// when c's location is an armed breakpoint.
func (e *Engine) OnStatement(c introspect.Context) {
	e.mu.Lock()
	if e.state == types.StateTerminated {
		e.mu.Unlock()
		return
	}
	step := e.singleStep
	e.singleStep = false
	e.mu.Unlock()

	if step {
		e.debugConnect(c)
		return
	}

	file, line := c.Location()
	if e.registry.Armed(file, line) {
		e.logger.Debug("breakpoint hit", "file", file, "line", line)
		e.debugConnect(c)
	}
}

// debugConnect services the debug connection while c is paused.
func (e *Engine) debugConnect(c introspect.Context) {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()

	conn, err := e.debugConn()
	if err != nil {
		e.logger.Error("failed to open debug connection", "err", err)
		return
	}

	e.mu.Lock()
	e.paused = c
	e.state = types.StateAtBreakpoint
	pending := e.deferred
	e.deferred = nil
	e.mu.Unlock()

	defer e.resume()

	if pending != nil {
		e.dispatch(conn, c, *pending)
	}

	for {
		data, err := conn.Receive()
		if err != nil {
			e.dropDebug(conn, err)
			return
		}
		if !e.process(conn, data) {
			return
		}
	}
}

// debugConn returns the debug connection, dialing it and sending the
// handshake the first time.
func (e *Engine) debugConn() (*transport.Conn, error) {
	e.mu.Lock()
	conn, ctx := e.debug, e.ctx
	e.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	conn, err := transport.Dial(ctx, ConnDebug, e.opts.Address)
	if err != nil {
		return nil, err
	}
	if err := e.sendInit(conn); err != nil {
		conn.Close()
		return nil, err
	}

	e.mu.Lock()
	e.debug = conn
	e.mu.Unlock()
	return conn, nil
}

func (e *Engine) resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = nil
	if e.state == types.StateAtBreakpoint {
		e.state = types.StateMainLoop
	}
}

// process dispatches every command of one read. It returns false when the
// loop reading conn must stop: the main connection was handed to a
// background loop, or a continuation command was deferred.
func (e *Engine) process(conn *transport.Conn, data []byte) bool {
	isMain := conn.Name() == ConnMain
	release := false

	for _, cmd := range dbgp.Decode(data) {
		e.logger.Debug("command received", "conn", conn.Name(), "command", cmd.Name, "transaction_id", cmd.TransactionID)

		if isMain && cmd.Name == "stack_get" {
			if e.spawnDaemon(conn) {
				return false
			}
			continue
		}

		if !isMain && isContinuation(cmd.Name) {
			e.enqueue(cmd)
			release = true
			continue
		}

		e.dispatch(conn, e.contextFor(conn), cmd)
	}
	return !release
}

// spawnDaemon hands the main connection to a background loop the first
// time the IDE asks for the stack on it. It reports whether it did.
func (e *Engine) spawnDaemon(conn *transport.Conn) bool {
	e.mu.Lock()
	if e.daemon {
		e.mu.Unlock()
		return false
	}
	e.daemon = true
	e.mu.Unlock()

	e.logger.Debug("negotiation finished, continuing main loop in background")
	go e.mainLoop(conn)
	return true
}

// enqueue parks a continuation command until the next stop. Only the last
// one survives; step_over also arms single-stepping.
func (e *Engine) enqueue(cmd dbgp.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deferred != nil {
		e.logger.Debug("replacing deferred command", "command", e.deferred.Name, "transaction_id", e.deferred.TransactionID)
	}
	e.deferred = &cmd
	if cmd.Name == "step_over" {
		e.singleStep = true
	}
}

func isContinuation(name string) bool {
	return name == "step_over" || name == "run"
}

// dispatch runs cmd's handler in c and sends its response, if any. Unknown
// commands are ignored.
func (e *Engine) dispatch(conn *transport.Conn, c introspect.Context, cmd dbgp.Command) {
	h, ok := e.handlers[cmd.Name]
	if !ok {
		e.logger.Debug("ignoring unsupported command", "command", cmd.Name, "transaction_id", cmd.TransactionID)
		return
	}

	resp, err := h(c, cmd)
	if err != nil {
		e.logger.Debug("command produced no response", "command", cmd.Name, "transaction_id", cmd.TransactionID, "err", err)
	}
	if resp == nil {
		return
	}

	msg, err := dbgp.Encode(resp)
	if err != nil {
		e.logger.Error("failed to encode response", "command", cmd.Name, "err", err)
		return
	}
	if err := conn.Send(msg); err != nil {
		e.logger.Error("failed to send response", "conn", conn.Name(), "command", cmd.Name, "err", err)
	}
}

// contextFor returns the context commands on conn inspect: the paused one on
// the debug connection, the executing one otherwise.
func (e *Engine) contextFor(conn *transport.Conn) introspect.Context {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()

	if conn.Name() == ConnDebug && paused != nil {
		return paused
	}
	return e.provider.Current()
}

func (e *Engine) sendInit(conn *transport.Conn) error {
	msg, err := dbgp.Encode(dbgp.Init(e.opts.AppID, e.opts.IDEKey, e.opts.Language))
	if err != nil {
		return err
	}
	return conn.Send(msg)
}

// armHook registers the statement hook with the provider once.
func (e *Engine) armHook() {
	e.hookOnce.Do(func() {
		e.provider.OnEveryStatement(e.OnStatement)
	})
}

// SetBreakpoint arms file:line and returns the breakpoint id.
func (e *Engine) SetBreakpoint(file string, line int) int {
	e.armHook()
	id := e.registry.Set(file, line)
	e.logger.Debug("breakpoint set", "breakpoint_id", id, "file", file, "line", line)
	return id
}

// Breakpoints lists the live breakpoints.
func (e *Engine) Breakpoints() []types.BreakpointInfo {
	return e.registry.List()
}

// RemoveBreakpoint disarms a breakpoint. Unknown ids are ignored.
func (e *Engine) RemoveBreakpoint(id int) {
	e.registry.Remove(id)
	e.logger.Debug("breakpoint removed", "breakpoint_id", id)
}

// dropDebug forgets a failed debug connection; the next stop dials again.
func (e *Engine) dropDebug(conn *transport.Conn, err error) {
	if errors.IsCode(err, errors.CodeConnectionClosed) {
		e.logger.Info("debug connection closed by IDE")
	} else {
		e.logger.Error("debug connection failed", "err", err)
	}
	conn.Close()

	e.mu.Lock()
	if e.debug == conn {
		e.debug = nil
	}
	e.mu.Unlock()
}

// terminate ends the session after the main connection failed.
func (e *Engine) terminate(conn *transport.Conn, err error) {
	if errors.IsCode(err, errors.CodeConnectionClosed) {
		e.logger.Info("main connection closed by IDE, session terminated")
	} else {
		e.logger.Error("main connection failed, session terminated", "err", err)
	}
	conn.Close()
	e.setState(types.StateTerminated)
}

// Close closes both connections and terminates the session.
func (e *Engine) Close() {
	e.mu.Lock()
	main, debug := e.main, e.debug
	e.state = types.StateTerminated
	e.mu.Unlock()

	if main != nil {
		main.Close()
	}
	if debug != nil {
		debug.Close()
	}
}

func (e *Engine) setState(s types.SessionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == types.StateTerminated {
		return
	}
	e.state = s
}

// Deferred returns the parked continuation command.
func (e *Engine) Deferred() (dbgp.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deferred == nil {
		return dbgp.Command{}, false
	}
	return *e.deferred, true
}

// SingleStep reports whether the next statement stops unconditionally.
func (e *Engine) SingleStep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.singleStep
}

// State returns the engine state.
func (e *Engine) State() types.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Info returns a snapshot of the session.
func (e *Engine) Info() types.SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := types.SessionInfo{
		AppID:          e.opts.AppID,
		IDEKey:         e.opts.IDEKey,
		Address:        e.opts.Address,
		State:          e.state,
		Daemon:         e.daemon,
		SingleStep:     e.singleStep,
		MainConnected:  e.main != nil && e.state != types.StateTerminated,
		DebugConnected: e.debug != nil,
		Breakpoints:    e.registry.Len(),
	}
	if e.deferred != nil {
		info.DeferredCommand = e.deferred.String()
	}
	return info
}
