package dap

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/dbgpd/internal/introspect"
	"github.com/ctagard/dbgpd/internal/property"
)

// Session is the subset of Client the provider drives.
type Session interface {
	Events() <-chan dap.EventMessage
	StackTrace(threadID, startFrame, levels int) ([]dap.StackFrame, error)
	Scopes(frameID int) ([]dap.Scope, error)
	Variables(variablesRef int) ([]dap.Variable, error)
	Continue(threadID int) error
	StepIn(threadID int) error
	Pause(threadID int) error
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	// MaxDepth limits how deep container variables are expanded.
	MaxDepth int

	Logger *slog.Logger
}

// Provider implements introspect.Provider for a debuggee driven over DAP.
// Each stop of the debuggee is one statement: the hook runs on the goroutine
// calling Run, and the debuggee stays stopped until it returns. While a hook
// is registered the debuggee is stepped statement by statement; otherwise it
// runs freely. Registering a hook while it runs freely pauses it.
type Provider struct {
	session  Session
	maxDepth int
	logger   *slog.Logger

	mu      sync.Mutex
	hook    introspect.Hook
	current *threadContext

	// running is set while the debuggee was continued without a hook;
	// thread is the thread of the last stop.
	running bool
	thread  int
}

// NewProvider creates a provider over session.
func NewProvider(session Session, opts ProviderOptions) *Provider {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Provider{
		session:  session,
		maxDepth: opts.MaxDepth,
		logger:   opts.Logger,
	}
}

// Current implements introspect.Provider.
func (p *Provider) Current() introspect.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

// OnEveryStatement implements introspect.Provider. A debuggee that is
// running freely is paused so stepping resumes with the next stop.
func (p *Provider) OnEveryStatement(hook introspect.Hook) {
	p.mu.Lock()
	p.hook = hook
	pause := hook != nil && p.running
	p.running = false
	thread := p.thread
	p.mu.Unlock()

	if !pause {
		return
	}
	if err := p.session.Pause(thread); err != nil {
		p.logger.Error("failed to pause debuggee", "thread", thread, "err", err)
		return
	}
	p.logger.Debug("paused debuggee for stepping", "thread", thread)
}

// Run handles debuggee events until it terminates or ctx is cancelled.
func (p *Provider) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.session.Events():
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case *dap.StoppedEvent:
				if err := p.onStopped(e); err != nil {
					return err
				}
			case *dap.ExitedEvent:
				p.logger.Info("debuggee exited", "exit_code", e.Body.ExitCode)
			case *dap.TerminatedEvent:
				p.logger.Info("debuggee terminated")
				return nil
			}
		}
	}
}

func (p *Provider) onStopped(e *dap.StoppedEvent) error {
	thread := e.Body.ThreadId
	c := newThreadContext(p, thread)

	p.logger.Debug("debuggee stopped", "reason", e.Body.Reason, "thread", thread)

	p.mu.Lock()
	p.current = c
	p.thread = thread
	p.running = false
	hook := p.hook
	if hook == nil {
		// Held across the request so a hook registered meanwhile sees
		// running and pauses.
		err := p.session.Continue(thread)
		p.running = err == nil
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	hook(c)

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return p.session.StepIn(thread)
}

// threadContext is one stop of a debuggee thread. The stack is fetched once
// per stop.
type threadContext struct {
	p      *Provider
	thread int

	once   sync.Once
	frames []dap.StackFrame
	err    error
}

func newThreadContext(p *Provider, thread int) *threadContext {
	return &threadContext{p: p, thread: thread}
}

func (c *threadContext) stack() []dap.StackFrame {
	c.once.Do(func() {
		c.frames, c.err = c.p.session.StackTrace(c.thread, 0, 0)
		if c.err != nil {
			c.p.logger.Error("failed to fetch stack trace", "thread", c.thread, "err", c.err)
		}
	})
	return c.frames
}

// ID implements introspect.Context.
func (c *threadContext) ID() uint64 {
	return uint64(c.thread)
}

// Location implements introspect.Context.
func (c *threadContext) Location() (string, int) {
	frames := c.stack()
	if len(frames) == 0 {
		return "", 0
	}
	return sourcePath(frames[0]), frames[0].Line
}

// RawTrace implements introspect.Context.
func (c *threadContext) RawTrace(fromDepth int) []introspect.RawFrame {
	frames := c.stack()
	if fromDepth >= len(frames) {
		return nil
	}

	raw := make([]introspect.RawFrame, 0, len(frames)-fromDepth)
	for _, f := range frames[fromDepth:] {
		class, callType, function := SplitFunction(f.Name)
		raw = append(raw, introspect.RawFrame{
			Class:    class,
			CallType: callType,
			Function: function,
			File:     sourcePath(f),
			Line:     f.Line,
		})
	}
	return raw
}

// DefinedVariables implements introspect.Context. Locals and arguments of
// the frame are merged into one map.
func (c *threadContext) DefinedVariables(fromDepth int) property.Value {
	frames := c.stack()
	if fromDepth < 0 || fromDepth >= len(frames) {
		return property.Map()
	}

	scopes, err := c.p.session.Scopes(frames[fromDepth].Id)
	if err != nil {
		c.p.logger.Error("failed to fetch scopes", "frame", frames[fromDepth].Id, "err", err)
		return property.Map()
	}

	conv := converter{session: c.p.session, logger: c.p.logger, maxDepth: c.p.maxDepth}
	var members []property.Member
	for _, s := range scopes {
		if s.Expensive || s.VariablesReference == 0 {
			continue
		}
		vars, err := c.p.session.Variables(s.VariablesReference)
		if err != nil {
			c.p.logger.Error("failed to fetch variables", "scope", s.Name, "err", err)
			continue
		}
		for _, v := range vars {
			members = append(members, property.Entry(v.Name, conv.value(v, c.p.maxDepth)))
		}
	}
	return property.Map(members...)
}

func sourcePath(f dap.StackFrame) string {
	if f.Source == nil {
		return ""
	}
	return f.Source.Path
}

// SplitFunction splits a Go symbol such as main.(*Cart).Total into its
// receiver and method. Plain functions have no receiver.
func SplitFunction(name string) (class, callType, function string) {
	if i := strings.LastIndex(name, ")."); i >= 0 {
		return name[:i+1], ".", name[i+2:]
	}
	return "", "", name
}
