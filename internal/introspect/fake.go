package introspect

import (
	"sync"

	"github.com/ctagard/dbgpd/internal/property"
)

// FakeContext is a scripted Context for tests.
type FakeContext struct {
	mu     sync.Mutex
	id     uint64
	file   string
	line   int
	frames []RawFrame
	vars   map[int]property.Value
}

// NewFakeContext creates a context positioned at file:line.
func NewFakeContext(id uint64, file string, line int) *FakeContext {
	return &FakeContext{id: id, file: file, line: line, vars: make(map[int]property.Value)}
}

// ID implements Context.
func (c *FakeContext) ID() uint64 { return c.id }

// Location implements Context.
func (c *FakeContext) Location() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file, c.line
}

// MoveTo repositions the context.
func (c *FakeContext) MoveTo(file string, line int) {
	c.mu.Lock()
	c.file, c.line = file, line
	c.mu.Unlock()
}

// SetTrace replaces the raw trace, innermost frame first.
func (c *FakeContext) SetTrace(frames ...RawFrame) {
	c.mu.Lock()
	c.frames = append([]RawFrame(nil), frames...)
	c.mu.Unlock()
}

// SetVariables sets the variables of the frame at raw depth.
func (c *FakeContext) SetVariables(depth int, vars property.Value) {
	c.mu.Lock()
	c.vars[depth] = vars
	c.mu.Unlock()
}

// RawTrace implements Context.
func (c *FakeContext) RawTrace(fromDepth int) []RawFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fromDepth >= len(c.frames) {
		return nil
	}
	return append([]RawFrame(nil), c.frames[fromDepth:]...)
}

// DefinedVariables implements Context.
func (c *FakeContext) DefinedVariables(fromDepth int) property.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.vars[fromDepth]; ok {
		return v
	}
	return property.Map()
}

// Fake is a Provider whose statements are stepped by hand.
type Fake struct {
	mu      sync.Mutex
	current Context
	hook    Hook
	hooks   int
}

// NewFake creates a provider whose current context is c.
func NewFake(c Context) *Fake {
	return &Fake{current: c}
}

// Current implements Provider.
func (f *Fake) Current() Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// SetCurrent changes the executing context.
func (f *Fake) SetCurrent(c Context) {
	f.mu.Lock()
	f.current = c
	f.mu.Unlock()
}

// OnEveryStatement implements Provider.
func (f *Fake) OnEveryStatement(hook Hook) {
	f.mu.Lock()
	f.hook = hook
	f.hooks++
	f.mu.Unlock()
}

// Registrations returns how many times a hook was registered.
func (f *Fake) Registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks
}

// Step simulates reaching a statement in the current context. It returns
// false when no hook is registered.
func (f *Fake) Step() bool {
	f.mu.Lock()
	hook, c := f.hook, f.current
	f.mu.Unlock()

	if hook == nil {
		return false
	}
	hook(c)
	return true
}
