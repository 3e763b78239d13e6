// Package trace turns a provider's raw call trace into protocol stack frames.
//
// The raw trace of the executing context contains the debugger's own frames
// (the statement hook, the engine, this adapter). The adapter skips them so
// that level 0 is the user's innermost frame. The number of frames to skip is
// structurally constant for a given call path, so it is computed once per
// path name and cached.
package trace

import (
	"regexp"
	"sync"

	"github.com/ctagard/dbgpd/internal/introspect"
	"github.com/ctagard/dbgpd/internal/property"
)

// Call path names used as offset cache keys.
const (
	PathFrames    = "Frames"
	PathVariables = "Variables"
)

// PHPClosure is the function name PHP runtimes give anonymous functions.
const PHPClosure = "{closure}"

// goClosure matches Go anonymous function symbols such as main.main.func1.
var goClosure = regexp.MustCompile(`\.func\d+(\.\d+)*$`)

// Frame is a protocol stack frame.
type Frame struct {
	QualifiedName string
	Level         int
	File          string
	Line          int

	// depth is the frame's index in the unskipped raw trace.
	depth int
}

// Adapter normalizes raw traces. It is safe for concurrent use.
type Adapter struct {
	provider introspect.Provider
	internal map[string]bool

	mu      sync.Mutex
	offsets map[string]int
}

// NewAdapter creates an adapter. internalClasses names the classes whose
// frames belong to the debugger itself.
func NewAdapter(provider introspect.Provider, internalClasses ...string) *Adapter {
	internal := make(map[string]bool, len(internalClasses))
	for _, c := range internalClasses {
		internal[c] = true
	}
	return &Adapter{
		provider: provider,
		internal: internal,
		offsets:  make(map[string]int),
	}
}

// Frames returns the user's stack for c, innermost first.
func (a *Adapter) Frames(c introspect.Context) []Frame {
	return a.frames(c, PathFrames)
}

// Variables returns the variables of protocol stack level depth. Levels
// outside the stack yield an empty map.
func (a *Adapter) Variables(c introspect.Context, depth int) property.Value {
	frames := a.frames(c, PathVariables)
	if depth < 0 || depth >= len(frames) {
		return property.Map()
	}
	return c.DefinedVariables(frames[depth].depth)
}

// Offset returns the cached offset for a call path.
func (a *Adapter) Offset(name string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, ok := a.offsets[name]
	return off, ok
}

func (a *Adapter) frames(c introspect.Context, name string) []Frame {
	if c == nil {
		return nil
	}

	var raw []introspect.RawFrame
	off, ok := a.Offset(name)
	if ok {
		raw = c.RawTrace(off)
	} else {
		full := c.RawTrace(0)
		off = a.computeOffset(c, full)
		a.mu.Lock()
		a.offsets[name] = off
		a.mu.Unlock()
		if off < len(full) {
			raw = full[off:]
		}
	}

	frames := make([]Frame, 0, len(raw))
	for i, f := range raw {
		if IsClosure(f.Function) {
			continue
		}
		frames = append(frames, Frame{
			QualifiedName: f.Class + f.CallType + f.Function,
			Level:         len(frames),
			File:          f.File,
			Line:          f.Line,
			depth:         off + i,
		})
	}
	return frames
}

// computeOffset skips through the deepest debugger frame. On the executing
// context the synchronous hook frame sits right below it and is skipped too.
func (a *Adapter) computeOffset(c introspect.Context, raw []introspect.RawFrame) int {
	deepest := -1
	for i, f := range raw {
		if a.internal[f.Class] {
			deepest = i
		}
	}
	if deepest < 0 {
		return 0
	}

	off := deepest + 1
	if a.isCurrent(c) {
		off++
	}
	return off
}

func (a *Adapter) isCurrent(c introspect.Context) bool {
	if a.provider == nil {
		return false
	}
	cur := a.provider.Current()
	return cur != nil && cur.ID() == c.ID()
}

// IsClosure reports whether function names an anonymous function.
func IsClosure(function string) bool {
	return function == PHPClosure || goClosure.MatchString(function)
}
