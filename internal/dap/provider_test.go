package dap

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbgpd/internal/introspect"
	"github.com/ctagard/dbgpd/internal/property"
)

// fakeSession is a scripted debug adapter.
type fakeSession struct {
	events chan dap.EventMessage
	frames []dap.StackFrame
	scopes []dap.Scope
	vars   map[int][]dap.Variable

	mu      sync.Mutex
	actions []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan dap.EventMessage, 8),
		frames: []dap.StackFrame{
			{Id: 1000, Name: "main.(*Cart).Total", Line: 21, Source: &dap.Source{Path: "/src/cart.go"}},
			{Id: 1001, Name: "main.main.func1", Line: 9, Source: &dap.Source{Path: "/src/main.go"}},
			{Id: 1002, Name: "main.main", Line: 12, Source: &dap.Source{Path: "/src/main.go"}},
		},
		scopes: []dap.Scope{
			{Name: "Locals", VariablesReference: 1},
			{Name: "Registers", VariablesReference: 2, Expensive: true},
		},
		vars: map[int][]dap.Variable{
			1: {
				{Name: "total", Type: "int", Value: "42"},
				{Name: "label", Type: "string", Value: `"sum"`},
				{Name: "c", Type: "*main.Cart", Value: "*{items: []int len: 2}", VariablesReference: 10},
			},
			10: {
				{Name: "", Type: "main.Cart", Value: "{...}", VariablesReference: 11},
			},
			11: {
				{Name: "Items", Type: "[]int", Value: "[]int len: 2", VariablesReference: 12, IndexedVariables: 2},
				{Name: "owner", Type: "string", Value: `"me"`},
			},
			12: {
				{Name: "[0]", Type: "int", Value: "1"},
				{Name: "[1]", Type: "int", Value: "2"},
			},
			20: {
				{Name: "", Type: "int", Value: "5"},
			},
		},
	}
}

func (s *fakeSession) record(a string) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	s.mu.Unlock()
}

func (s *fakeSession) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

func (s *fakeSession) Events() <-chan dap.EventMessage { return s.events }

func (s *fakeSession) StackTrace(threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	s.record("stackTrace")
	return s.frames, nil
}

func (s *fakeSession) Scopes(frameID int) ([]dap.Scope, error) { return s.scopes, nil }

func (s *fakeSession) Variables(ref int) ([]dap.Variable, error) {
	if ref == 2 {
		panic("expensive scopes are not fetched")
	}
	return s.vars[ref], nil
}

func (s *fakeSession) Continue(threadID int) error {
	s.record("continue")
	return nil
}

func (s *fakeSession) StepIn(threadID int) error {
	s.record("stepIn")
	return nil
}

// Pause stops the running debuggee the way Delve does: the response is
// followed by a stopped event.
func (s *fakeSession) Pause(threadID int) error {
	s.record("pause")
	e := stopped(threadID)
	e.Body.Reason = "pause"
	s.events <- e
	return nil
}

func stopped(thread int) *dap.StoppedEvent {
	e := &dap.StoppedEvent{}
	e.Event.Event = "stopped"
	e.Body.Reason = "step"
	e.Body.ThreadId = thread
	return e
}

func terminated() *dap.TerminatedEvent {
	e := &dap.TerminatedEvent{}
	e.Event.Event = "terminated"
	return e
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runProvider(t *testing.T, p *Provider) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("provider did not finish")
	}
}

func TestProvider_ContinuesWithoutHook(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})

	s.events <- stopped(1)
	s.events <- terminated()
	runProvider(t, p)

	assert.Equal(t, []string{"continue"}, s.recorded())
}

func TestProvider_StepsWhileHooked(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})

	var seen []string
	p.OnEveryStatement(func(c introspect.Context) {
		assert.Same(t, c, p.Current(), "the stopped context is current during the hook")
		file, line := c.Location()
		seen = append(seen, file+":"+strconv.Itoa(line))
	})

	s.events <- stopped(1)
	s.events <- stopped(1)
	s.events <- terminated()
	runProvider(t, p)

	assert.Equal(t, []string{"/src/cart.go:21", "/src/cart.go:21"}, seen)
	assert.Equal(t, []string{"stackTrace", "stepIn", "stackTrace", "stepIn"}, s.recorded(), "one stack fetch per stop")
	assert.Nil(t, p.Current())
}

func TestProvider_HookRegisteredWhileRunning(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	s.events <- stopped(3)
	require.Eventually(t, func() bool {
		return len(s.recorded()) == 1
	}, time.Second, 5*time.Millisecond, "entry stop is continued")

	hooked := make(chan uint64, 1)
	p.OnEveryStatement(func(c introspect.Context) {
		c.Location()
		hooked <- c.ID()
	})

	select {
	case id := <-hooked:
		assert.Equal(t, uint64(3), id)
	case <-time.After(2 * time.Second):
		t.Fatal("hook never ran")
	}

	s.events <- terminated()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"continue", "pause", "stackTrace", "stepIn"}, s.recorded())
}

func TestProvider_HookRegisteredWhileStopped(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})

	p.OnEveryStatement(func(introspect.Context) {})
	p.OnEveryStatement(func(introspect.Context) {})

	assert.Empty(t, s.recorded(), "nothing to pause before the debuggee runs")
}

func TestProvider_ClosedEventsEndRun(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})
	close(s.events)
	runProvider(t, p)
}

func TestThreadContext_RawTrace(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})
	c := newThreadContext(p, 7)

	assert.Equal(t, uint64(7), c.ID())

	raw := c.RawTrace(0)
	require.Len(t, raw, 3)
	assert.Equal(t, introspect.RawFrame{Class: "main.(*Cart)", CallType: ".", Function: "Total", File: "/src/cart.go", Line: 21}, raw[0])
	assert.Equal(t, "main.main.func1", raw[1].Function)

	assert.Len(t, c.RawTrace(2), 1)
	assert.Nil(t, c.RawTrace(3))
}

func TestThreadContext_DefinedVariables(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{MaxDepth: 3, Logger: quietLogger()})
	c := newThreadContext(p, 1)

	vars := c.DefinedVariables(0)
	require.Equal(t, property.KindMap, vars.Kind)

	total, ok := vars.Child("total")
	require.True(t, ok)
	assert.Equal(t, property.Int(42), total)

	label, _ := vars.Child("label")
	assert.Equal(t, "sum", label.Text)

	cart, ok := vars.Child("c")
	require.True(t, ok)
	assert.Equal(t, property.KindObject, cart.Kind)
	assert.Equal(t, "main.Cart", cart.Class)
	assert.Equal(t, 1, cart.Len(), "unexported fields are hidden")

	items, ok := cart.Child("Items")
	require.True(t, ok)
	assert.Equal(t, property.Sequence(property.Int(1), property.Int(2)), items)

	assert.Zero(t, c.DefinedVariables(5).Len())
}

func TestThreadContext_DefaultDepthDefersContainers(t *testing.T) {
	s := newFakeSession()
	p := NewProvider(s, ProviderOptions{Logger: quietLogger()})
	vars := newThreadContext(p, 1).DefinedVariables(0)

	cart, ok := vars.Child("c")
	require.True(t, ok)
	items, ok := cart.Child("Items")
	require.True(t, ok)
	assert.Equal(t, property.KindSequence, items.Kind)
	assert.Equal(t, 2, items.Len())

	n, err := property.Lookup(vars, "$c")
	require.NoError(t, err)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "Items", n.Children[0].Name)
	assert.Equal(t, 2, n.Children[0].NumChildren)

	n, err = property.Lookup(vars, "$c->Items")
	require.NoError(t, err)
	assert.Equal(t, 2, n.NumChildren)
	require.Len(t, n.Children, 2)
	assert.Equal(t, "1", n.Children[0].Value)
	assert.Equal(t, "c->Items['1']", n.Children[1].FullName)
	assert.Equal(t, "2", n.Children[1].Value)
}

func TestConverter_DepthLimit(t *testing.T) {
	s := newFakeSession()
	conv := converter{session: s, logger: quietLogger()}

	v := conv.value(dap.Variable{Name: "c", Type: "*main.Cart", VariablesReference: 10}, 0)
	assert.Equal(t, property.KindObject, v.Kind)
	assert.Equal(t, "main.Cart", v.Class)
	assert.Equal(t, 1, v.Len(), "exported fields are counted past the limit")
	require.NotNil(t, v.Load)

	items, ok := v.Child("Items")
	require.True(t, ok)
	assert.Equal(t, 2, items.Len())
	assert.Equal(t, property.Sequence(property.Int(1), property.Int(2)), items.Expanded())

	ptr := conv.value(dap.Variable{Name: "n", Type: "*int", VariablesReference: 20}, 0)
	assert.Equal(t, property.Int(5), ptr, "pointers to scalars resolve to the scalar")
}

func TestConverter_Scalars(t *testing.T) {
	conv := converter{session: newFakeSession(), logger: quietLogger()}

	tests := []struct {
		name string
		v    dap.Variable
		want property.Value
	}{
		{"bool", dap.Variable{Type: "bool", Value: "true"}, property.Bool(true)},
		{"int", dap.Variable{Type: "int64", Value: "-3"}, property.Int(-3)},
		{"uint", dap.Variable{Type: "uint64", Value: "18446744073709551615"}, property.Uint(18446744073709551615)},
		{"small uint", dap.Variable{Type: "uint8", Value: "200"}, property.Int(200)},
		{"rune", dap.Variable{Type: "int32", Value: "97 'a'"}, property.Int(97)},
		{"float", dap.Variable{Type: "float64", Value: "2.5"}, property.Float(2.5)},
		{"string", dap.Variable{Type: "string", Value: `"a\"b"`}, property.String(`a"b`)},
		{"nil pointer", dap.Variable{Type: "*main.Cart", Value: "nil"}, property.Null()},
		{"nil error", dap.Variable{Type: "error", Value: "error nil"}, property.Null()},
		{"opaque", dap.Variable{Type: "chan int", Value: "chan int 0/0"}, property.String("chan int 0/0")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, conv.value(tc.v, 2))
		})
	}

	n := property.Serialize(property.Map(property.Entry("max", conv.value(dap.Variable{Type: "uint64", Value: "18446744073709551615"}, 2))))
	require.Len(t, n, 1)
	assert.Equal(t, "18446744073709551615", n[0].Value)
}

func TestMemberName(t *testing.T) {
	assert.Equal(t, "0", memberName("[0]"))
	assert.Equal(t, "key", memberName(`["key"]`))
	assert.Equal(t, "key", memberName(`"key"`))
	assert.Equal(t, "Field", memberName("Field"))
}

func TestSplitFunction(t *testing.T) {
	class, callType, fn := SplitFunction("main.(*Cart).Total")
	assert.Equal(t, "main.(*Cart)", class)
	assert.Equal(t, ".", callType)
	assert.Equal(t, "Total", fn)

	class, callType, fn = SplitFunction("main.main")
	assert.Empty(t, class)
	assert.Empty(t, callType)
	assert.Equal(t, "main.main", fn)
}
