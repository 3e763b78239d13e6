package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbgpd/internal/breakpoint"
	"github.com/ctagard/dbgpd/pkg/types"
)

type fakeEngine struct {
	registry *breakpoint.Registry
	info     types.SessionInfo
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		registry: breakpoint.NewRegistry(),
		info:     types.SessionInfo{AppID: "app", IDEKey: "key", State: types.StateMainLoop, MainConnected: true},
	}
}

func (f *fakeEngine) Info() types.SessionInfo                 { return f.info }
func (f *fakeEngine) Breakpoints() []types.BreakpointInfo     { return f.registry.List() }
func (f *fakeEngine) SetBreakpoint(file string, line int) int { return f.registry.Set(file, line) }
func (f *fakeEngine) RemoveBreakpoint(id int)                 { f.registry.Remove(id) }

func newTestServer() (*Server, *fakeEngine) {
	engine := newFakeEngine()
	return NewServer(engine, slog.New(slog.NewTextHandler(io.Discard, nil))), engine
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleStatus(context.Background(), callRequest("dbgp_status", nil))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, "main_loop", out["state"])
	assert.Equal(t, "key", out["ideKey"])
	assert.Equal(t, true, out["mainConnected"])
}

func TestBreakpointTools(t *testing.T) {
	s, engine := newTestServer()
	ctx := context.Background()

	result, err := s.handleSetBreakpoint(ctx, callRequest("dbgp_set_breakpoint", map[string]interface{}{
		"file": "file:///src/cart.go",
		"line": float64(21),
	}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, float64(0), out["id"])
	assert.True(t, engine.registry.Armed("/src/cart.go", 21))

	_, err = s.handleSetBreakpoint(ctx, callRequest("dbgp_set_breakpoint", map[string]interface{}{
		"file": "/src/main.go",
		"line": float64(9),
	}))
	require.NoError(t, err)

	result, err = s.handleListBreakpoints(ctx, callRequest("dbgp_list_breakpoints", nil))
	require.NoError(t, err)
	out = decode(t, result)
	assert.Equal(t, float64(2), out["count"])

	result, err = s.handleRemoveBreakpoint(ctx, callRequest("dbgp_remove_breakpoint", map[string]interface{}{"id": float64(0)}))
	require.NoError(t, err)
	out = decode(t, result)
	assert.Equal(t, true, out["removed"])
	assert.False(t, engine.registry.Armed("/src/cart.go", 21))
	assert.True(t, engine.registry.Armed("/src/main.go", 9), "other ids stay valid")

	result, err = s.handleRemoveBreakpoint(ctx, callRequest("dbgp_remove_breakpoint", map[string]interface{}{"id": float64(0)}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "removed ids are gone")
}

func TestSetBreakpoint_InvalidArguments(t *testing.T) {
	s, engine := newTestServer()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing file", map[string]interface{}{"line": float64(3)}},
		{"missing line", map[string]interface{}{"file": "/src/a.go"}},
		{"zero line", map[string]interface{}{"file": "/src/a.go", "line": float64(0)}},
		{"fractional line", map[string]interface{}{"file": "/src/a.go", "line": 2.5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleSetBreakpoint(context.Background(), callRequest("dbgp_set_breakpoint", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), "invalid breakpoint location")
		})
	}
	assert.Zero(t, engine.registry.Len())
}

func TestRegisteredTools(t *testing.T) {
	s, _ := newTestServer()

	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{"dbgp_status", "dbgp_list_breakpoints", "dbgp_set_breakpoint", "dbgp_remove_breakpoint"} {
		assert.Contains(t, string(raw), `"name":"`+name+`"`)
	}
}
