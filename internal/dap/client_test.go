package dap

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter answers DAP requests on the far end of a pipe.
type fakeAdapter struct {
	conn         net.Conn
	capabilities dap.Capabilities

	mu       sync.Mutex
	commands []string
	pauses   []int
}

func newClientPair(t *testing.T, caps dap.Capabilities) (*Client, *fakeAdapter) {
	t.Helper()
	near, far := net.Pipe()
	a := &fakeAdapter{conn: far, capabilities: caps}
	go a.serve()

	c := NewClient(NewTransport(near), quietLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c, a
}

func (a *fakeAdapter) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.commands...)
}

func (a *fakeAdapter) serve() {
	r := bufio.NewReader(a.conn)
	for {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		a.mu.Lock()
		a.commands = append(a.commands, req.GetRequest().Command)
		a.mu.Unlock()

		for _, out := range a.answer(req) {
			if err := dap.WriteProtocolMessage(a.conn, out); err != nil {
				return
			}
		}
	}
}

func (a *fakeAdapter) answer(req dap.RequestMessage) []dap.Message {
	r := req.GetRequest()
	resp := dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         true,
	}

	switch m := req.(type) {
	case *dap.InitializeRequest:
		initialized := &dap.InitializedEvent{}
		initialized.Type = "event"
		initialized.Event.Event = "initialized"
		return []dap.Message{&dap.InitializeResponse{Response: resp, Body: a.capabilities}, initialized}
	case *dap.LaunchRequest:
		return []dap.Message{&dap.LaunchResponse{Response: resp}}
	case *dap.ConfigurationDoneRequest:
		return []dap.Message{&dap.ConfigurationDoneResponse{Response: resp}}
	case *dap.PauseRequest:
		a.mu.Lock()
		a.pauses = append(a.pauses, m.Arguments.ThreadId)
		a.mu.Unlock()
		ev := stopped(m.Arguments.ThreadId)
		ev.Type = "event"
		ev.Body.Reason = "pause"
		return []dap.Message{&dap.PauseResponse{Response: resp}, ev}
	}

	resp.Success = false
	resp.Message = "unsupported"
	return []dap.Message{&dap.ErrorResponse{Response: resp}}
}

func TestClient_Pause(t *testing.T) {
	c, a := newClientPair(t, dap.Capabilities{})

	require.NoError(t, c.Pause(4))

	select {
	case ev := <-c.Events():
		e, ok := ev.(*dap.StoppedEvent)
		require.True(t, ok)
		assert.Equal(t, "pause", e.Body.Reason)
		assert.Equal(t, 4, e.Body.ThreadId)
	case <-time.After(2 * time.Second):
		t.Fatal("no stopped event after pause")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Equal(t, []int{4}, a.pauses)
}

func TestClient_LaunchFollowsCapabilities(t *testing.T) {
	tests := []struct {
		name string
		caps dap.Capabilities
		done bool
	}{
		{"configurationDone supported", dap.Capabilities{SupportsConfigurationDoneRequest: true}, true},
		{"configurationDone unsupported", dap.Capabilities{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, a := newClientPair(t, tc.caps)

			require.NoError(t, c.Launch(map[string]interface{}{"program": "./cmd/app"}))

			cmds := a.seen()
			assert.Equal(t, "initialize", cmds[0])
			assert.Contains(t, cmds, "launch")
			if tc.done {
				assert.Contains(t, cmds, "configurationDone")
			} else {
				assert.NotContains(t, cmds, "configurationDone")
			}
		})
	}
}
