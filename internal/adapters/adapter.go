// Package adapters spawns the Delve debug adapter that runs the debug target
// and connects a DAP client to it.
package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"time"

	"github.com/ctagard/dbgpd/internal/dap"
	"github.com/ctagard/dbgpd/internal/errors"
	"github.com/ctagard/dbgpd/internal/launchconfig"
)

// DefaultConnectRetries is how often Connect dials before giving up.
const DefaultConnectRetries = 20

const retryDelay = 200 * time.Millisecond

// Adapter defines the interface for a debug adapter that can be spawned
type Adapter interface {
	// Spawn starts a debug adapter process and returns the address to connect to
	Spawn(ctx context.Context, cwd string) (address string, cmd *exec.Cmd, err error)

	// BuildLaunchArgs builds the launch arguments for the debug adapter
	BuildLaunchArgs(cfg *launchconfig.DebugConfiguration) map[string]interface{}
}

// Target is a running debug adapter together with the client connected to it.
type Target struct {
	Client *dap.Client

	cmd    *exec.Cmd
	logger *slog.Logger
}

// PID returns the adapter's process id, or 0 when it was not spawned here.
func (t *Target) PID() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Close disconnects from the adapter, terminating the debuggee, and kills
// the adapter's process group.
func (t *Target) Close() error {
	if err := t.Client.Disconnect(true); err != nil {
		t.logger.Warn("failed to disconnect debug adapter (continuing cleanup)", "err", err)
	}
	if err := t.Client.Close(); err != nil {
		t.logger.Warn("failed to close debug adapter client (continuing cleanup)", "err", err)
	}
	if err := killProcessGroup(t.cmd); err != nil {
		return fmt.Errorf("failed to kill debug adapter (pid %d): %w", t.PID(), err)
	}
	return nil
}

// Connect creates a DAP client connected to the given address via TCP,
// retrying while the adapter starts listening.
func Connect(ctx context.Context, address string, maxRetries int, logger *slog.Logger) (*dap.Client, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultConnectRetries
	}

	var transport *dap.Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = dap.NewTCPTransport(address)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.AdapterConnectFailed(address, ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	if err != nil {
		return nil, errors.AdapterConnectFailed(address, err)
	}

	return dap.NewClient(transport, logger), nil
}

// SpawnAndConnect spawns an adapter and returns it with a connected client.
func SpawnAndConnect(ctx context.Context, adapter Adapter, cwd string, maxRetries int, logger *slog.Logger) (*Target, error) {
	if logger == nil {
		logger = slog.Default()
	}

	address, cmd, err := adapter.Spawn(ctx, cwd)
	if err != nil {
		return nil, err
	}

	client, err := Connect(ctx, address, maxRetries, logger)
	if err != nil {
		// Best-effort cleanup
		_ = killProcessGroup(cmd)
		return nil, err
	}

	logger.Debug("connected to debug adapter", "address", address, "pid", cmd.Process.Pid)
	return &Target{Client: client, cmd: cmd, logger: logger}, nil
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}
