package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/ctagard/dbgpd/internal/config"
	"github.com/ctagard/dbgpd/internal/errors"
	"github.com/ctagard/dbgpd/internal/launchconfig"
)

// DelveAdapter implements the Adapter interface for Go/Delve
type DelveAdapter struct {
	dlvPath    string
	buildFlags string
}

// NewDelveAdapter creates a new Delve adapter
func NewDelveAdapter(cfg config.AdapterConfig) *DelveAdapter {
	dlvPath := cfg.Path
	if dlvPath == "" {
		dlvPath = "dlv"
	}

	return &DelveAdapter{
		dlvPath:    dlvPath,
		buildFlags: cfg.BuildFlags,
	}
}

// Command returns the dlv invocation serving DAP on address.
func (d *DelveAdapter) Command(ctx context.Context, address string) *exec.Cmd {
	dlvArgs := []string{"dap", "--listen", address}
	if d.buildFlags != "" {
		dlvArgs = append(dlvArgs, "--build-flags", d.buildFlags)
	}
	return exec.CommandContext(ctx, d.dlvPath, dlvArgs...)
}

// Spawn starts a Delve debug adapter process
func (d *DelveAdapter) Spawn(ctx context.Context, cwd string) (string, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return "", nil, errors.AdapterSpawnFailed(d.dlvPath, fmt.Errorf("failed to find available port: %w", err))
	}

	address := fmt.Sprintf("127.0.0.1:%d", port)

	cmd := d.Command(ctx, address)
	cmd.Env = os.Environ()
	// stdout carries the MCP protocol when it is served, keep it clean.
	cmd.Stdin = nil
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.Dir = cwd
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return "", nil, errors.AdapterSpawnFailed(d.dlvPath, err)
	}

	return address, cmd, nil
}

// BuildLaunchArgs builds the launch arguments for Delve. The debuggee stops
// on entry so no statement runs before the statement hook can be installed.
func (d *DelveAdapter) BuildLaunchArgs(cfg *launchconfig.DebugConfiguration) map[string]interface{} {
	args := cfg.ToLaunchArgs()
	args["stopOnEntry"] = true
	if _, ok := args["buildFlags"]; !ok && d.buildFlags != "" {
		args["buildFlags"] = d.buildFlags
	}
	return args
}
