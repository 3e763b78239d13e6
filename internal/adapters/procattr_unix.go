//go:build !windows

package adapters

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr makes the adapter a session leader so the whole process tree,
// Delve and the debuggee it builds, can be killed together.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// killProcessGroup kills a process and its entire process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if pid := cmd.Process.Pid; pid > 0 {
		// ESRCH means the group is already gone
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return err
		}
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
