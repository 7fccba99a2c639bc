//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts cmd in its own process group so a timeout or
// cleanup reaches every process the program spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
}

// killProcessGroup kills the group led by cmd's process. It is a no-op
// once nothing in the group is left.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
