//go:build !windows

package infra

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so the whole
// tree can be killed on cancellation
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess kills the process group of cmd
func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
