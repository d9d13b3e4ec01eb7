//go:build unix

package tools

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the child in its own group and makes cancellation
// kill the group, so grandchildren spawned by a shell die with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
