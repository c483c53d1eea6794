//go:build unix

// Package osutil holds platform specific process handling for the external
// commands guidesync runs.
package osutil

import (
	"os/exec"
	"syscall"
)

// Isolate runs cmd in its own process group, so a terminal interrupt only
// reaches guidesync. Cancelling the command's context kills the whole group.
// It must be called before cmd.Start.
func Isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
