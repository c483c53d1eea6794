//go:build windows

// Package osutil holds platform specific process handling for the external
// commands guidesync runs.
package osutil

import (
	"os"
	"os/exec"
	"syscall"
)

// Isolate runs cmd in a new process group. Cancelling the command's context
// kills the process; Windows has no group kill.
func Isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Kill)
	}
}
