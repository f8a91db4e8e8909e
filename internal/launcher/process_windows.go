//go:build windows

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup kills the adapter process. Windows has no Unix-style
// process groups, so children started by the adapter are not reached.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
