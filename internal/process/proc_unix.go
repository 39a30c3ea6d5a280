//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureCommand places the child in its own process group so that
// killing it also stops anything it spawned.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(cmd *exec.Cmd) error {
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}

	return err
}
