//go:build windows

package process

import (
	"fmt"
	"os/exec"
)

func configureCommand(*exec.Cmd) {}

// killTree uses taskkill so that children of the process are terminated
// along with it.
func killTree(cmd *exec.Cmd) error {
	out, err := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", cmd.Process.Pid)).CombinedOutput()
	if err != nil {
		if killErr := cmd.Process.Kill(); killErr == nil {
			return nil
		}
		return fmt.Errorf("%w: %s", err, out)
	}

	return nil
}
