//go:build unix

package jobmanager

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the driver in its own process group so that Stop
// also reaches the compilers it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}

	cmd.SysProcAttr.Setpgid = true
}

func killProcess(p *os.Process) error {
	// Negative pid signals the whole process group.
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}

	return err
}
