//go:build !unix

package jobmanager

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
