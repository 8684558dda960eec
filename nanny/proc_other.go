//go:build !unix

package nanny

import (
	"os"
	"os/exec"
)

func configureCmd(*exec.Cmd) {}

// terminate kills the process; graceful termination signals are unix-only.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return p.Kill()
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	_ = p.Release()

	return true
}
