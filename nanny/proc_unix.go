//go:build unix

package nanny

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureCmd starts the app in its own process group so that signals reach
// any children it spawns.
func configureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(pid int) error { return signalGroup(pid, syscall.SIGTERM) }

func kill(pid int) error { return signalGroup(pid, syscall.SIGKILL) }

// signalGroup signals the process group led by pid, falling back to pid
// alone for processes that were not started as group leaders.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}

	return err
}

// alive reports whether a process with the given pid exists.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := syscall.Kill(pid, 0)

	return err == nil || errors.Is(err, syscall.EPERM)
}
