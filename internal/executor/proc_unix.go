//go:build !windows

package executor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcess puts the script in its own process group so a timeout
// kills anything it spawned as well
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcess(cmd.Process)
	}
}

// trackProcess is a no-op; the process group already covers children
func trackProcess(*exec.Cmd) (func(), error) {
	return func() {}, nil
}

func killProcess(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
