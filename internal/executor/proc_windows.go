//go:build windows

package executor

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/windows"
)

const createNoWindow = 0x08000000

// jobs maps a script pid to the job object holding it and its children
var jobs sync.Map

// configureProcess detaches the script from any console window
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
	cmd.Cancel = func() error {
		return killProcess(cmd.Process)
	}
}

// trackProcess places a started script in a job object so killProcess can
// terminate everything it spawned. Children created before the assignment
// are not covered. The returned func releases the job without killing it.
func trackProcess(cmd *exec.Cmd) (func(), error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return func() {}, err
	}

	pid := uint32(cmd.Process.Pid)
	proc, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		windows.CloseHandle(job)
		return func() {}, err
	}
	defer windows.CloseHandle(proc)

	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		windows.CloseHandle(job)
		return func() {}, err
	}

	jobs.Store(cmd.Process.Pid, job)
	return func() {
		if v, ok := jobs.LoadAndDelete(cmd.Process.Pid); ok {
			windows.CloseHandle(v.(windows.Handle))
		}
	}, nil
}

func killProcess(p *os.Process) error {
	if p == nil {
		return nil
	}
	if v, ok := jobs.Load(p.Pid); ok {
		return windows.TerminateJobObject(v.(windows.Handle), 1)
	}
	return p.Kill()
}
