package tracer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Kernel is the subset of Linux process-tracing primitives the event loop
// drives. The default implementation talks to the real kernel; tests inject a
// scripted replacement via WithKernel.
type Kernel interface {
	// SpawnTraced forks, enables tracing in the child, and execs path with
	// args. The child is left in a ptrace stop before it runs any user code,
	// so trace options can be set before it forks or execs again. The
	// initial stop has already been consumed when SpawnTraced returns.
	SpawnTraced(path string, args []string) (int, error)

	// SetOptions configures which stop events the kernel raises for pid and,
	// via the TRACEFORK family, for every descendant it creates.
	SetOptions(pid int, options int) error

	// Cont resumes a stopped tracee. A zero sig delivers no signal; a
	// nonzero sig is re-injected so the tracee observes it on resumption.
	Cont(pid int, sig int) error

	// EventMsg retrieves the ancillary datum of the most recent ptrace event
	// on pid. For the fork family this is the new child's pid.
	EventMsg(pid int) (uint, error)

	// Wait blocks until any tracee changes state and returns its pid and raw
	// wait status.
	Wait() (int, unix.WaitStatus, error)

	// ReadCmdline returns the raw NUL-separated contents of
	// /proc/<pid>/cmdline.
	ReadCmdline(pid int) ([]byte, error)
}

// linuxKernel is the production Kernel backed by ptrace, wait4 and procfs.
type linuxKernel struct{}

func (linuxKernel) SpawnTraced(path string, args []string) (int, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// The child stops with SIGTRAP once the exec completes. Consume that
	// stop so ptrace requests against the pid are legal.
	var ws unix.WaitStatus
	for {
		if _, err := unix.Wait4(pid, &ws, unix.WALL, nil); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, fmt.Errorf("waiting for initial stop of pid %d: %w", pid, err)
		}
		break
	}
	if !ws.Stopped() {
		return 0, fmt.Errorf("pid %d did not reach its initial stop (status %#x)", pid, int(ws))
	}
	return pid, nil
}

func (linuxKernel) SetOptions(pid int, options int) error {
	return unix.PtraceSetOptions(pid, options)
}

func (linuxKernel) Cont(pid int, sig int) error {
	return unix.PtraceCont(pid, sig)
}

func (linuxKernel) EventMsg(pid int) (uint, error) {
	return unix.PtraceGetEventMsg(pid)
}

func (linuxKernel) Wait() (int, unix.WaitStatus, error) {
	// __WALL: auto-attached clone children are not necessarily
	// SIGCHLD-signaling and would otherwise be unwaitable.
	var ws unix.WaitStatus
	pid, err := unix.Wait4(-1, &ws, unix.WALL, nil)
	return pid, ws, err
}

func (linuxKernel) ReadCmdline(pid int) ([]byte, error) {
	return os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
}
