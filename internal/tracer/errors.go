package tracer

import "errors"

// Sentinel errors classifying every way a trace session can fail. All of them
// are fatal: the session stops at the first one and no partial tree is
// returned. Callers match with errors.Is.
var (
	// ErrSpawnFailure means the initial spawn of the traced executable
	// failed (bad path, permission, exec failure).
	ErrSpawnFailure = errors.New("spawning traced process failed")

	// ErrTraceControl means a ptrace request (set-options, continue,
	// get-event-message) failed on a pid believed to be stopped.
	ErrTraceControl = errors.New("ptrace request failed")

	// ErrUnknownParent means a fork/vfork/clone/exec event arrived for a pid
	// the registry has never seen. Normal kernel event ordering does not
	// produce this.
	ErrUnknownParent = errors.New("event for unknown pid")

	// ErrUnexpectedEvent means the wait status or ptrace event kind was
	// outside the set the tracer subscribes to.
	ErrUnexpectedEvent = errors.New("unexpected wait event")

	// ErrCmdlineRead means /proc/<pid>/cmdline could not be read after an
	// exec stop. The process can die between the stop and the read.
	ErrCmdlineRead = errors.New("reading cmdline failed")

	// ErrWaitFailure means wait4 failed with an errno other than EINTR.
	ErrWaitFailure = errors.New("waiting for tracees failed")
)
