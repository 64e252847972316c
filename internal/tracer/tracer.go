// Package tracer runs an executable under ptrace and records every process
// in its descendant group that was actually executed. It drives a
// single-threaded event loop over the kernel's wait stream: fork, vfork and
// clone events grow the process tree, exec events are resolved into
// executable+arguments records through /proc, and exit events shrink the set
// of live processes until the whole tree has terminated.
package tracer

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/soenkehahn/tracing/internal/proctree"
)

// traceOptions are the stop events subscribed on the root. TRACEFORK,
// TRACEVFORK and TRACECLONE also make the kernel auto-attach every new
// descendant, so one SetOptions call covers the whole group.
const traceOptions = unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACECLONE

// Tracer traces the process tree spawned by an executable. A zero-configured
// Tracer from New talks to the real kernel and logs through slog.Default.
type Tracer struct {
	logger *slog.Logger
	kernel Kernel
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithLogger sets the logger used for per-event debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithKernel replaces the kernel interface, letting tests script the wait
// stream without ptrace privileges.
func WithKernel(k Kernel) Option {
	return func(t *Tracer) {
		if k != nil {
			t.kernel = k
		}
	}
}

// New creates a Tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		logger: slog.Default(),
		kernel: linuxKernel{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trace runs path under tracing and returns the executed-command records of
// the whole descendant group, in pre-order of the process tree.
func Trace(path string, args ...string) ([]proctree.Command, error) {
	tree, err := New().Run(path, args...)
	if err != nil {
		return nil, err
	}
	return tree.Commands(), nil
}

// Run spawns path with args under tracing and drives the event loop until
// every process in the tree has terminated. The returned tree has every node
// ended. All failures are fatal and wrapped in one of the sentinel errors of
// this package; no partial tree is returned.
//
// Run is synchronous and must not be shared across goroutines: only the
// thread that started the trace may wait for and control the tracee group,
// so the calling goroutine is pinned to its OS thread for the duration.
func (t *Tracer) Run(path string, args ...string) (*proctree.Tree, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pid, err := t.kernel.SpawnTraced(path, args)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w: %q: %v", ErrSpawnFailure, path, err)
	}
	t.logger.Debug("spawned traced process", slog.Int("pid", pid), slog.String("path", path))

	tree := proctree.New(pid)
	if err := t.kernel.SetOptions(pid, traceOptions); err != nil {
		return nil, fmt.Errorf("tracer: %w: setting options on pid %d: %v", ErrTraceControl, pid, err)
	}

	// The root is stopped just past the exec of the requested binary, so its
	// own command is resolved here rather than from a later exec event.
	if err := t.resolveCommand(tree.Root()); err != nil {
		return nil, err
	}

	if err := t.cont(pid, 0); err != nil {
		return nil, err
	}

	for !tree.AllEnded() {
		pid, ws, err := t.kernel.Wait()
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				// Reserved for an operator-interrupt handler (print the
				// active subtree on demand). Re-enter the wait.
				continue
			}
			return nil, fmt.Errorf("tracer: %w: %v", ErrWaitFailure, err)
		}

		switch {
		case ws.Exited():
			t.logger.Debug("process exited", slog.Int("pid", pid), slog.Int("status", ws.ExitStatus()))
			tree.GetOrInsert(pid).Ended = true

		case ws.Signaled():
			t.logger.Debug("process killed by signal", slog.Int("pid", pid), slog.String("signal", unix.SignalName(ws.Signal())))
			tree.GetOrInsert(pid).Ended = true

		case ws.Stopped() && ws.TrapCause() > 0:
			if err := t.handleEvent(tree, pid, ws.TrapCause()); err != nil {
				return nil, err
			}

		case ws.Stopped():
			if err := t.handleStop(tree, pid, ws.StopSignal()); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("tracer: %w: status %#x for pid %d", ErrUnexpectedEvent, int(ws), pid)
		}
	}
	return tree, nil
}

// handleEvent dispatches a ptrace event stop and resumes the stopped process.
func (t *Tracer) handleEvent(tree *proctree.Tree, pid, event int) error {
	switch event {
	case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
		msg, err := t.kernel.EventMsg(pid)
		if err != nil {
			return fmt.Errorf("tracer: %w: reading event message of pid %d: %v", ErrTraceControl, pid, err)
		}
		childPid := int(msg)
		parent := tree.Lookup(pid)
		if parent == nil {
			return fmt.Errorf("tracer: %w: %s event from pid %d", ErrUnknownParent, eventName(event), pid)
		}
		tree.Append(parent, tree.GetOrInsert(childPid))
		t.logger.Debug("new child process",
			slog.Int("pid", pid),
			slog.Int("child", childPid),
			slog.String("kind", eventName(event)),
		)

	case unix.PTRACE_EVENT_EXEC:
		node := tree.Lookup(pid)
		if node == nil {
			return fmt.Errorf("tracer: %w: exec event from pid %d", ErrUnknownParent, pid)
		}
		if err := t.resolveCommand(node); err != nil {
			return err
		}

	default:
		return fmt.Errorf("tracer: %w: ptrace event %d from pid %d", ErrUnexpectedEvent, event, pid)
	}
	return t.cont(pid, 0)
}

// handleStop processes a signal-delivery stop. A new clone's initial SIGSTOP
// can arrive before the parent's clone event names it, so the pid is
// registered here regardless; the clone event supplies the parent edge later.
func (t *Tracer) handleStop(tree *proctree.Tree, pid int, sig unix.Signal) error {
	tree.GetOrInsert(pid)
	t.logger.Debug("process stopped", slog.Int("pid", pid), slog.String("signal", unix.SignalName(sig)))

	// The attach handshake generates the SIGSTOP, not the program: swallow
	// it. Every other signal is re-injected so the program still observes it.
	if sig == unix.SIGSTOP {
		return t.cont(pid, 0)
	}
	return t.cont(pid, int(sig))
}

// resolveCommand reads the process's cmdline and stores the parsed record on
// the node. An empty cmdline leaves the node's command absent.
func (t *Tracer) resolveCommand(node *proctree.Node) error {
	raw, err := t.kernel.ReadCmdline(node.Pid)
	if err != nil {
		return fmt.Errorf("tracer: %w: pid %d: %v", ErrCmdlineRead, node.Pid, err)
	}
	cmd, ok := parseCmdline(raw)
	if !ok {
		return nil
	}
	node.Command = &cmd
	t.logger.Debug("exec",
		slog.Int("pid", node.Pid),
		slog.String("executable", cmd.Executable),
		slog.Any("arguments", cmd.Arguments),
	)
	return nil
}

func (t *Tracer) cont(pid, sig int) error {
	if err := t.kernel.Cont(pid, sig); err != nil {
		return fmt.Errorf("tracer: %w: continuing pid %d: %v", ErrTraceControl, pid, err)
	}
	return nil
}

// eventName maps a fork-family ptrace event to its syscall name.
func eventName(event int) string {
	switch event {
	case unix.PTRACE_EVENT_FORK:
		return "fork"
	case unix.PTRACE_EVENT_VFORK:
		return "vfork"
	case unix.PTRACE_EVENT_CLONE:
		return "clone"
	default:
		return fmt.Sprintf("event %d", event)
	}
}
