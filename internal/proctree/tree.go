// Package proctree holds the process tree built up during a trace: one node
// per observed pid, parent/child edges as reported by the fork family of
// events, and the executed-command record captured when a process execs.
//
// The tree is append-only and owned by a single goroutine for the lifetime of
// a trace session; it is not safe for concurrent use.
package proctree

import "encoding/json"

// Command is the executable and argument vector a process was observed
// executing, derived from the kernel's cmdline view of the process.
type Command struct {
	// Executable is the first cmdline token. Never empty: records with an
	// empty executable are not stored.
	Executable string
	// Arguments are the remaining cmdline tokens, in order.
	Arguments []string
}

// Cmdline returns the command as a single argv-style slice, executable first.
func (c Command) Cmdline() []string {
	return append([]string{c.Executable}, c.Arguments...)
}

// Node is one traced process.
type Node struct {
	// Pid is the kernel process identifier.
	Pid int
	// Ended reports whether the kernel delivered an exit or fatal-signal
	// event for this pid. It only ever transitions from false to true.
	Ended bool
	// Command is the most recently observed exec of this process, or nil if
	// no exec has been observed yet. A process that execs more than once
	// keeps only the latest record.
	Command *Command
	// Children are the direct descendants in creation order.
	Children []*Node
}

// cmdline returns the node's command as an argv slice, or nil when no exec
// has been observed.
func (n *Node) cmdline() []string {
	if n.Command == nil {
		return nil
	}
	return n.Command.Cmdline()
}

// MarshalJSON renders the node as {"pid": N, "cmdline": [...], "children":
// [...]}. The cmdline field is omitted when no command was recorded; children
// is always present so consumers can index into it unconditionally.
func (n *Node) MarshalJSON() ([]byte, error) {
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(struct {
		Pid      int      `json:"pid"`
		Cmdline  []string `json:"cmdline,omitempty"`
		Children []*Node  `json:"children"`
	}{n.Pid, n.cmdline(), children})
}

// Tree is a process tree plus a pid registry over its nodes. Nodes are
// created on first reference to their pid and are never removed; every
// registered node is reachable from the root once its parent edge has been
// reported.
type Tree struct {
	root  *Node
	nodes map[int]*Node
}

// New creates a tree containing only the root process.
func New(rootPid int) *Tree {
	root := &Node{Pid: rootPid}
	return &Tree{
		root:  root,
		nodes: map[int]*Node{rootPid: root},
	}
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Lookup returns the node registered for pid, or nil.
func (t *Tree) Lookup(pid int) *Node {
	return t.nodes[pid]
}

// GetOrInsert returns the node registered for pid, allocating a fresh
// parentless node on first reference. Kernel stop events for a new child can
// arrive before the clone event that names its parent, so registration and
// edge creation are separate steps.
func (t *Tree) GetOrInsert(pid int) *Node {
	if n, ok := t.nodes[pid]; ok {
		return n
	}
	n := &Node{Pid: pid}
	t.nodes[pid] = n
	return n
}

// Append attaches child as the last child of parent. It is called exactly
// once per non-root pid, when the fork/vfork/clone event arrives.
func (t *Tree) Append(parent, child *Node) {
	parent.Children = append(parent.Children, child)
}

// AllEnded reports whether every process reachable from the root has ended.
// This, not an empty wait set, is the trace termination condition: the tracer
// waits on grandchildren that are not in its direct child set.
func (t *Tree) AllEnded() bool {
	ended := true
	t.Walk(func(n *Node) {
		if !n.Ended {
			ended = false
		}
	})
	return ended
}

// Walk visits every node reachable from the root in pre-order: a parent
// before its children, siblings in creation order.
func (t *Tree) Walk(fn func(*Node)) {
	walk(t.root, fn)
}

func walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

// Commands collects the executed-command records of all nodes in pre-order,
// skipping processes for which no exec was observed.
func (t *Tree) Commands() []Command {
	var commands []Command
	t.Walk(func(n *Node) {
		if n.Command != nil {
			commands = append(commands, *n.Command)
		}
	})
	return commands
}
