// Package report renders trace results for the CLI: a flat human-readable
// list of the commands that were spawned, or the full process tree as JSON.
package report

import (
	"encoding/json"
	"strings"

	"github.com/soenkehahn/tracing/internal/proctree"
)

// Format renders the executed-command records as the human-readable report:
// a header line followed by one indented line per command, arguments
// space-separated, no quoting.
func Format(commands []proctree.Command) string {
	var b strings.Builder
	b.WriteString("spawned child processes:\n")
	for _, cmd := range commands {
		b.WriteString("  ")
		b.WriteString(cmd.Executable)
		for _, arg := range cmd.Arguments {
			b.WriteString(" ")
			b.WriteString(arg)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// JSON renders the full process tree, tagged with the trace session id. The
// root's pid, cmdline and children appear at the top level so consumers can
// index straight into children.
func JSON(tree *proctree.Tree, traceID string) ([]byte, error) {
	root := tree.Root()
	var cmdline []string
	if root.Command != nil {
		cmdline = root.Command.Cmdline()
	}
	children := root.Children
	if children == nil {
		children = []*proctree.Node{}
	}
	doc := struct {
		TraceID  string           `json:"trace_id"`
		Pid      int              `json:"pid"`
		Cmdline  []string         `json:"cmdline,omitempty"`
		Children []*proctree.Node `json:"children"`
	}{traceID, root.Pid, cmdline, children}
	return json.MarshalIndent(doc, "", "  ")
}
