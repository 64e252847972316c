package tracer

import (
	"strings"

	"github.com/soenkehahn/tracing/internal/proctree"
)

// parseCmdline turns the raw contents of /proc/<pid>/cmdline into an
// executed-command record. The kernel writes NUL-separated tokens with a
// trailing NUL after the last one, so splitting yields a final empty token
// that must be dropped. The report is diagnostic, not a byte-accurate
// reproducer: invalid UTF-8 sequences are replaced with U+FFFD.
//
// The second return value is false when no record should be stored: an empty
// cmdline (kernel thread or a very early exec race) or an empty first token.
func parseCmdline(raw []byte) (proctree.Command, bool) {
	tokens := strings.Split(string(raw), "\x00")
	if n := len(tokens); n > 0 && tokens[n-1] == "" {
		tokens = tokens[:n-1]
	}
	if len(tokens) == 0 || tokens[0] == "" {
		return proctree.Command{}, false
	}
	for i, tok := range tokens {
		tokens[i] = strings.ToValidUTF8(tok, "�")
	}
	return proctree.Command{Executable: tokens[0], Arguments: tokens[1:]}, true
}
