package proctree

import (
	"encoding/json"
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// TestTree_GetOrInsertIsIdempotent verifies that repeated references to the
// same pid return the same node handle.
func TestTree_GetOrInsertIsIdempotent(t *testing.T) {
	tree := New(100)

	first := tree.GetOrInsert(101)
	second := tree.GetOrInsert(101)
	if first != second {
		t.Fatal("GetOrInsert returned distinct nodes for the same pid")
	}
	if first.Pid != 101 {
		t.Errorf("node pid = %d, want 101", first.Pid)
	}
	if first.Ended || first.Command != nil {
		t.Error("fresh node should start with Ended=false and no command")
	}
}

// TestTree_GetOrInsertReturnsRoot verifies that the root pid resolves to the
// root node rather than a fresh one.
func TestTree_GetOrInsertReturnsRoot(t *testing.T) {
	tree := New(100)
	if tree.GetOrInsert(100) != tree.Root() {
		t.Fatal("GetOrInsert(rootPid) did not return the root node")
	}
}

// TestTree_LookupUnknownPid verifies that Lookup does not allocate.
func TestTree_LookupUnknownPid(t *testing.T) {
	tree := New(100)
	if tree.Lookup(999) != nil {
		t.Fatal("Lookup of an unseen pid returned a node")
	}
	if tree.Lookup(999) != nil {
		t.Fatal("Lookup allocated a node as a side effect")
	}
}

// ---------------------------------------------------------------------------
// Tree shape
// ---------------------------------------------------------------------------

// TestTree_AppendPreservesCreationOrder verifies that siblings stay in the
// order they were appended.
func TestTree_AppendPreservesCreationOrder(t *testing.T) {
	tree := New(100)
	root := tree.Root()

	for _, pid := range []int{101, 102, 103} {
		tree.Append(root, tree.GetOrInsert(pid))
	}

	var got []int
	for _, c := range root.Children {
		got = append(got, c.Pid)
	}
	if want := []int{101, 102, 103}; !reflect.DeepEqual(got, want) {
		t.Errorf("children = %v, want %v", got, want)
	}
}

// TestTree_AppendAfterRaceInsert verifies the clone-race path: a node created
// by an early stop event can still be attached when the clone event arrives.
func TestTree_AppendAfterRaceInsert(t *testing.T) {
	tree := New(100)

	// Stop event for 101 arrives first; clone event names the parent later.
	orphan := tree.GetOrInsert(101)
	tree.Append(tree.Root(), tree.GetOrInsert(101))

	if len(tree.Root().Children) != 1 || tree.Root().Children[0] != orphan {
		t.Fatal("racing node was not attached to the parent reported later")
	}
}

// ---------------------------------------------------------------------------
// Termination predicate
// ---------------------------------------------------------------------------

// TestTree_AllEnded verifies the reachability-based termination predicate.
func TestTree_AllEnded(t *testing.T) {
	tree := New(100)
	root := tree.Root()
	child := tree.GetOrInsert(101)
	tree.Append(root, child)
	grandchild := tree.GetOrInsert(102)
	tree.Append(child, grandchild)

	if tree.AllEnded() {
		t.Fatal("AllEnded true while no node has ended")
	}

	root.Ended = true
	child.Ended = true
	if tree.AllEnded() {
		t.Fatal("AllEnded true while a grandchild is still live")
	}

	grandchild.Ended = true
	if !tree.AllEnded() {
		t.Fatal("AllEnded false after every node ended")
	}
}

// ---------------------------------------------------------------------------
// Result extraction
// ---------------------------------------------------------------------------

// TestTree_CommandsPreOrder verifies the walk order (parent before children,
// siblings in creation order) and that nodes without a command are skipped.
func TestTree_CommandsPreOrder(t *testing.T) {
	tree := New(100)
	root := tree.Root()
	root.Command = &Command{Executable: "/bin/sh", Arguments: []string{"script.sh"}}

	first := tree.GetOrInsert(101)
	first.Command = &Command{Executable: "/bin/true"}
	tree.Append(root, first)

	// Forked but never exec'd: contributes no record.
	second := tree.GetOrInsert(102)
	tree.Append(root, second)

	nested := tree.GetOrInsert(103)
	nested.Command = &Command{Executable: "/bin/false"}
	tree.Append(first, nested)

	got := tree.Commands()
	want := []Command{
		{Executable: "/bin/sh", Arguments: []string{"script.sh"}},
		{Executable: "/bin/true"},
		{Executable: "/bin/false"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Commands() = %+v, want %+v", got, want)
	}
}

// TestCommand_Cmdline verifies the argv-style rendering of a record.
func TestCommand_Cmdline(t *testing.T) {
	cmd := Command{Executable: "/bin/echo", Arguments: []string{"a", "b"}}
	if got, want := cmd.Cmdline(), []string{"/bin/echo", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cmdline() = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// JSON shape
// ---------------------------------------------------------------------------

// TestNode_MarshalJSON verifies the pid/cmdline/children shape, including the
// omission of cmdline for processes that never exec'd and the unconditional
// presence of children.
func TestNode_MarshalJSON(t *testing.T) {
	tree := New(100)
	root := tree.Root()
	root.Command = &Command{Executable: "/bin/sh", Arguments: []string{"s"}}
	tree.Append(root, tree.GetOrInsert(101))

	data, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var doc struct {
		Pid      int      `json:"pid"`
		Cmdline  []string `json:"cmdline"`
		Children []struct {
			Pid      int               `json:"pid"`
			Cmdline  []string          `json:"cmdline"`
			Children []json.RawMessage `json:"children"`
		} `json:"children"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if doc.Pid != 100 {
		t.Errorf("pid = %d, want 100", doc.Pid)
	}
	if want := []string{"/bin/sh", "s"}; !reflect.DeepEqual(doc.Cmdline, want) {
		t.Errorf("cmdline = %v, want %v", doc.Cmdline, want)
	}
	if len(doc.Children) != 1 {
		t.Fatalf("children count = %d, want 1", len(doc.Children))
	}
	if doc.Children[0].Cmdline != nil {
		t.Errorf("child without exec should omit cmdline, got %v", doc.Children[0].Cmdline)
	}
	if doc.Children[0].Children == nil {
		t.Error("children should be present (empty array) on leaf nodes")
	}
}
