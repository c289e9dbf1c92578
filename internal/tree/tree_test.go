package tree

import (
	"errors"
	"testing"

	"github.com/roach88/sequent/internal/model"
)

// makeRows builds a row set from (ref, parentRef, key) triples.
func makeRows(triples [][3]interface{}) []Row {
	rows := make([]Row, 0, len(triples))
	placement := map[int64]int{}
	for _, tr := range triples {
		ref := int64(tr[0].(int))
		parent := int64(tr[1].(int))
		key := tr[2].(string)
		a := &model.Activity{
			Key:             key,
			Placement:       placement[parent],
			RandomPlacement: -1,
			Visible:         true,
			Sequencing:      model.DefaultSequencing(),
		}
		placement[parent]++
		rows = append(rows, Row{Activity: a, RefID: ref, ParentRefID: parent})
	}
	return rows
}

// threeLevel is root -> (a, b); a -> (a1, a2); b -> (b1, b2).
func threeLevel() []Row {
	return makeRows([][3]interface{}{
		{1, 0, "root"},
		{2, 1, "a"},
		{3, 1, "b"},
		{4, 2, "a1"},
		{5, 2, "a2"},
		{6, 3, "b1"},
		{7, 3, "b2"},
	})
}

func TestBuildLinksParents(t *testing.T) {
	tr, err := Build(threeLevel(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if tr.Len() != 7 {
		t.Fatalf("expected 7 nodes, got %d", tr.Len())
	}
	root := tr.Root()
	if tr.Activity(root).Key != "root" {
		t.Errorf("root key = %q, want root", tr.Activity(root).Key)
	}
	if tr.Parent(root) != None {
		t.Errorf("root has parent %d", tr.Parent(root))
	}
	// Every non-root node has exactly one parent.
	seen := 0
	for _, i := range tr.PreOrder() {
		if i == root {
			continue
		}
		seen++
		if tr.Parent(i) == None {
			t.Errorf("node %q has no parent", tr.Activity(i).Key)
		}
	}
	if seen != 6 {
		t.Errorf("preorder visited %d non-root nodes, want 6", seen)
	}
}

func TestBuildIsRowOrderIndependent(t *testing.T) {
	rows := threeLevel()
	// Reverse the rows: children before parents.
	reversed := make([]Row, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}
	tr, err := Build(reversed, 1)
	if err != nil {
		t.Fatalf("Build failed on reversed rows: %v", err)
	}
	keys := preorderKeys(tr)
	want := []string{"root", "a", "a1", "a2", "b", "b1", "b2"}
	if len(keys) != len(want) {
		t.Fatalf("preorder length = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("preorder[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestBuildRootWithParentFails(t *testing.T) {
	rows := makeRows([][3]interface{}{
		{1, 2, "root"},
		{2, 0, "other"},
	})
	_, err := Build(rows, 1)
	var be *BuildError
	if !errors.As(err, &be) || be.Code != ErrCodeMissingRoot {
		t.Fatalf("expected MISSING_ROOT error, got %v", err)
	}
}

func TestBuildUnknownParentFails(t *testing.T) {
	rows := makeRows([][3]interface{}{
		{1, 0, "root"},
		{2, 99, "orphan"},
	})
	_, err := Build(rows, 1)
	var be *BuildError
	if !errors.As(err, &be) || be.Code != ErrCodeUnknownParent {
		t.Fatalf("expected UNKNOWN_PARENT error, got %v", err)
	}
}

func TestPreorderLinksAreConsistent(t *testing.T) {
	tr, err := Build(threeLevel(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	assertLinkConsistency(t, tr)
}

func TestPreorderLinksAfterReorder(t *testing.T) {
	tr, err := Build(threeLevel(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	// Force "b" ahead of "a" via RandomPlacement and re-sort.
	a, _ := tr.ByKey("a")
	b, _ := tr.ByKey("b")
	tr.Activity(a).RandomPlacement = 1
	tr.Activity(b).RandomPlacement = 0
	tr.SortChildren(tr.Root())

	keys := preorderKeys(tr)
	want := []string{"root", "b", "b1", "b2", "a", "a1", "a2"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("preorder after reorder = %v, want %v", keys, want)
		}
	}
	assertLinkConsistency(t, tr)
}

func TestFindCommonAncestor(t *testing.T) {
	tr, err := Build(threeLevel(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	a1, _ := tr.ByKey("a1")
	a2, _ := tr.ByKey("a2")
	b1, _ := tr.ByKey("b1")
	a, _ := tr.ByKey("a")

	if got := tr.FindCommonAncestor(a1, a2); got != a {
		t.Errorf("FCA(a1, a2) = %q, want a", tr.Activity(got).Key)
	}
	if got := tr.FindCommonAncestor(a1, b1); got != tr.Root() {
		t.Errorf("FCA(a1, b1) = %q, want root", tr.Activity(got).Key)
	}
	if got := tr.FindCommonAncestor(a, a1); got != a {
		t.Errorf("FCA(a, a1) = %q, want a", tr.Activity(got).Key)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tr, err := Build(threeLevel(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	a1, _ := tr.ByKey("a1")
	clone := tr.Clone()
	c1, ok := clone.ByKey("a1")
	if !ok {
		t.Fatal("clone lost key a1")
	}
	clone.Activity(c1).DataModel.ActivityIsActive = true
	clone.Activity(c1).DataModel.ActivityAttemptCount = 3
	if tr.Activity(a1).DataModel.ActivityIsActive {
		t.Error("mutating clone leaked into original data model")
	}
	if tr.Activity(a1).DataModel.ActivityAttemptCount != 0 {
		t.Error("clone shares attempt count with original")
	}
}

func preorderKeys(tr *Tree) []string {
	var keys []string
	for _, i := range tr.PreOrder() {
		keys = append(keys, tr.Activity(i).Key)
	}
	return keys
}

// assertLinkConsistency verifies Next/Prev are mutual inverses.
func assertLinkConsistency(t *testing.T, tr *Tree) {
	t.Helper()
	for _, i := range tr.PreOrder() {
		if n := tr.Next(i); n != None && tr.Prev(n) != i {
			t.Errorf("Next(%q).Prev != self", tr.Activity(i).Key)
		}
		if p := tr.Prev(i); p != None && tr.Next(p) != i {
			t.Errorf("Prev(%q).Next != self", tr.Activity(i).Key)
		}
	}
}
