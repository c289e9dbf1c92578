package tree

import (
	"fmt"
	"sort"

	"github.com/roach88/sequent/internal/model"
)

// None is the nil node handle.
const None = -1

// Row is one flat activity row as produced by the package import
// boundary or read back from the store. RefID is the construction-time
// identity used only for parent linking; it is the package-activity id
// at creation and the attempt-activity id on reload.
type Row struct {
	Activity    *model.Activity
	RefID       int64
	ParentRefID int64
}

// BuildError reports a structural problem in the row set.
type BuildError struct {
	Code  BuildErrorCode
	RefID int64
}

// BuildErrorCode categorizes tree construction failures.
type BuildErrorCode string

const (
	// ErrCodeMissingRoot indicates the declared root row is absent or
	// carries a parent reference.
	ErrCodeMissingRoot BuildErrorCode = "MISSING_ROOT"

	// ErrCodeUnknownParent indicates a row references a parent not in the set.
	ErrCodeUnknownParent BuildErrorCode = "UNKNOWN_PARENT"

	// ErrCodeDuplicateRef indicates two rows share a RefID.
	ErrCodeDuplicateRef BuildErrorCode = "DUPLICATE_REF"
)

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: activity ref %d", e.Code, e.RefID)
}

// Tree is the arena of one attempt's activities. Node handles are ints;
// None marks an absent link.
type Tree struct {
	nodes    []*model.Activity
	refID    []int64
	parent   []int
	children [][]int
	next     []int
	prev     []int
	root     int

	byRef map[int64]int
	byKey map[string]int
}

// Build turns a flat row set into a typed tree. Nodes are inserted into
// a ref-keyed map first and parent links resolved in a second pass, so
// the result is independent of row order. Children are sorted and
// preorder links computed before return; selection/randomization is a
// separate pass (ApplyConstructionRandomization).
func Build(rows []Row, rootRefID int64) (*Tree, error) {
	t := &Tree{
		nodes:    make([]*model.Activity, 0, len(rows)),
		refID:    make([]int64, 0, len(rows)),
		parent:   make([]int, 0, len(rows)),
		children: make([][]int, 0, len(rows)),
		root:     None,
		byRef:    make(map[int64]int, len(rows)),
		byKey:    make(map[string]int, len(rows)),
	}

	for _, row := range rows {
		if _, dup := t.byRef[row.RefID]; dup {
			return nil, &BuildError{Code: ErrCodeDuplicateRef, RefID: row.RefID}
		}
		i := len(t.nodes)
		t.nodes = append(t.nodes, row.Activity)
		t.refID = append(t.refID, row.RefID)
		t.parent = append(t.parent, None)
		t.children = append(t.children, nil)
		t.byRef[row.RefID] = i
		t.byKey[row.Activity.Key] = i
	}

	// Second pass: resolve parent references.
	for _, row := range rows {
		i := t.byRef[row.RefID]
		if row.RefID == rootRefID {
			if row.ParentRefID != 0 {
				// The declared root must not reference a parent.
				return nil, &BuildError{Code: ErrCodeMissingRoot, RefID: rootRefID}
			}
			t.root = i
			continue
		}
		p, ok := t.byRef[row.ParentRefID]
		if !ok {
			return nil, &BuildError{Code: ErrCodeUnknownParent, RefID: row.RefID}
		}
		t.parent[i] = p
		t.children[p] = append(t.children[p], i)
	}
	if t.root == None {
		return nil, &BuildError{Code: ErrCodeMissingRoot, RefID: rootRefID}
	}

	for i := range t.children {
		t.sortChildren(i)
	}
	t.RebuildLinks()
	return t, nil
}

// Len returns the number of activities in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Root returns the root node handle.
func (t *Tree) Root() int { return t.root }

// Activity returns the activity at a node handle.
func (t *Tree) Activity(i int) *model.Activity { return t.nodes[i] }

// RefID returns the construction-time identity of a node.
func (t *Tree) RefID(i int) int64 { return t.refID[i] }

// Parent returns the parent handle, or None for the root.
func (t *Tree) Parent(i int) int { return t.parent[i] }

// Children returns the ordered child handles of a node. The returned
// slice is owned by the tree; callers must not mutate it.
func (t *Tree) Children(i int) []int { return t.children[i] }

// IsLeaf reports whether a node has no children.
func (t *Tree) IsLeaf(i int) bool { return len(t.children[i]) == 0 }

// Next returns the successor of i in preorder, or None at the end.
func (t *Tree) Next(i int) int { return t.next[i] }

// Prev returns the predecessor of i in preorder, or None at the root.
func (t *Tree) Prev(i int) int { return t.prev[i] }

// ByKey resolves a manifest key to a node handle.
func (t *Tree) ByKey(key string) (int, bool) {
	i, ok := t.byKey[key]
	return i, ok
}

// ByRef resolves a construction-time identity to a node handle.
func (t *Tree) ByRef(ref int64) (int, bool) {
	i, ok := t.byRef[ref]
	return i, ok
}

// ByActivityID resolves a store-assigned activity id to a node handle.
// Unlike ByRef this survives the post-commit id backfill.
func (t *Tree) ByActivityID(id int64) (int, bool) {
	if id == 0 {
		return None, false
	}
	for i, a := range t.nodes {
		if a.ID == id {
			return i, true
		}
	}
	return None, false
}

// PreOrder returns node handles in preorder. The slice is freshly
// computed by RebuildLinks and owned by the tree.
func (t *Tree) PreOrder() []int {
	order := make([]int, 0, len(t.nodes))
	for i := t.root; i != None; i = t.next[i] {
		order = append(order, i)
	}
	return order
}

// FindCommonAncestor returns the deepest node that is an ancestor of (or
// equal to) both a and b.
func (t *Tree) FindCommonAncestor(a, b int) int {
	onPath := make(map[int]bool)
	for i := a; i != None; i = t.parent[i] {
		onPath[i] = true
	}
	for i := b; i != None; i = t.parent[i] {
		if onPath[i] {
			return i
		}
	}
	return t.root
}

// IsDescendant reports whether node is within the subtree rooted at
// ancestor (inclusive).
func (t *Tree) IsDescendant(ancestor, node int) bool {
	for i := node; i != None; i = t.parent[i] {
		if i == ancestor {
			return true
		}
	}
	return false
}

// RemoveChild removes the child at position pos from node i. Preorder
// links are stale until RebuildLinks.
func (t *Tree) RemoveChild(i, pos int) {
	t.children[i] = append(t.children[i][:pos], t.children[i][pos+1:]...)
}

// SortChildren reorders node i's children by RandomPlacement when set,
// else manifest placement, then recomputes preorder links.
func (t *Tree) SortChildren(i int) {
	t.sortChildren(i)
	t.RebuildLinks()
}

func (t *Tree) sortChildren(i int) {
	kids := t.children[i]
	sort.SliceStable(kids, func(x, y int) bool {
		ax, ay := t.nodes[kids[x]], t.nodes[kids[y]]
		px, py := ax.Placement, ay.Placement
		if ax.RandomPlacement >= 0 {
			px = ax.RandomPlacement
		}
		if ay.RandomPlacement >= 0 {
			py = ay.RandomPlacement
		}
		return px < py
	})
}

// RebuildLinks recomputes the Previous/Next preorder links over the
// whole tree. Must be called after any structural mutation; Build,
// SortChildren, and the randomization pass do so themselves.
func (t *Tree) RebuildLinks() {
	t.next = make([]int, len(t.nodes))
	t.prev = make([]int, len(t.nodes))
	for i := range t.next {
		t.next[i] = None
		t.prev[i] = None
	}
	last := None
	var walk func(i int)
	walk = func(i int) {
		if last != None {
			t.next[last] = i
			t.prev[i] = last
		}
		last = i
		for _, c := range t.children[i] {
			walk(c)
		}
	}
	walk(t.root)
}

// Clone deep-copies the tree, including every activity's data model.
// Used for mutation-free navigation validity checks.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes:    make([]*model.Activity, len(t.nodes)),
		refID:    append([]int64(nil), t.refID...),
		parent:   append([]int(nil), t.parent...),
		children: make([][]int, len(t.children)),
		next:     append([]int(nil), t.next...),
		prev:     append([]int(nil), t.prev...),
		root:     t.root,
		byRef:    make(map[int64]int, len(t.byRef)),
		byKey:    make(map[string]int, len(t.byKey)),
	}
	for i, a := range t.nodes {
		c.nodes[i] = cloneActivity(a)
	}
	for i, kids := range t.children {
		c.children[i] = append([]int(nil), kids...)
	}
	for ref, i := range t.byRef {
		c.byRef[ref] = i
	}
	for key, i := range t.byKey {
		c.byKey[key] = i
	}
	return c
}

func cloneActivity(a *model.Activity) *model.Activity {
	dup := *a
	dup.Sequencing.RollupRules = append([]model.RollupRule(nil), a.Sequencing.RollupRules...)
	dup.Sequencing.ExitConditionRules = append([]model.ConditionRule(nil), a.Sequencing.ExitConditionRules...)
	dup.Sequencing.PostConditionRules = append([]model.ConditionRule(nil), a.Sequencing.PostConditionRules...)
	dup.DataModel.Objectives = make([]model.Objective, len(a.DataModel.Objectives))
	for i, obj := range a.DataModel.Objectives {
		dup.DataModel.Objectives[i] = obj
		if obj.ScaledScore != nil {
			v := *obj.ScaledScore
			dup.DataModel.Objectives[i].ScaledScore = &v
		}
	}
	if a.DataModel.ScaledScore != nil {
		v := *a.DataModel.ScaledScore
		dup.DataModel.ScaledScore = &v
	}
	if a.DataModel.NavigationRequest.Command != nil {
		cmd := *a.DataModel.NavigationRequest.Command
		dup.DataModel.NavigationRequest.Command = &cmd
	}
	return &dup
}
