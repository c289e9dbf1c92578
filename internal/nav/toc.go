package nav

import (
	"context"

	"github.com/roach88/sequent/internal/tree"
)

// TableOfContentsElement is one node of the attempt's navigable outline.
type TableOfContentsElement struct {
	Key   string
	Title string

	// HasContent reports whether the activity is deliverable rather than
	// a pure aggregation node.
	HasContent bool

	// IsVisible mirrors the manifest's visibility flag; hidden elements
	// still ship so callers can count positions consistently.
	IsVisible bool

	// ValidToNavigateTo reports whether a choice navigation to this
	// element would be accepted.
	ValidToNavigateTo bool

	Children []*TableOfContentsElement
}

// LoadTableOfContents builds the outline of the whole tree. With
// evaluateSequencingRules set, the Execute mode marks each element's
// choice validity from the static choice and choiceExit controls; the
// other modes, and the unevaluated form, mark every element valid.
func (n *Navigator) LoadTableOfContents(ctx context.Context, evaluateSequencingRules bool) (*TableOfContentsElement, error) {
	if err := n.LoadActivityTree(ctx); err != nil {
		return nil, err
	}
	evaluate := evaluateSequencingRules && n.mode == ModeExecute
	return n.tocElement(n.data.Tree.Root(), evaluate), nil
}

func (n *Navigator) tocElement(i int, evaluate bool) *TableOfContentsElement {
	d := n.data
	a := d.activity(i)
	el := &TableOfContentsElement{
		Key:               a.Key,
		Title:             a.Title,
		HasContent:        a.HasDeliverableContent(),
		IsVisible:         a.Visible,
		ValidToNavigateTo: true,
	}
	if evaluate {
		el.ValidToNavigateTo = n.choiceValid(i)
	}
	for _, c := range d.Tree.Children(i) {
		el.Children = append(el.Children, n.tocElement(c, evaluate))
	}
	return el
}

// choiceValid applies the static choice controls: every cluster on the
// target's ancestor path must permit choice, and leaving the current
// activity's branch must be permitted by choiceExit up to the common
// ancestor.
func (n *Navigator) choiceValid(target int) bool {
	d := n.data
	for i := target; d.Tree.Parent(i) != tree.None; i = d.Tree.Parent(i) {
		if !d.activity(d.Tree.Parent(i)).Sequencing.Choice {
			return false
		}
	}
	if d.Current == tree.None {
		return true
	}
	ca := d.Tree.FindCommonAncestor(d.Current, target)
	for i := d.Current; i != ca && i != tree.None; i = d.Tree.Parent(i) {
		if !d.activity(i).Sequencing.ChoiceExit {
			return false
		}
	}
	return true
}
