package tree

import "github.com/roach88/sequent/internal/model"

// ApplyConstructionRandomization runs the one-time selection and
// randomization pass over the whole tree, in preorder. Per activity,
// selection runs before randomization so removal is not influenced by
// the new random order. Must run inside the transaction that creates
// the attempt's rows, because the outcome determines which rows are
// written.
func (t *Tree) ApplyConstructionRandomization(rnd Source) {
	for _, i := range t.PreOrder() {
		t.selectChildren(i, rnd)
		seq := t.nodes[i].Sequencing
		if seq.ReorderChildren &&
			(seq.RandomizationTiming == model.TimingOnce ||
				seq.RandomizationTiming == model.TimingOnEachNewAttempt) {
			t.randomizeCluster(i, rnd)
		}
	}
	t.RebuildLinks()
}

// RandomizeClusterOnNewAttempt reshuffles a cluster whose sequencing
// requests reordering on each new attempt. The construction pass handles
// the first attempt, so this applies only once attempts have been made
// on the cluster.
func (t *Tree) RandomizeClusterOnNewAttempt(i int, rnd Source) {
	a := t.nodes[i]
	if a.Sequencing.RandomizationTiming == model.TimingOnEachNewAttempt &&
		a.Sequencing.ReorderChildren &&
		a.DataModel.ActivityAttemptCount > 0 {
		t.randomizeCluster(i, rnd)
		t.RebuildLinks()
	}
}

// selectChildren removes children beyond the requested selection count,
// chosen uniformly at random without replacement among the remaining
// children.
func (t *Tree) selectChildren(i int, rnd Source) {
	seq := t.nodes[i].Sequencing
	if seq.SelectionTiming != model.TimingOnce || len(t.children[i]) == 0 {
		return
	}
	if seq.SelectionCount <= 0 || seq.SelectionCount >= len(t.children[i]) {
		return
	}
	for len(t.children[i]) > seq.SelectionCount {
		t.RemoveChild(i, rnd.Intn(len(t.children[i])))
	}
	t.sortChildren(i)
}

// randomizeCluster shuffles node i's children, recording each child's
// RandomPlacement as its new 0-based position.
func (t *Tree) randomizeCluster(i int, rnd Source) {
	remaining := append([]int(nil), t.children[i]...)
	shuffled := make([]int, 0, len(remaining))
	for len(remaining) > 0 {
		k := rnd.Intn(len(remaining))
		shuffled = append(shuffled, remaining[k])
		remaining = append(remaining[:k], remaining[k+1:]...)
	}
	for pos, c := range shuffled {
		t.nodes[c].RandomPlacement = pos
	}
	t.children[i] = shuffled
	t.sortChildren(i)
}
