package tree

import (
	"testing"

	"github.com/roach88/sequent/internal/model"
)

// fiveChildren is root with five leaves c0..c4.
func fiveChildren() []Row {
	return makeRows([][3]interface{}{
		{1, 0, "root"},
		{2, 1, "c0"},
		{3, 1, "c1"},
		{4, 1, "c2"},
		{5, 1, "c3"},
		{6, 1, "c4"},
	})
}

func TestSelectionOnceKeepsExactCount(t *testing.T) {
	for seed := uint64(1); seed <= 10; seed++ {
		rows := fiveChildren()
		rows[0].Activity.Sequencing.SelectionTiming = model.TimingOnce
		rows[0].Activity.Sequencing.SelectionCount = 2
		tr, err := Build(rows, 1)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		tr.ApplyConstructionRandomization(NewSeededSource(seed))
		if got := len(tr.Children(tr.Root())); got != 2 {
			t.Fatalf("seed %d: child count = %d, want 2", seed, got)
		}
		assertLinkConsistency(t, tr)
	}
}

func TestSelectionIsDeterministicForSeed(t *testing.T) {
	survivors := func(seed uint64) []string {
		rows := fiveChildren()
		rows[0].Activity.Sequencing.SelectionTiming = model.TimingOnce
		rows[0].Activity.Sequencing.SelectionCount = 2
		tr, err := Build(rows, 1)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		tr.ApplyConstructionRandomization(NewSeededSource(seed))
		var keys []string
		for _, c := range tr.Children(tr.Root()) {
			keys = append(keys, tr.Activity(c).Key)
		}
		return keys
	}
	first := survivors(42)
	second := survivors(42)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("survivor counts = %d, %d, want 2", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different survivors: %v vs %v", first, second)
		}
	}
}

func TestSelectionCountAtOrAboveChildCountIsNoop(t *testing.T) {
	rows := fiveChildren()
	rows[0].Activity.Sequencing.SelectionTiming = model.TimingOnce
	rows[0].Activity.Sequencing.SelectionCount = 5
	tr, err := Build(rows, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	tr.ApplyConstructionRandomization(NewSeededSource(7))
	if got := len(tr.Children(tr.Root())); got != 5 {
		t.Fatalf("child count = %d, want 5", got)
	}
}

func TestRandomizationAssignsPlacements(t *testing.T) {
	rows := fiveChildren()
	rows[0].Activity.Sequencing.ReorderChildren = true
	rows[0].Activity.Sequencing.RandomizationTiming = model.TimingOnce
	tr, err := Build(rows, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	tr.ApplyConstructionRandomization(NewSeededSource(3))

	kids := tr.Children(tr.Root())
	if len(kids) != 5 {
		t.Fatalf("child count = %d, want 5", len(kids))
	}
	// RandomPlacement must be a permutation of 0..4 matching child order.
	for pos, c := range kids {
		if rp := tr.Activity(c).RandomPlacement; rp != pos {
			t.Errorf("child %q at position %d has RandomPlacement %d", tr.Activity(c).Key, pos, rp)
		}
	}
	assertLinkConsistency(t, tr)
}

func TestSelectionRunsBeforeRandomization(t *testing.T) {
	rows := fiveChildren()
	rows[0].Activity.Sequencing.SelectionTiming = model.TimingOnce
	rows[0].Activity.Sequencing.SelectionCount = 3
	rows[0].Activity.Sequencing.ReorderChildren = true
	rows[0].Activity.Sequencing.RandomizationTiming = model.TimingOnce
	tr, err := Build(rows, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	tr.ApplyConstructionRandomization(NewSeededSource(11))

	kids := tr.Children(tr.Root())
	if len(kids) != 3 {
		t.Fatalf("child count = %d, want 3", len(kids))
	}
	// All survivors carry a placement within the shrunken cluster.
	for pos, c := range kids {
		if rp := tr.Activity(c).RandomPlacement; rp != pos || rp < 0 || rp > 2 {
			t.Errorf("survivor %q: RandomPlacement = %d at position %d", tr.Activity(c).Key, rp, pos)
		}
	}
}

func TestRandomizeClusterOnNewAttemptRequiresPriorAttempt(t *testing.T) {
	rows := fiveChildren()
	rows[0].Activity.Sequencing.ReorderChildren = true
	rows[0].Activity.Sequencing.RandomizationTiming = model.TimingOnEachNewAttempt
	tr, err := Build(rows, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	before := preorderKeys(tr)

	// No attempts yet: the construction pass owns the first shuffle, so
	// this call must not reorder.
	tr.RandomizeClusterOnNewAttempt(tr.Root(), NewSeededSource(5))
	after := preorderKeys(tr)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("reorder happened with zero attempts: %v -> %v", before, after)
		}
	}

	tr.Activity(tr.Root()).DataModel.ActivityAttemptCount = 1
	tr.RandomizeClusterOnNewAttempt(tr.Root(), NewSeededSource(5))
	assertLinkConsistency(t, tr)
}
