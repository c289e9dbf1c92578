package nav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/tree"
)

type fakePersister struct {
	res     *LoadResult
	saves   []*Delta
	saveErr error
}

func (f *fakePersister) LoadTree(ctx context.Context) (*LoadResult, error) {
	return f.res, nil
}

func (f *fakePersister) SaveDelta(ctx context.Context, d *Delta) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, d)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testCluster(id int64, key string) *model.Activity {
	a := &model.Activity{
		ID:              id,
		Key:             key,
		Title:           key,
		Visible:         true,
		RandomPlacement: -1,
		ResourceType:    model.ResourceNone,
		Sequencing:      model.DefaultSequencing(),
	}
	a.Sequencing.Flow = true
	return a
}

func testLeaf(id int64, key string) *model.Activity {
	return &model.Activity{
		ID:              id,
		Key:             key,
		Title:           key,
		Visible:         true,
		RandomPlacement: -1,
		ResourceType:    model.ResourceSco,
		ResourceKey:     key + ".html",
		Sequencing:      model.DefaultSequencing(),
	}
}

// twoModuleTree builds org -> (m1 -> l11, l12) (m2 -> l21, l22).
func twoModuleTree(t *testing.T) *tree.Tree {
	t.Helper()
	acts := []*model.Activity{
		testCluster(1, "org"),
		testCluster(2, "m1"), testLeaf(3, "l11"), testLeaf(4, "l12"),
		testCluster(5, "m2"), testLeaf(6, "l21"), testLeaf(7, "l22"),
	}
	parents := []int64{0, 1, 2, 2, 1, 5, 5}
	placements := []int{0, 0, 0, 1, 1, 0, 1}
	rows := make([]tree.Row, len(acts))
	for i, a := range acts {
		a.Placement = placements[i]
		rows[i] = tree.Row{Activity: a, RefID: a.ID, ParentRefID: parents[i]}
	}
	tr, err := tree.Build(rows, 1)
	require.NoError(t, err)
	return tr
}

func testAttempt() *model.Attempt {
	return &model.Attempt{
		ID:             10,
		GUID:           "test-attempt",
		LearnerID:      1,
		PackageID:      1,
		RootActivityID: 1,
		PackageFormat:  model.FormatV1p3,
		Status:         model.AttemptActive,
		StartedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newTestNavigator(t *testing.T, mode Mode) (*Navigator, *fakePersister) {
	t.Helper()
	p := &fakePersister{res: &LoadResult{
		Tree:    twoModuleTree(t),
		Attempt: testAttempt(),
		Globals: map[string]*GlobalObjective{},
	}}
	n := New(mode, p,
		WithClock(fixedClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}),
		WithRandomSource(tree.NewSeededSource(1)),
	)
	require.NoError(t, n.LoadActivityTree(context.Background()))
	return n, p
}

func currentKey(n *Navigator) string {
	cur := n.CurrentActivity()
	if cur == nil {
		return ""
	}
	return cur.Key
}

func TestReviewStartsAtFirstDeliverable(t *testing.T) {
	n, _ := newTestNavigator(t, ModeReview)
	assert.Equal(t, "l11", currentKey(n))
}

func TestReviewContinueSkipsClusters(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeReview)

	require.NoError(t, n.Navigate(ctx, model.Continue))
	assert.Equal(t, "l12", currentKey(n))

	// m2 carries no content, so the next step lands on l21.
	require.NoError(t, n.Navigate(ctx, model.Continue))
	assert.Equal(t, "l21", currentKey(n))

	require.NoError(t, n.Navigate(ctx, model.Previous))
	assert.Equal(t, "l12", currentKey(n))
}

func TestReviewRejectsNonTraversalCommands(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeReview)

	for _, cmd := range []model.NavigationCommand{
		model.Start, model.Exit, model.ExitAll, model.SuspendAll, model.AbandonAll,
	} {
		err := n.Navigate(ctx, cmd)
		assert.True(t, IsModeError(err), "command %s", cmd)
	}
}

func TestReviewNavigateToClusterAdvancesToContent(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeReview)

	require.NoError(t, n.NavigateTo(ctx, "m2"))
	assert.Equal(t, "l21", currentKey(n))
}

// trailingClusterTree builds org -> (m -> l1) tail, where tail is a
// childless cluster at the end of the preorder.
func trailingClusterTree(t *testing.T) *tree.Tree {
	t.Helper()
	acts := []*model.Activity{
		testCluster(1, "org"),
		testCluster(2, "m"), testLeaf(3, "l1"),
		testCluster(4, "tail"),
	}
	parents := []int64{0, 1, 2, 1}
	placements := []int{0, 0, 0, 1}
	rows := make([]tree.Row, len(acts))
	for i, a := range acts {
		a.Placement = placements[i]
		rows[i] = tree.Row{Activity: a, RefID: a.ID, ParentRefID: parents[i]}
	}
	tr, err := tree.Build(rows, 1)
	require.NoError(t, err)
	return tr
}

func TestReviewIsNavigationToValidMirrorsNavigateTo(t *testing.T) {
	ctx := context.Background()
	p := &fakePersister{res: &LoadResult{
		Tree:    trailingClusterTree(t),
		Attempt: testAttempt(),
		Globals: map[string]*GlobalObjective{},
	}}
	n := New(ModeReview, p)
	require.NoError(t, n.LoadActivityTree(ctx))

	// m carries no content but l1 lies forward of it, so both the
	// predicate and the navigation succeed.
	ok, err := n.IsNavigationToValid(ctx, "m")
	require.NoError(t, err)
	assert.True(t, ok)

	// Nothing deliverable exists at or after tail: the predicate must
	// refuse exactly where the navigation refuses.
	ok, err = n.IsNavigationToValid(ctx, "tail")
	require.NoError(t, err)
	assert.False(t, ok)
	err = n.NavigateTo(ctx, "tail")
	assert.Equal(t, CodeChoiceTargetUndeliverable, SequencingCode(err))

	ok, err = n.IsNavigationToValid(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReviewNeverPersists(t *testing.T) {
	ctx := context.Background()
	n, p := newTestNavigator(t, ModeReview)

	require.NoError(t, n.Navigate(ctx, model.Continue))
	require.NoError(t, n.Save(ctx))
	assert.Empty(t, p.saves)
}

func TestRandomAccessWalksPlainPreorder(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeRandomAccess)
	assert.Equal(t, "org", currentKey(n))

	var visited []string
	visited = append(visited, currentKey(n))
	for {
		if ok, _ := n.IsNavigationValid(ctx, model.Continue); !ok {
			break
		}
		require.NoError(t, n.Navigate(ctx, model.Continue))
		visited = append(visited, currentKey(n))
	}
	assert.Equal(t, []string{"org", "m1", "l11", "l12", "m2", "l21", "l22"}, visited)

	err := n.Navigate(ctx, model.Continue)
	assert.Equal(t, CodeNoNextActivity, SequencingCode(err))
}

func TestRandomAccessNavigateToAnyKey(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeRandomAccess)

	require.NoError(t, n.NavigateTo(ctx, "l22"))
	assert.Equal(t, "l22", currentKey(n))

	err := n.NavigateTo(ctx, "missing")
	assert.Equal(t, CodeTargetNotFound, SequencingCode(err))
}

func TestReactivate(t *testing.T) {
	ctx := context.Background()

	n, _ := newTestNavigator(t, ModeRandomAccess)
	err := n.Reactivate(ctx)
	assert.ErrorIs(t, err, ErrAttemptNotEnded)

	ended := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	n.data.Attempt.Status = model.AttemptCompleted
	n.data.Attempt.EndedAt = &ended
	require.NoError(t, n.Reactivate(ctx))
	assert.Equal(t, model.AttemptActive, n.Attempt().Status)
	assert.Nil(t, n.Attempt().EndedAt)
	assert.True(t, n.Changed())
}

func TestReactivateRequiresRandomAccess(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []Mode{ModeExecute, ModeReview} {
		n, _ := newTestNavigator(t, mode)
		err := n.Reactivate(ctx)
		assert.True(t, IsModeError(err), "mode %s", mode)
	}
}

func TestSaveBuildsDeltaAndClearsDirty(t *testing.T) {
	ctx := context.Background()
	n, p := newTestNavigator(t, ModeExecute)

	require.NoError(t, n.Navigate(ctx, model.Start))
	require.NoError(t, n.Save(ctx))

	require.Len(t, p.saves, 1)
	delta := p.saves[0]
	require.NotNil(t, delta.Attempt)
	assert.True(t, delta.NavigationChanged)
	assert.Equal(t, int64(3), delta.Attempt.CurrentActivityID)

	// Start opened attempts on org, m1, and l11.
	keys := make([]string, 0, len(delta.Activities))
	for _, a := range delta.Activities {
		keys = append(keys, a.Key)
	}
	assert.ElementsMatch(t, []string{"org", "m1", "l11"}, keys)

	// A second save with no changes is a no-op.
	require.NoError(t, n.Save(ctx))
	assert.Len(t, p.saves, 1)
	assert.False(t, n.Changed())
}

func TestSaveFailureKeepsDirtyFlags(t *testing.T) {
	ctx := context.Background()
	n, p := newTestNavigator(t, ModeExecute)

	require.NoError(t, n.Navigate(ctx, model.Start))
	p.saveErr = assert.AnError
	require.Error(t, n.Save(ctx))
	assert.True(t, n.Changed())

	p.saveErr = nil
	require.NoError(t, n.Save(ctx))
	require.Len(t, p.saves, 1)
}

func TestRandomAccessSaveOmitsAttemptNavigation(t *testing.T) {
	ctx := context.Background()
	n, p := newTestNavigator(t, ModeRandomAccess)

	require.NoError(t, n.Navigate(ctx, model.Continue))
	// Mutate a data model the way a grading UI would.
	n.CurrentActivity().DataModel.Dirty = true
	require.NoError(t, n.Save(ctx))

	require.Len(t, p.saves, 1)
	assert.Nil(t, p.saves[0].Attempt)
	require.Len(t, p.saves[0].Activities, 1)
	assert.Equal(t, "m1", p.saves[0].Activities[0].Key)
}

func TestAutoGradingLifecycle(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)

	err := n.BeginAutoGradingMode(ctx)
	assert.ErrorIs(t, err, ErrAttemptNotEnded)

	n.data.Attempt.Status = model.AttemptCompleted
	require.NoError(t, n.BeginAutoGradingMode(ctx))
	assert.True(t, n.AutoGrading())
	assert.Equal(t, "l11", currentKey(n))
	assert.True(t, n.CurrentActivity().DataModel.ActivityIsActive)

	assert.ErrorIs(t, n.BeginAutoGradingMode(ctx), ErrAutoGradingActive)

	require.NoError(t, n.Navigate(ctx, model.Continue))
	assert.Equal(t, "l12", currentKey(n))

	// Only traversal commands are allowed while grading.
	assert.True(t, IsModeError(n.Navigate(ctx, model.Exit)))
	assert.True(t, IsModeError(n.NavigateTo(ctx, "l21")))

	require.NoError(t, n.EndAutoGradingMode())
	assert.False(t, n.AutoGrading())
	assert.Nil(t, n.CurrentActivity())

	assert.ErrorIs(t, n.EndAutoGradingMode(), ErrNotAutoGrading)
}

func TestAutoGradingRequiresExecuteMode(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeReview)
	n.data.Attempt.Status = model.AttemptCompleted
	assert.True(t, IsModeError(n.BeginAutoGradingMode(ctx)))
}

// reorderingNavigator builds org -> a, b, c where org reshuffles its
// children on each new attempt, so delivery consumes the random stream.
func reorderingNavigator(t *testing.T) *Navigator {
	t.Helper()
	org := testCluster(1, "org")
	org.Sequencing.ReorderChildren = true
	org.Sequencing.RandomizationTiming = model.TimingOnEachNewAttempt
	acts := []*model.Activity{
		org, testLeaf(2, "a"), testLeaf(3, "b"), testLeaf(4, "c"),
	}
	parents := []int64{0, 1, 1, 1}
	rows := make([]tree.Row, len(acts))
	for i, a := range acts {
		a.Placement = i
		rows[i] = tree.Row{Activity: a, RefID: a.ID, ParentRefID: parents[i]}
	}
	tr, err := tree.Build(rows, 1)
	require.NoError(t, err)

	p := &fakePersister{res: &LoadResult{
		Tree:    tr,
		Attempt: testAttempt(),
		Globals: map[string]*GlobalObjective{},
	}}
	n := New(ModeExecute, p,
		WithClock(fixedClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}),
		WithRandomSource(tree.NewSeededSource(7)),
	)
	require.NoError(t, n.LoadActivityTree(context.Background()))
	return n
}

func childKeys(n *Navigator, key string) []string {
	i, _ := n.data.Tree.ByKey(key)
	children := n.data.Tree.Children(i)
	keys := make([]string, 0, len(children))
	for _, c := range children {
		keys = append(keys, n.data.activity(c).Key)
	}
	return keys
}

func TestValidityCheckDoesNotConsumeRandomStream(t *testing.T) {
	ctx := context.Background()

	checked := reorderingNavigator(t)
	ok, err := checked.IsNavigationValid(ctx, model.Start)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = checked.IsNavigationToValid(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, checked.Navigate(ctx, model.Start))

	unchecked := reorderingNavigator(t)
	require.NoError(t, unchecked.Navigate(ctx, model.Start))

	// Identically seeded navigators must land on the same child order
	// whether or not a validity check ran first.
	assert.Equal(t, childKeys(unchecked, "org"), childKeys(checked, "org"))
	assert.Equal(t, currentKey(unchecked), currentKey(checked))
}

func TestProcessDataModelNavigation(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)
	require.NoError(t, n.Navigate(ctx, model.Start))

	// No pending intent: nothing happens.
	triggered, err := n.ProcessDataModelNavigation(ctx)
	require.NoError(t, err)
	assert.False(t, triggered)

	cmd := model.Continue
	n.CurrentActivity().DataModel.NavigationRequest = model.NavigationRequest{Command: &cmd}
	triggered, err = n.ProcessDataModelNavigation(ctx)
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, "l12", currentKey(n))
	assert.Nil(t, n.CurrentActivity().DataModel.NavigationRequest.Command)
}

func TestProcessDataModelNavigationNoIntentLeavesStateClean(t *testing.T) {
	ctx := context.Background()
	n, p := newTestNavigator(t, ModeExecute)
	require.NoError(t, n.Navigate(ctx, model.Start))
	require.NoError(t, n.Save(ctx))
	require.Len(t, p.saves, 1)

	triggered, err := n.ProcessDataModelNavigation(ctx)
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.False(t, n.CurrentActivity().DataModel.Dirty)

	// Nothing was pending, so the next save has nothing to write.
	require.NoError(t, n.Save(ctx))
	assert.Len(t, p.saves, 1)
}

func TestProcessDataModelNavigationSuspendedExit(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)
	require.NoError(t, n.Navigate(ctx, model.Start))

	cur := n.CurrentActivity()
	cur.DataModel.NavigationRequest = model.NavigationRequest{ExitMode: model.ExitModeSuspended}
	triggered, err := n.ProcessDataModelNavigation(ctx)
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.True(t, cur.DataModel.ActivityIsSuspended)
	assert.False(t, cur.DataModel.ActivityIsActive)
}

func TestProcessDataModelNavigationChoice(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)
	require.NoError(t, n.Navigate(ctx, model.Start))

	cmd := model.Choose
	n.CurrentActivity().DataModel.NavigationRequest = model.NavigationRequest{
		Command:     &cmd,
		Destination: "l21",
	}
	triggered, err := n.ProcessDataModelNavigation(ctx)
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, "l21", currentKey(n))
}

func TestTableOfContents(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)

	toc, err := n.LoadTableOfContents(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "org", toc.Key)
	assert.False(t, toc.HasContent)
	require.Len(t, toc.Children, 2)
	assert.Equal(t, "m1", toc.Children[0].Key)
	assert.True(t, toc.Children[0].Children[0].HasContent)
	assert.True(t, toc.Children[0].Children[0].ValidToNavigateTo)
}

func TestTableOfContentsChoiceValidity(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)
	m2, _ := n.data.Tree.ByKey("m2")
	n.data.activity(m2).Sequencing.Choice = false

	toc, err := n.LoadTableOfContents(ctx, true)
	require.NoError(t, err)

	// m2 itself remains choosable; its children do not.
	assert.True(t, toc.Children[1].ValidToNavigateTo)
	assert.False(t, toc.Children[1].Children[0].ValidToNavigateTo)
	assert.False(t, toc.Children[1].Children[1].ValidToNavigateTo)
	assert.True(t, toc.Children[0].Children[0].ValidToNavigateTo)
}

func TestTableOfContentsChoiceExitBound(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)
	require.NoError(t, n.Navigate(ctx, model.Start))
	m1, _ := n.data.Tree.ByKey("m1")
	n.data.activity(m1).Sequencing.ChoiceExit = false

	toc, err := n.LoadTableOfContents(ctx, true)
	require.NoError(t, err)

	// Current is l11; leaving m1 is forbidden, staying inside is fine.
	assert.True(t, toc.Children[0].Children[0].ValidToNavigateTo)
	assert.True(t, toc.Children[0].Children[1].ValidToNavigateTo)
	assert.False(t, toc.Children[1].Children[0].ValidToNavigateTo)
}

func TestLoadActivityTreeIdempotent(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNavigator(t, ModeExecute)
	require.NoError(t, n.Navigate(ctx, model.Start))
	before := n.data
	require.NoError(t, n.LoadActivityTree(ctx))
	assert.Same(t, before, n.data)
}
