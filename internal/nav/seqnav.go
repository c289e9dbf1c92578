package nav

import (
	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/tree"
)

// seqProc runs the overall sequencing process for the Execute mode:
// navigation request -> termination request -> sequencing request ->
// delivery request -> content delivery environment.
type seqProc struct {
	d   *Data
	rnd tree.Source
	cmd model.NavigationCommand
}

type seqRequest int

const (
	seqNone seqRequest = iota
	seqStart
	seqResumeAll
	seqContinue
	seqPrevious
	seqChoice
	seqRetry
	seqExit
)

type termRequest int

const (
	termNone termRequest = iota
	termExit
	termExitAll
	termExitParent
	termSuspendAll
	termAbandon
	termAbandonAll
)

// overallSequencingProcess performs one navigation command. dest is the
// Choose target handle (tree.None otherwise). Returns whether the
// sequencing session ended.
func (p *seqProc) overallSequencingProcess(cmd model.NavigationCommand, dest int) (bool, error) {
	p.cmd = cmd
	p.d.command = cmd

	seqReq, termReq, err := p.processNavigationRequest(cmd, dest)
	if err != nil {
		return false, err
	}
	if termReq != termNone {
		newSeq, err := p.processTerminationRequest(termReq)
		if err != nil {
			return false, err
		}
		if newSeq != seqNone {
			seqReq = newSeq
		}
	}
	if seqReq != seqNone {
		delivery, exitSession, err := p.processSequencingRequest(seqReq, dest)
		if err != nil {
			return false, err
		}
		if exitSession {
			p.d.Current = tree.None
			p.d.logSequencing("sequencing session ended")
			return true, nil
		}
		if delivery != tree.None {
			if err := p.contentDeliveryEnvironment(delivery); err != nil {
				return false, err
			}
			p.d.logSequencing("navigation delivered activity",
				"activity", p.d.activity(delivery).Key)
			return false, nil
		}
	}
	p.d.logSequencing("navigation finished without delivery")
	return false, nil
}

// processNavigationRequest validates the command against the current
// state and maps it to termination and sequencing requests.
func (p *seqProc) processNavigationRequest(cmd model.NavigationCommand, dest int) (seqRequest, termRequest, error) {
	d := p.d
	switch cmd {
	case model.Start:
		if d.Current != tree.None {
			return seqNone, termNone, newSequencingError(CodeCurrentActivityAlreadySet, cmd, "")
		}
		return seqStart, termNone, nil

	case model.ResumeAll:
		if d.Current != tree.None {
			return seqNone, termNone, newSequencingError(CodeCurrentActivityAlreadySet, cmd, "")
		}
		if d.Suspended == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoSuspendedActivity, cmd, "")
		}
		return seqResumeAll, termNone, nil

	case model.Continue:
		if d.Current == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoCurrentActivity, cmd, "")
		}
		if parent := d.Tree.Parent(d.Current); parent != tree.None && !d.activity(parent).Sequencing.Flow {
			return seqNone, termNone, newSequencingError(CodeFlowNotEnabled, cmd, d.activity(d.Current).Key)
		}
		if d.activity(d.Current).DataModel.ActivityIsActive {
			return seqContinue, termExit, nil
		}
		return seqContinue, termNone, nil

	case model.Previous:
		if d.Current == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoCurrentActivity, cmd, "")
		}
		if parent := d.Tree.Parent(d.Current); parent != tree.None {
			pa := d.activity(parent)
			if !pa.Sequencing.Flow {
				return seqNone, termNone, newSequencingError(CodeFlowNotEnabled, cmd, d.activity(d.Current).Key)
			}
			if pa.Sequencing.ForwardOnly {
				return seqNone, termNone, newSequencingError(CodeForwardOnlyViolated, cmd, pa.Key)
			}
		}
		if d.activity(d.Current).DataModel.ActivityIsActive {
			return seqPrevious, termExit, nil
		}
		return seqPrevious, termNone, nil

	case model.Choose:
		if dest == tree.None {
			return seqNone, termNone, newSequencingError(CodeTargetNotFound, cmd, "")
		}
		// Every activity on the path to the target must be choosable: its
		// parent has to permit choice among its children.
		for i := dest; i != d.Tree.Root(); i = d.Tree.Parent(i) {
			parent := d.Tree.Parent(i)
			if !d.activity(parent).Sequencing.Choice {
				return seqNone, termNone, newSequencingError(CodeChoiceNotPermitted, cmd, d.activity(i).Key)
			}
		}
		if d.Current != tree.None {
			// Ancestors between the current activity and the common
			// ancestor bound the search: each must permit choice exit.
			ca := d.Tree.FindCommonAncestor(d.Current, dest)
			for i := d.Current; i != ca; i = d.Tree.Parent(i) {
				if !d.activity(i).Sequencing.ChoiceExit {
					return seqNone, termNone, newSequencingError(CodeChoiceExitForbidden, cmd, d.activity(i).Key)
				}
			}
			if d.activity(d.Current).DataModel.ActivityIsActive {
				return seqChoice, termExit, nil
			}
		}
		return seqChoice, termNone, nil

	case model.Exit, model.UnqualifiedExit:
		if d.Current == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoCurrentActivity, cmd, "")
		}
		return seqNone, termExit, nil

	case model.ExitAll:
		if d.Current == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoCurrentActivity, cmd, "")
		}
		return seqNone, termExitAll, nil

	case model.SuspendAll:
		if d.Current == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoCurrentActivity, cmd, "")
		}
		return seqNone, termSuspendAll, nil

	case model.Abandon:
		if d.Current == tree.None {
			return seqNone, termNone, newSequencingError(CodeNoCurrentActivity, cmd, "")
		}
		return seqNone, termAbandon, nil

	case model.AbandonAll:
		return seqNone, termAbandonAll, nil

	default:
		return seqNone, termNone, newSequencingError(CodeTargetNotFound, cmd, "")
	}
}

// processTerminationRequest ends or suspends attempts as requested and
// may yield a replacement sequencing request from post-condition rules.
func (p *seqProc) processTerminationRequest(req termRequest) (seqRequest, error) {
	d := p.d
	if req != termAbandonAll && d.Current == tree.None {
		return seqNone, newSequencingError(CodeNothingToTerminate, p.cmd, "")
	}
	if (req == termExit || req == termAbandon) && !d.activity(d.Current).DataModel.ActivityIsActive {
		return seqNone, newSequencingError(CodeAlreadyTerminated, p.cmd, d.activity(d.Current).Key)
	}

	seqReq := seqNone
	switch req {
	case termExit:
		p.endAttemptProcess(d.Current)
		p.sequencingExitActionRules()
		for {
			postSeq, postTerm := p.sequencingPostConditionRules(d.Current)
			if postSeq != seqNone {
				seqReq = postSeq
			}
			if postTerm == termExitAll {
				return p.terminateExitAll(seqReq)
			}
			if postTerm == termExitParent {
				if d.Current == d.Tree.Root() {
					return seqNone, newSequencingError(CodeRootHasNoParent, p.cmd, d.activity(d.Current).Key)
				}
				d.Current = d.Tree.Parent(d.Current)
				p.endAttemptProcess(d.Current)
				continue
			}
			// The attempt on the root ending without a retry ends the
			// sequencing session.
			if d.Current == d.Tree.Root() && seqReq != seqRetry {
				seqReq = seqExit
			}
			return seqReq, nil
		}

	case termExitAll:
		return p.terminateExitAll(seqNone)

	case termSuspendAll:
		cur := d.activity(d.Current)
		if cur.DataModel.ActivityIsActive || cur.DataModel.ActivityIsSuspended {
			d.Suspended = d.Current
		} else {
			if d.Current == d.Tree.Root() {
				return seqNone, newSequencingError(CodeNothingToSuspend, p.cmd, cur.Key)
			}
			d.Suspended = d.Tree.Parent(d.Current)
		}
		for i := d.Suspended; i != tree.None; i = d.Tree.Parent(i) {
			a := d.activity(i)
			a.DataModel.ActivityIsSuspended = true
			a.DataModel.ActivityIsActive = false
			d.markDirty(i)
		}
		if d.Tree.IsLeaf(d.Suspended) {
			p.finalizeDataModelPriorToExit(d.Suspended)
		}
		rollupFromActivity(d, d.Suspended)
		d.Current = d.Tree.Root()
		return seqExit, nil

	case termAbandon:
		d.activity(d.Current).DataModel.ActivityIsActive = false
		d.markDirty(d.Current)
		rollupFromActivity(d, d.Current)
		return seqNone, nil

	case termAbandonAll:
		for i := d.Current; i != tree.None; i = d.Tree.Parent(i) {
			d.activity(i).DataModel.ActivityIsActive = false
			d.markDirty(i)
		}
		if d.Current != tree.None {
			rollupFromActivity(d, d.Current)
		}
		d.Current = d.Tree.Root()
		return seqExit, nil
	}
	return seqReq, nil
}

// terminateExitAll ends every open attempt up to and including the root.
func (p *seqProc) terminateExitAll(pending seqRequest) (seqRequest, error) {
	d := p.d
	if d.activity(d.Current).DataModel.ActivityIsActive {
		p.endAttemptProcess(d.Current)
	}
	p.terminateDescendentAttempts(d.Current, d.Tree.Root())
	p.endAttemptProcess(d.Tree.Root())
	d.Current = d.Tree.Root()
	if pending == seqNone {
		pending = seqExit
	}
	return pending, nil
}

// sequencingPostConditionRules evaluates the current activity's
// post-condition rules into follow-up requests. Suspended activities are
// left alone.
func (p *seqProc) sequencingPostConditionRules(i int) (seqRequest, termRequest) {
	a := p.d.activity(i)
	if a.DataModel.ActivityIsSuspended {
		return seqNone, termNone
	}
	switch sequencingRulesCheck(a, a.Sequencing.PostConditionRules, "") {
	case model.ActionRetry:
		p.d.logSequencing("post-condition requested retry", "activity", a.Key)
		return seqRetry, termNone
	case model.ActionContinue:
		p.d.logSequencing("post-condition requested continue", "activity", a.Key)
		return seqContinue, termNone
	case model.ActionPrevious:
		p.d.logSequencing("post-condition requested previous", "activity", a.Key)
		return seqPrevious, termNone
	case model.ActionExitParent:
		return seqNone, termExitParent
	case model.ActionExitAll:
		return seqNone, termExitAll
	case model.ActionRetryAll:
		return seqRetry, termExitAll
	default:
		return seqNone, termNone
	}
}

// sequencingExitActionRules checks the current activity's ancestors,
// root first, for a firing exit rule and terminates down to it.
func (p *seqProc) sequencingExitActionRules() {
	d := p.d
	var path []int
	for i := d.Tree.Parent(d.Current); i != tree.None; i = d.Tree.Parent(i) {
		path = append(path, i)
	}
	for k := len(path) - 1; k >= 0; k-- {
		a := d.activity(path[k])
		if sequencingRulesCheck(a, a.Sequencing.ExitConditionRules, model.ActionExit) == model.ActionExit {
			p.d.logSequencing("exit rule fired", "activity", a.Key)
			p.terminateDescendentAttempts(d.Current, path[k])
			p.endAttemptProcess(path[k])
			d.Current = path[k]
			return
		}
	}
}

// terminateDescendentAttempts ends the open attempts between the current
// activity and the common ancestor with the target, both exclusive.
func (p *seqProc) terminateDescendentAttempts(current, target int) {
	d := p.d
	ca := d.Tree.FindCommonAncestor(current, target)
	if ca == current {
		return
	}
	for i := d.Tree.Parent(current); i != ca; i = d.Tree.Parent(i) {
		p.endAttemptProcess(i)
	}
}

// endAttemptProcess closes the attempt on one activity and rolls its
// status up.
func (p *seqProc) endAttemptProcess(i int) {
	d := p.d
	a := d.activity(i)
	if d.Tree.IsLeaf(i) {
		p.finalizeDataModelPriorToExit(i)
	} else {
		a.DataModel.ActivityIsSuspended = false
		for _, c := range d.Tree.Children(i) {
			if d.activity(c).DataModel.ActivityIsSuspended {
				a.DataModel.ActivityIsSuspended = true
				break
			}
		}
	}
	// Active must drop before rollup runs.
	a.DataModel.ActivityIsActive = false
	d.markDirty(i)
	rollupFromActivity(d, i)
}

// finalizeDataModelPriorToExit folds the content-reported status into
// the primary objective and applies the sequencer defaults for tracked
// activities whose content does not set its own status.
func (p *seqProc) finalizeDataModelPriorToExit(i int) {
	d := p.d
	a := d.activity(i)
	dm := &a.DataModel
	if a.Sequencing.Tracked {
		obj := dm.PrimaryObjective()
		if dm.SuccessStatus != model.SuccessUnknown {
			obj.ProgressStatus = true
			obj.SuccessStatus = dm.SuccessStatus
		}
		if dm.ScaledScore != nil {
			v := *dm.ScaledScore
			obj.ScaledScore = &v
		}
		if !dm.ActivityIsSuspended {
			if !dm.AttemptProgressStatus && !a.Sequencing.CompletionSetByContent {
				dm.AttemptProgressStatus = true
				dm.CompletionStatus = model.CompletionCompleted
			}
			if !obj.ProgressStatus && !a.Sequencing.ObjectiveSetByContent {
				obj.ProgressStatus = true
				obj.SuccessStatus = model.SuccessPassed
			}
		}
		writeGlobalObjectives(d, i)
	}
	dm.TotalTime += dm.SessionTime
	dm.SessionTime = 0
	d.markDirty(i)
}

// processSequencingRequest resolves a sequencing request into a delivery
// request or a session exit.
func (p *seqProc) processSequencingRequest(req seqRequest, dest int) (int, bool, error) {
	d := p.d
	switch req {
	case seqStart:
		target, err := p.flowForward(d.Tree.Root(), true)
		if err != nil {
			return tree.None, false, newSequencingError(CodeNothingToDeliver, p.cmd, "")
		}
		return target, false, nil

	case seqResumeAll:
		if d.Suspended == tree.None {
			return tree.None, false, newSequencingError(CodeNoSuspendedActivity, p.cmd, "")
		}
		return d.Suspended, false, nil

	case seqContinue:
		target, err := p.flowForward(d.Current, false)
		if err != nil {
			return tree.None, false, err
		}
		return target, false, nil

	case seqPrevious:
		target, err := p.flowBackward(d.Current)
		if err != nil {
			return tree.None, false, err
		}
		return target, false, nil

	case seqChoice:
		target, err := p.choiceActivityTraversal(dest)
		if err != nil {
			return tree.None, false, err
		}
		return target, false, nil

	case seqRetry:
		if d.Current == tree.None {
			return tree.None, false, newSequencingError(CodeNoCurrentActivity, p.cmd, "")
		}
		if d.Tree.IsLeaf(d.Current) {
			return d.Current, false, nil
		}
		target, err := p.flowForward(d.Current, true)
		if err != nil {
			return tree.None, false, err
		}
		return target, false, nil

	case seqExit:
		return tree.None, true, nil
	}
	return tree.None, false, nil
}

// flowReachable reports whether every cluster above the leaf permits
// flowing into its children.
func (p *seqProc) flowReachable(leaf int) bool {
	for i := p.d.Tree.Parent(leaf); i != tree.None; i = p.d.Tree.Parent(i) {
		if !p.d.activity(i).Sequencing.Flow {
			return false
		}
	}
	return true
}

// deliverable reports whether an activity can be the target of a
// delivery request: a leaf whose attempt limit is not exhausted.
func (p *seqProc) deliverable(i int) bool {
	if !p.d.Tree.IsLeaf(i) {
		return false
	}
	a := p.d.activity(i)
	if a.Sequencing.AttemptLimit > 0 && a.DataModel.ActivityAttemptCount >= a.Sequencing.AttemptLimit {
		return false
	}
	return true
}

// flowForward finds the next deliverable leaf after from in preorder
// (or within from's subtree when enter is set), honoring cluster flow.
func (p *seqProc) flowForward(from int, enter bool) (int, error) {
	d := p.d
	start := from
	if !enter {
		// Skip the whole subtree of from.
		start = from
		for {
			n := d.Tree.Next(start)
			if n == tree.None {
				return tree.None, newSequencingError(CodeNoNextActivity, p.cmd, d.activity(from).Key)
			}
			if !d.Tree.IsDescendant(from, n) {
				start = n
				break
			}
			start = n
		}
	} else {
		start = d.Tree.Next(from)
		if start == tree.None {
			if p.deliverable(from) && p.flowReachable(from) {
				return from, nil
			}
			return tree.None, newSequencingError(CodeNoNextActivity, p.cmd, d.activity(from).Key)
		}
	}
	for i := start; i != tree.None; i = d.Tree.Next(i) {
		if enter && !d.Tree.IsDescendant(from, i) && from != d.Tree.Root() {
			break
		}
		if p.deliverable(i) && p.flowReachable(i) {
			return i, nil
		}
	}
	return tree.None, newSequencingError(CodeNoNextActivity, p.cmd, d.activity(from).Key)
}

// flowBackward finds the nearest deliverable leaf before the current
// activity, honoring flow and forward-only clusters. A forward-only
// common ancestor makes the backward sibling step illegal, so such
// candidates are unreachable.
func (p *seqProc) flowBackward(from int) (int, error) {
	d := p.d
	for i := d.Tree.Prev(from); i != tree.None; i = d.Tree.Prev(i) {
		if !p.deliverable(i) || !p.flowReachable(i) {
			continue
		}
		ca := d.Tree.FindCommonAncestor(from, i)
		if d.activity(ca).Sequencing.ForwardOnly {
			continue
		}
		return i, nil
	}
	return tree.None, newSequencingError(CodeNoPreviousActivity, p.cmd, d.activity(from).Key)
}

// choiceActivityTraversal resolves a choice target to a deliverable
// leaf: the target itself, or a flow into a cluster target.
func (p *seqProc) choiceActivityTraversal(dest int) (int, error) {
	d := p.d
	if d.Tree.IsLeaf(dest) {
		if !p.deliverable(dest) {
			return tree.None, newSequencingError(CodeChoiceTargetUndeliverable, p.cmd, d.activity(dest).Key)
		}
		return dest, nil
	}
	if !d.activity(dest).Sequencing.Flow {
		return tree.None, newSequencingError(CodeChoiceIntoClusterNoFlow, p.cmd, d.activity(dest).Key)
	}
	target, err := p.flowForward(dest, true)
	if err != nil {
		return tree.None, newSequencingError(CodeChoiceTargetUndeliverable, p.cmd, d.activity(dest).Key)
	}
	return target, nil
}

// contentDeliveryEnvironment opens the attempt path for the activity
// identified for delivery.
func (p *seqProc) contentDeliveryEnvironment(delivery int) error {
	d := p.d
	if d.Current != tree.None && d.activity(d.Current).DataModel.ActivityIsActive {
		return newSequencingError(CodeCurrentActivityIsActive, p.cmd, d.activity(d.Current).Key)
	}
	if delivery != d.Suspended {
		p.clearSuspendedActivity(delivery)
	} else {
		d.Suspended = tree.None
	}
	if d.Current != tree.None {
		p.terminateDescendentAttempts(d.Current, delivery)
	}
	d.Current = delivery

	// Open attempts along the path from the root to the delivered
	// activity.
	var path []int
	for i := delivery; i != tree.None; i = d.Tree.Parent(i) {
		path = append(path, i)
	}
	for k := len(path) - 1; k >= 0; k-- {
		i := path[k]
		a := d.activity(i)
		if a.DataModel.ActivityIsActive {
			continue
		}
		a.DataModel.ActivityIsActive = true
		if a.Sequencing.Tracked {
			if a.DataModel.ActivityIsSuspended {
				// Resuming a suspended attempt: no new attempt begins.
				a.DataModel.ActivityIsSuspended = false
			} else {
				a.DataModel.ActivityAttemptCount++
				if a.DataModel.ActivityAttemptCount == 1 {
					a.DataModel.ActivityProgressStatus = true
				}
				if a.Sequencing.UseCurrentAttemptProgressInfo {
					a.DataModel.ClearAttemptProgressInfo()
				}
				if a.Sequencing.UseCurrentAttemptObjectiveInfo {
					a.DataModel.ClearAttemptObjectiveInfo()
				}
				if !d.Tree.IsLeaf(i) {
					d.Tree.RandomizeClusterOnNewAttempt(i, p.rnd)
				}
				readGlobalObjectives(d, i)
			}
		}
		d.markDirty(i)
	}
	return nil
}

// clearSuspendedActivity clears suspension flags between the suspended
// activity and its common ancestor with the newly delivered activity.
func (p *seqProc) clearSuspendedActivity(delivery int) {
	d := p.d
	if d.Suspended == tree.None {
		return
	}
	ca := d.Tree.FindCommonAncestor(delivery, d.Suspended)
	stop := d.Tree.Parent(ca)
	for i := d.Suspended; i != stop; i = d.Tree.Parent(i) {
		a := d.activity(i)
		if d.Tree.IsLeaf(i) {
			a.DataModel.ActivityIsSuspended = false
		} else {
			clear := true
			for _, c := range d.Tree.Children(i) {
				if d.activity(c).DataModel.ActivityIsSuspended {
					clear = false
					break
				}
			}
			if clear {
				a.DataModel.ActivityIsSuspended = false
			}
		}
		d.markDirty(i)
	}
	d.Suspended = tree.None
}
