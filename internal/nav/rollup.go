package nav

import (
	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/tree"
)

// Rollup aggregates child completion/objective status into ancestors.
// The evaluator is a pure function of the subtree's current data-model
// values; it re-runs bottom-up whenever an activity's status changes
// during termination processing.

// rollupFromActivity re-evaluates rollup for the given activity and
// every ancestor up to the root, then mirrors the root's result onto the
// attempt row.
func rollupFromActivity(d *Data, from int) {
	for i := from; i != tree.None; i = d.Tree.Parent(i) {
		if !d.Tree.IsLeaf(i) {
			measureRollup(d, i)
			objectiveRollup(d, i)
			progressRollup(d, i)
		}
		d.markDirty(i)
	}
	mirrorRootStatus(d)
}

// mirrorRootStatus copies the root's rolled-up status onto the attempt.
func mirrorRootStatus(d *Data) {
	root := d.RootActivity()
	obj := root.DataModel.PrimaryObjective()
	at := d.Attempt

	if obj.ProgressStatus && at.SuccessStatus != obj.SuccessStatus {
		at.SuccessStatus = obj.SuccessStatus
		d.statusChanged = true
	}
	if root.DataModel.AttemptProgressStatus && at.CompletionStatus != root.DataModel.CompletionStatus {
		at.CompletionStatus = root.DataModel.CompletionStatus
		d.statusChanged = true
	}
	if obj.ScaledScore != nil {
		points := *obj.ScaledScore * 100
		if at.TotalPoints == nil || *at.TotalPoints != points {
			at.TotalPoints = &points
			d.totalPointsChanged = true
		}
	}
}

// contributesToObjectiveRollup reports whether a child participates in
// its parent's objective/measure rollup.
func contributesToObjectiveRollup(a *model.Activity) bool {
	return a.Sequencing.Tracked && a.Sequencing.RollupObjectiveSatisfied
}

// contributesToProgressRollup reports whether a child participates in
// its parent's completion rollup.
func contributesToProgressRollup(a *model.Activity) bool {
	return a.Sequencing.Tracked && a.Sequencing.RollupProgressCompletion
}

// measureRollup computes the weighted average of child measures onto the
// parent's primary objective. The measure stays unknown when no child
// contributes a known measure.
func measureRollup(d *Data, i int) {
	var sum, weight float64
	counted := false
	for _, c := range d.Tree.Children(i) {
		child := d.activity(c)
		if !contributesToObjectiveRollup(child) || child.Sequencing.ObjectiveMeasureWeight <= 0 {
			continue
		}
		weight += child.Sequencing.ObjectiveMeasureWeight
		obj := child.DataModel.PrimaryObjective()
		if obj.ScaledScore != nil {
			sum += *obj.ScaledScore * child.Sequencing.ObjectiveMeasureWeight
			counted = true
		}
	}
	obj := d.activity(i).DataModel.PrimaryObjective()
	if !counted || weight == 0 {
		obj.ScaledScore = nil
		return
	}
	measure := sum / weight
	obj.ScaledScore = &measure
}

// objectiveRollup sets the parent's satisfied status, either from the
// rolled-up measure (satisfiedByMeasure) or from the rollup rule set,
// falling back to the default all-satisfied rule.
func objectiveRollup(d *Data, i int) {
	a := d.activity(i)
	obj := a.DataModel.PrimaryObjective()

	if a.Sequencing.SatisfiedByMeasure {
		if obj.ScaledScore == nil {
			obj.ProgressStatus = false
			obj.SuccessStatus = model.SuccessUnknown
			return
		}
		obj.ProgressStatus = true
		if *obj.ScaledScore >= a.Sequencing.MinNormalizedMeasure {
			obj.SuccessStatus = model.SuccessPassed
		} else {
			obj.SuccessStatus = model.SuccessFailed
		}
		return
	}

	applied := false
	for _, rule := range a.Sequencing.RollupRules {
		if rule.Action != model.RollupSatisfied && rule.Action != model.RollupNotSatisfied {
			continue
		}
		applied = true
		if evaluateRollupRule(d, i, rule, contributesToObjectiveRollup) {
			obj.ProgressStatus = true
			if rule.Action == model.RollupSatisfied {
				obj.SuccessStatus = model.SuccessPassed
			} else {
				obj.SuccessStatus = model.SuccessFailed
			}
		}
	}
	if applied {
		return
	}

	// Default: status is known once every contributing child's status is
	// known; satisfied only if all of them are satisfied.
	allKnown, allSatisfied, anyChild := true, true, false
	for _, c := range d.Tree.Children(i) {
		child := d.activity(c)
		if !contributesToObjectiveRollup(child) {
			continue
		}
		anyChild = true
		co := child.DataModel.PrimaryObjective()
		if !co.ProgressStatus {
			allKnown = false
			continue
		}
		if co.SuccessStatus != model.SuccessPassed {
			allSatisfied = false
		}
	}
	if !anyChild || !allKnown {
		return
	}
	obj.ProgressStatus = true
	if allSatisfied {
		obj.SuccessStatus = model.SuccessPassed
	} else {
		obj.SuccessStatus = model.SuccessFailed
	}
}

// progressRollup sets the parent's completion status from the rollup
// rule set, falling back to the default all-completed rule.
func progressRollup(d *Data, i int) {
	a := d.activity(i)
	dm := &a.DataModel

	applied := false
	for _, rule := range a.Sequencing.RollupRules {
		if rule.Action != model.RollupCompleted && rule.Action != model.RollupIncomplete {
			continue
		}
		applied = true
		if evaluateRollupRule(d, i, rule, contributesToProgressRollup) {
			dm.AttemptProgressStatus = true
			if rule.Action == model.RollupCompleted {
				dm.CompletionStatus = model.CompletionCompleted
			} else {
				dm.CompletionStatus = model.CompletionIncomplete
			}
		}
	}
	if applied {
		return
	}

	allKnown, allCompleted, anyChild := true, true, false
	for _, c := range d.Tree.Children(i) {
		child := d.activity(c)
		if !contributesToProgressRollup(child) {
			continue
		}
		anyChild = true
		if !child.DataModel.AttemptProgressStatus {
			allKnown = false
			continue
		}
		if child.DataModel.CompletionStatus != model.CompletionCompleted {
			allCompleted = false
		}
	}
	if !anyChild || !allKnown {
		return
	}
	dm.AttemptProgressStatus = true
	if allCompleted {
		dm.CompletionStatus = model.CompletionCompleted
	} else {
		dm.CompletionStatus = model.CompletionIncomplete
	}
}

// evaluateRollupRule applies one rule's child-set policy over the
// children that contribute under the given predicate.
func evaluateRollupRule(d *Data, i int, rule model.RollupRule, contributes func(*model.Activity) bool) bool {
	total, matched := 0, 0
	for _, c := range d.Tree.Children(i) {
		child := d.activity(c)
		if !contributes(child) {
			continue
		}
		total++
		if evaluateRollupConditions(child, rule) {
			matched++
		}
	}
	if total == 0 {
		return false
	}
	switch rule.ChildActivitySet {
	case model.ChildSetAll:
		return matched == total
	case model.ChildSetAny:
		return matched > 0
	case model.ChildSetNone:
		return matched == 0
	case model.ChildSetAtLeastCount:
		return matched >= rule.MinimumCount
	case model.ChildSetAtLeastPercent:
		return float64(matched)/float64(total) >= rule.MinimumPercent
	default:
		return false
	}
}

// evaluateRollupConditions evaluates a rule's conditions against one
// child, combined per the rule's combination (default all).
func evaluateRollupConditions(child *model.Activity, rule model.RollupRule) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	anyMode := rule.Combination == model.CombinationAny
	for _, cond := range rule.Conditions {
		v := evaluateRollupCondition(child, cond.Condition)
		if cond.Not {
			v = !v
		}
		if anyMode && v {
			return true
		}
		if !anyMode && !v {
			return false
		}
	}
	return !anyMode
}

func evaluateRollupCondition(child *model.Activity, condition string) bool {
	dm := &child.DataModel
	obj := dm.PrimaryObjective()
	switch condition {
	case "satisfied":
		return obj.ProgressStatus && obj.SuccessStatus == model.SuccessPassed
	case "objectiveStatusKnown":
		return obj.ProgressStatus
	case "objectiveMeasureKnown":
		return obj.ScaledScore != nil
	case "completed":
		return dm.AttemptProgressStatus && dm.CompletionStatus == model.CompletionCompleted
	case "attempted":
		return dm.ActivityProgressStatus
	default:
		return false
	}
}

// sequencingRulesCheck evaluates condition rules on an activity itself
// and returns the first matching rule's action, or "" when none fire.
// When want is non-empty only rules with that action are considered.
func sequencingRulesCheck(a *model.Activity, rules []model.ConditionRule, want model.RuleAction) model.RuleAction {
	for _, rule := range rules {
		if want != "" && rule.Action != want {
			continue
		}
		v := evaluateActivityCondition(a, rule.Condition)
		if rule.Not {
			v = !v
		}
		if v {
			return rule.Action
		}
	}
	return ""
}

func evaluateActivityCondition(a *model.Activity, condition string) bool {
	dm := &a.DataModel
	obj := dm.PrimaryObjective()
	switch condition {
	case "always":
		return true
	case "satisfied":
		return obj.ProgressStatus && obj.SuccessStatus == model.SuccessPassed
	case "completed":
		return dm.AttemptProgressStatus && dm.CompletionStatus == model.CompletionCompleted
	case "attempted":
		return dm.ActivityProgressStatus
	case "attemptLimitExceeded":
		return a.Sequencing.AttemptLimit > 0 && dm.ActivityAttemptCount >= a.Sequencing.AttemptLimit
	default:
		return false
	}
}
