package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/store"
)

// compileMeta parses the `package` block.
func compileMeta(v cue.Value, meta *store.Package) error {
	pkgVal := v.LookupPath(cue.ParsePath("package"))
	if !pkgVal.Exists() {
		return &CompileError{
			Field:   "package",
			Message: "package block is required",
			Pos:     v.Pos(),
		}
	}

	guid, err := requiredString(pkgVal, "guid")
	if err != nil {
		return err
	}
	meta.GUID = guid

	title, err := requiredString(pkgVal, "title")
	if err != nil {
		return err
	}
	meta.Title = norm.NFC.String(title)

	format := string(model.FormatV1p3)
	if err := optionalString(pkgVal, "format", &format); err != nil {
		return err
	}
	switch model.PackageFormat(format) {
	case model.FormatV1p2, model.FormatV1p3:
		meta.Format = model.PackageFormat(format)
	default:
		return &CompileError{
			Field:   "package.format",
			Message: fmt.Sprintf("unknown package format %q", format),
			Pos:     pkgVal.Pos(),
		}
	}

	return optionalBool(pkgVal, "objectivesGlobalToSystem", &meta.ObjectivesGlobalToSystem)
}

// compileActivity parses one activity struct and, recursively, its
// children. Rows come out parents-first in document order.
func compileActivity(v cue.Value, parentKey string, placement int) ([]store.PackageActivityRow, error) {
	key, err := requiredString(v, "key")
	if err != nil {
		return nil, err
	}
	row := store.PackageActivityRow{
		ParentKey: parentKey,
		Key:       norm.NFC.String(key),
		Placement: placement,
		Visible:   true,
	}

	row.Title = row.Key
	var title string
	if err := optionalString(v, "title", &title); err != nil {
		return nil, err
	}
	if title != "" {
		row.Title = norm.NFC.String(title)
	}
	if err := optionalBool(v, "visible", &row.Visible); err != nil {
		return nil, err
	}

	if err := compileResource(v, &row); err != nil {
		return nil, err
	}

	row.Sequencing = model.DefaultSequencing()
	seqVal := v.LookupPath(cue.ParsePath("sequencing"))
	if seqVal.Exists() {
		if err := compileSequencing(seqVal, &row.Sequencing); err != nil {
			return nil, err
		}
	}

	objVal := v.LookupPath(cue.ParsePath("objectives"))
	if objVal.Exists() {
		row.Objectives, err = compileObjectives(objVal)
		if err != nil {
			return nil, err
		}
	}

	rows := []store.PackageActivityRow{row}
	childVal := v.LookupPath(cue.ParsePath("children"))
	if !childVal.Exists() {
		return rows, nil
	}
	iter, err := childVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	i := 0
	for iter.Next() {
		childRows, err := compileActivity(iter.Value(), row.Key, i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, childRows...)
		i++
	}
	return rows, nil
}

// compileResource parses the optional `resource` block. Activities
// without one are pure aggregation nodes.
func compileResource(v cue.Value, row *store.PackageActivityRow) error {
	resVal := v.LookupPath(cue.ParsePath("resource"))
	if !resVal.Exists() {
		row.ResourceType = model.ResourceNone
		return nil
	}

	typ, err := requiredString(resVal, "type")
	if err != nil {
		return err
	}
	switch model.ResourceType(typ) {
	case model.ResourceSco, model.ResourceWeb:
		row.ResourceType = model.ResourceType(typ)
	default:
		return &CompileError{
			Field:   "resource.type",
			Message: fmt.Sprintf("unknown resource type %q", typ),
			Pos:     resVal.Pos(),
		}
	}

	entry, err := requiredString(resVal, "entry")
	if err != nil {
		return err
	}
	row.ResourceKey = entry
	return nil
}

// compileSequencing overlays a manifest sequencing block onto the
// defaults. Every field is optional.
func compileSequencing(v cue.Value, seq *model.SequencingInfo) error {
	bools := []struct {
		name string
		dst  *bool
	}{
		{"choice", &seq.Choice},
		{"choiceExit", &seq.ChoiceExit},
		{"flow", &seq.Flow},
		{"forwardOnly", &seq.ForwardOnly},
		{"tracked", &seq.Tracked},
		{"completionSetByContent", &seq.CompletionSetByContent},
		{"objectiveSetByContent", &seq.ObjectiveSetByContent},
		{"reorderChildren", &seq.ReorderChildren},
		{"rollupObjectiveSatisfied", &seq.RollupObjectiveSatisfied},
		{"rollupProgressCompletion", &seq.RollupProgressCompletion},
		{"satisfiedByMeasure", &seq.SatisfiedByMeasure},
		{"useCurrentAttemptObjectiveInfo", &seq.UseCurrentAttemptObjectiveInfo},
		{"useCurrentAttemptProgressInfo", &seq.UseCurrentAttemptProgressInfo},
	}
	for _, b := range bools {
		if err := optionalBool(v, b.name, b.dst); err != nil {
			return err
		}
	}

	if err := optionalInt(v, "attemptLimit", &seq.AttemptLimit); err != nil {
		return err
	}
	if err := optionalInt(v, "selectionCount", &seq.SelectionCount); err != nil {
		return err
	}
	if err := optionalFloat(v, "objectiveMeasureWeight", &seq.ObjectiveMeasureWeight); err != nil {
		return err
	}
	if err := optionalFloat(v, "minNormalizedMeasure", &seq.MinNormalizedMeasure); err != nil {
		return err
	}

	if err := compileTiming(v, "selectionTiming", &seq.SelectionTiming); err != nil {
		return err
	}
	if err := compileTiming(v, "randomizationTiming", &seq.RandomizationTiming); err != nil {
		return err
	}

	var err error
	rulesVal := v.LookupPath(cue.ParsePath("rollupRules"))
	if rulesVal.Exists() {
		seq.RollupRules, err = compileRollupRules(rulesVal)
		if err != nil {
			return err
		}
	}
	exitVal := v.LookupPath(cue.ParsePath("exitConditionRules"))
	if exitVal.Exists() {
		seq.ExitConditionRules, err = compileConditionRules(exitVal, "exitConditionRules")
		if err != nil {
			return err
		}
	}
	postVal := v.LookupPath(cue.ParsePath("postConditionRules"))
	if postVal.Exists() {
		seq.PostConditionRules, err = compileConditionRules(postVal, "postConditionRules")
		if err != nil {
			return err
		}
	}
	return nil
}

func compileTiming(v cue.Value, name string, dst *model.Timing) error {
	var s string
	if err := optionalString(v, name, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	switch model.Timing(s) {
	case model.TimingNever, model.TimingOnce, model.TimingOnEachNewAttempt:
		*dst = model.Timing(s)
		return nil
	default:
		return &CompileError{
			Field:   name,
			Message: fmt.Sprintf("unknown timing %q", s),
			Pos:     v.Pos(),
		}
	}
}

func compileRollupRules(v cue.Value) ([]model.RollupRule, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var rules []model.RollupRule
	for iter.Next() {
		rv := iter.Value()
		rule := model.RollupRule{
			ChildActivitySet: model.ChildSetAll,
			Combination:      model.CombinationAll,
		}

		var set string
		if err := optionalString(rv, "childActivitySet", &set); err != nil {
			return nil, err
		}
		if set != "" {
			rule.ChildActivitySet = model.RollupChildSet(set)
		}
		if err := optionalInt(rv, "minimumCount", &rule.MinimumCount); err != nil {
			return nil, err
		}
		if err := optionalFloat(rv, "minimumPercent", &rule.MinimumPercent); err != nil {
			return nil, err
		}
		var comb string
		if err := optionalString(rv, "conditionCombination", &comb); err != nil {
			return nil, err
		}
		if comb != "" {
			rule.Combination = model.ConditionCombination(comb)
		}

		condVal := rv.LookupPath(cue.ParsePath("conditions"))
		if condVal.Exists() {
			condIter, err := condVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for condIter.Next() {
				cv := condIter.Value()
				var cond model.RollupCondition
				c, err := requiredString(cv, "condition")
				if err != nil {
					return nil, err
				}
				cond.Condition = c
				if err := optionalBool(cv, "not", &cond.Not); err != nil {
					return nil, err
				}
				rule.Conditions = append(rule.Conditions, cond)
			}
		}

		action, err := requiredString(rv, "action")
		if err != nil {
			return nil, err
		}
		rule.Action = model.RollupAction(action)
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileConditionRules(v cue.Value, field string) ([]model.ConditionRule, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var rules []model.ConditionRule
	for iter.Next() {
		rv := iter.Value()
		rule := model.ConditionRule{Combination: model.CombinationAll}

		cond, err := requiredString(rv, "condition")
		if err != nil {
			return nil, err
		}
		rule.Condition = cond
		if err := optionalBool(rv, "not", &rule.Not); err != nil {
			return nil, err
		}
		var comb string
		if err := optionalString(rv, "conditionCombination", &comb); err != nil {
			return nil, err
		}
		if comb != "" {
			rule.Combination = model.ConditionCombination(comb)
		}

		action, err := requiredString(rv, "action")
		if err != nil {
			return nil, err
		}
		rule.Action = model.RuleAction(action)
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileObjectives(v cue.Value) ([]model.Objective, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var objectives []model.Objective
	for iter.Next() {
		ov := iter.Value()
		obj := model.Objective{
			ReadSatisfiedStatus:   true,
			ReadNormalizedMeasure: true,
		}

		var key string
		if err := optionalString(ov, "key", &key); err != nil {
			return nil, err
		}
		obj.Key = norm.NFC.String(key)
		if err := optionalBool(ov, "primary", &obj.Primary); err != nil {
			return nil, err
		}

		var globalKey string
		if err := optionalString(ov, "globalKey", &globalKey); err != nil {
			return nil, err
		}
		obj.GlobalKey = norm.NFC.String(globalKey)
		if err := optionalBool(ov, "readSatisfiedStatus", &obj.ReadSatisfiedStatus); err != nil {
			return nil, err
		}
		if err := optionalBool(ov, "readNormalizedMeasure", &obj.ReadNormalizedMeasure); err != nil {
			return nil, err
		}
		if err := optionalBool(ov, "writeSatisfiedStatus", &obj.WriteSatisfiedStatus); err != nil {
			return nil, err
		}
		if err := optionalBool(ov, "writeNormalizedMeasure", &obj.WriteNormalizedMeasure); err != nil {
			return nil, err
		}
		obj.SuccessStatus = model.SuccessUnknown
		objectives = append(objectives, obj)
	}
	return objectives, nil
}

func requiredString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, name string, dst *string) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	s, err := fv.String()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = s
	return nil
}

func optionalBool(v cue.Value, name string, dst *bool) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	b, err := fv.Bool()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = b
	return nil
}

func optionalInt(v cue.Value, name string, dst *int) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	n, err := fv.Int64()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = int(n)
	return nil
}

func optionalFloat(v cue.Value, name string, dst *float64) error {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil
	}
	f, err := fv.Float64()
	if err != nil {
		return formatCUEError(err)
	}
	*dst = f
	return nil
}
