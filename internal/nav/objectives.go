package nav

import (
	"github.com/roach88/sequent/internal/model"
)

// readGlobalObjectives loads mapped global objective values into an
// activity's objectives. Read maps are not honored for non-tracked
// activities.
func readGlobalObjectives(d *Data, i int) {
	a := d.activity(i)
	if !a.Sequencing.Tracked {
		return
	}
	dirty := false
	for k := range a.DataModel.Objectives {
		obj := &a.DataModel.Objectives[k]
		if obj.GlobalKey == "" {
			continue
		}
		g, ok := d.Globals[obj.GlobalKey]
		if !ok {
			continue
		}
		if obj.ReadSatisfiedStatus && g.SatisfiedStatus != nil {
			obj.ProgressStatus = true
			if *g.SatisfiedStatus {
				obj.SuccessStatus = model.SuccessPassed
			} else {
				obj.SuccessStatus = model.SuccessFailed
			}
			if i == d.Tree.Root() && obj.Primary {
				d.Attempt.SuccessStatus = obj.SuccessStatus
				d.statusChanged = true
			}
			dirty = true
		}
		if obj.ReadNormalizedMeasure && g.NormalizedMeasure != nil {
			v := *g.NormalizedMeasure
			obj.ScaledScore = &v
			if i == d.Tree.Root() && obj.Primary {
				points := v * 100
				d.Attempt.TotalPoints = &points
				d.totalPointsChanged = true
			}
			dirty = true
		}
	}
	if dirty {
		d.markDirty(i)
	}
}

// writeGlobalObjectives propagates an activity's objective status out to
// its mapped global objectives, honoring the per-mapping write gates.
// Only the Execute navigator ever reaches this; Review and RandomAccess
// read globals but never finalize attempts.
func writeGlobalObjectives(d *Data, i int) {
	a := d.activity(i)
	for k := range a.DataModel.Objectives {
		obj := &a.DataModel.Objectives[k]
		if obj.GlobalKey == "" {
			continue
		}
		if !obj.WriteSatisfiedStatus && !obj.WriteNormalizedMeasure {
			continue
		}
		g, ok := d.Globals[obj.GlobalKey]
		if !ok {
			g = &GlobalObjective{Key: obj.GlobalKey}
			d.Globals[obj.GlobalKey] = g
		}
		if obj.WriteSatisfiedStatus && obj.ProgressStatus {
			satisfied := obj.SuccessStatus == model.SuccessPassed
			g.SatisfiedStatus = &satisfied
			g.Changed = true
		}
		if obj.WriteNormalizedMeasure && obj.ScaledScore != nil {
			v := *obj.ScaledScore
			g.NormalizedMeasure = &v
			g.Changed = true
		}
	}
}
