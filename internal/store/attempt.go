package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/nav"
	"github.com/roach88/sequent/internal/tree"
)

// CreateAttempt creates an attempt on the organization rooted at the
// given package activity, together with one attempt-activity row per
// activity that survives selection. The learner, package, and manifest
// reads, the selection/randomization decision, and the attempt and
// activity inserts all share one repeatable-read job: the tree is built
// between the job's read and write phases, so the inserted rows match
// the package snapshot the selection decision was taken from. Any
// failure before commit leaves no rows behind.
//
// On success the in-memory activity ids are backfilled from the insert
// results in execution order.
func (s *Store) CreateAttempt(ctx context.Context, learnerID, rootActivityID int64, flags model.LoggingFlags) (*model.Attempt, error) {
	job, err := s.BeginJob(ctx, RepeatableRead)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	defer job.Rollback()

	job.DemandRight(CreateAttemptRight, learnerID)
	learnerQ := job.Query(`SELECT id FROM learners WHERE id = ?`, learnerID)
	rootQ := job.Query(`
		SELECT pa.package_id, p.guid, p.format, p.objectives_global_to_system
		FROM package_activities pa
		JOIN packages p ON p.id = pa.package_id
		WHERE pa.id = ?
	`, rootActivityID)
	rowsQ := job.Query(`
		SELECT id, parent_id, key, title, placement, resource_type, resource_key,
		       visible, sequencing, objectives
		FROM package_activities
		WHERE package_id = (SELECT package_id FROM package_activities WHERE id = ?)
		ORDER BY id
	`, rootActivityID)

	results, err := job.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if len(results[learnerQ].Rows) == 0 {
		return nil, NewNotFoundError("learner", learnerID)
	}
	if len(results[rootQ].Rows) == 0 {
		return nil, NewNotFoundError("activity", rootActivityID)
	}

	rootRow := results[rootQ].Rows[0]
	packageID := colInt64(rootRow[0])
	format := model.PackageFormat(colString(rootRow[2]))
	globalToSystem := colBool(rootRow[3])

	treeRows, err := packageTreeRows(results[rowsQ].Rows)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	tr, err := tree.Build(treeRows, rootActivityID)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	// Selection prunes and randomization reorders exactly once, here.
	tr.ApplyConstructionRandomization(s.rnd)

	attempt := &model.Attempt{
		GUID:                     uuid.NewString(),
		LearnerID:                learnerID,
		PackageID:                packageID,
		RootActivityID:           rootActivityID,
		PackageFormat:            format,
		ObjectivesGlobalToSystem: globalToSystem,
		Status:                   model.AttemptActive,
		StartedAt:                s.clock.Now(),
		LoggingFlags:             flags,
		CompletionStatus:         model.CompletionUnknown,
		SuccessStatus:            model.SuccessUnknown,
	}

	attemptRef := job.AddItem(`
		INSERT INTO attempts
		(guid, learner_id, package_id, root_activity_id, package_format,
		 objectives_global_to_system, status, started_at, logging_flags,
		 completion_status, success_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, attempt.GUID, learnerID, packageID, rootActivityID, string(format),
		boolCol(globalToSystem), string(attempt.Status), formatTime(attempt.StartedAt),
		int64(flags), string(attempt.CompletionStatus), string(attempt.SuccessStatus))

	order := tr.PreOrder()
	refs := make(map[int]ItemRef, len(order))
	for _, i := range order {
		a := tr.Activity(i)
		seqJSON, err := marshalSequencing(a.Sequencing)
		if err != nil {
			return nil, fmt.Errorf("create attempt: activity %q: %w", a.Key, err)
		}
		objJSON, err := marshalObjectives(a.DataModel.Objectives)
		if err != nil {
			return nil, fmt.Errorf("create attempt: activity %q: %w", a.Key, err)
		}
		var parent any = int64(0)
		if p := tr.Parent(i); p != tree.None {
			parent = refs[p]
		}
		refs[i] = job.AddItem(`
			INSERT INTO attempt_activities
			(attempt_id, package_activity_id, parent_id, key, title, placement,
			 random_placement, resource_type, resource_key, visible, sequencing,
			 completion_status, success_status, objectives)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, attemptRef, a.PackageActivityID, parent, a.Key, a.Title, a.Placement,
			a.RandomPlacement, string(a.ResourceType), a.ResourceKey,
			boolCol(a.Visible), seqJSON,
			string(a.DataModel.CompletionStatus), string(a.DataModel.SuccessStatus), objJSON)
	}

	writeResults, err := job.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if err := job.Commit(); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	// Backfill store ids in execution order.
	attempt.ID = writeResults[int(attemptRef)].LastInsertID
	for _, i := range order {
		tr.Activity(i).ID = writeResults[int(refs[i])].LastInsertID
	}
	for _, i := range order {
		if p := tr.Parent(i); p != tree.None {
			tr.Activity(i).ParentID = tr.Activity(p).ID
		}
	}

	s.logger.Info("attempt created",
		"attempt", attempt.ID, "guid", attempt.GUID,
		"learner", learnerID, "root", rootActivityID,
		"activities", len(order))
	return attempt, nil
}

// packageTreeRows converts raw package_activities rows into tree rows
// with fresh per-attempt data models.
func packageTreeRows(raw [][]any) ([]tree.Row, error) {
	rows := make([]tree.Row, 0, len(raw))
	for _, r := range raw {
		seq, err := unmarshalSequencing(colString(r[8]))
		if err != nil {
			return nil, err
		}
		objs, err := unmarshalObjectives(colString(r[9]))
		if err != nil {
			return nil, err
		}
		for k := range objs {
			if objs[k].SuccessStatus == "" {
				objs[k].SuccessStatus = model.SuccessUnknown
			}
		}
		a := &model.Activity{
			PackageActivityID: colInt64(r[0]),
			Key:               colString(r[2]),
			Title:             colString(r[3]),
			Placement:         int(colInt64(r[4])),
			RandomPlacement:   -1,
			ResourceType:      model.ResourceType(colString(r[5])),
			ResourceKey:       colString(r[6]),
			Visible:           colBool(r[7]),
			Sequencing:        seq,
			DataModel: model.DataModel{
				CompletionStatus: model.CompletionUnknown,
				SuccessStatus:    model.SuccessUnknown,
				Objectives:       objs,
			},
		}
		rows = append(rows, tree.Row{
			Activity:    a,
			RefID:       colInt64(r[0]),
			ParentRefID: colInt64(r[1]),
		})
	}
	return rows, nil
}

// LoadAttempt materializes an attempt's tree, row, and global objective
// scope in one read job.
func (s *Store) LoadAttempt(ctx context.Context, attemptID int64) (*nav.LoadResult, error) {
	job, err := s.BeginJob(ctx, RepeatableRead)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	defer job.Rollback()

	attemptQ := job.Query(`
		SELECT id, guid, learner_id, package_id, root_activity_id, package_format,
		       objectives_global_to_system, status, started_at, ended_at,
		       logging_flags, current_activity_id, suspended_activity_id,
		       completion_status, success_status, total_points
		FROM attempts WHERE id = ?
	`, attemptID)
	activitiesQ := job.Query(`
		SELECT id, package_activity_id, parent_id, key, title, placement,
		       random_placement, resource_type, resource_key, visible, sequencing,
		       is_active, is_suspended, attempt_count, activity_progress,
		       attempt_progress, completion_status, success_status, scaled_score,
		       objectives, session_time_ms, total_time_ms
		FROM attempt_activities WHERE attempt_id = ?
		ORDER BY id
	`, attemptID)
	globalsQ := job.Query(`
		SELECT key, satisfied, measure FROM global_objectives
		WHERE learner_id = (SELECT learner_id FROM attempts WHERE id = ?)
		  AND scope_package_id = (
			SELECT CASE WHEN objectives_global_to_system = 1 THEN 0 ELSE package_id END
			FROM attempts WHERE id = ?
		  )
	`, attemptID, attemptID)

	results, err := job.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if err := job.Commit(); err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if len(results[attemptQ].Rows) == 0 {
		return nil, NewNotFoundError("attempt", attemptID)
	}

	attempt, err := scanAttempt(results[attemptQ].Rows[0])
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	treeRows, rootRef, err := attemptTreeRows(results[activitiesQ].Rows)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	tr, err := tree.Build(treeRows, rootRef)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	globals := make(map[string]*nav.GlobalObjective, len(results[globalsQ].Rows))
	for _, r := range results[globalsQ].Rows {
		g := &nav.GlobalObjective{Key: colString(r[0])}
		if r[1] != nil {
			v := colBool(r[1])
			g.SatisfiedStatus = &v
		}
		g.NormalizedMeasure = colFloat(r[2])
		globals[g.Key] = g
	}

	return &nav.LoadResult{Tree: tr, Attempt: attempt, Globals: globals}, nil
}

func scanAttempt(r []any) (*model.Attempt, error) {
	startedAt, err := parseTime(colString(r[8]))
	if err != nil {
		return nil, err
	}
	var endedAt *time.Time
	if r[9] != nil {
		t, err := parseTime(colString(r[9]))
		if err != nil {
			return nil, err
		}
		endedAt = &t
	}
	return &model.Attempt{
		ID:                       colInt64(r[0]),
		GUID:                     colString(r[1]),
		LearnerID:                colInt64(r[2]),
		PackageID:                colInt64(r[3]),
		RootActivityID:           colInt64(r[4]),
		PackageFormat:            model.PackageFormat(colString(r[5])),
		ObjectivesGlobalToSystem: colBool(r[6]),
		Status:                   model.AttemptStatus(colString(r[7])),
		StartedAt:                startedAt,
		EndedAt:                  endedAt,
		LoggingFlags:             model.LoggingFlags(colInt64(r[10])),
		CurrentActivityID:        colInt64(r[11]),
		SuspendedActivityID:      colInt64(r[12]),
		CompletionStatus:         model.CompletionStatus(colString(r[13])),
		SuccessStatus:            model.SuccessStatus(colString(r[14])),
		TotalPoints:              colFloat(r[15]),
	}, nil
}

func attemptTreeRows(raw [][]any) ([]tree.Row, int64, error) {
	rows := make([]tree.Row, 0, len(raw))
	rootRef := int64(0)
	for _, r := range raw {
		seq, err := unmarshalSequencing(colString(r[10]))
		if err != nil {
			return nil, 0, err
		}
		objs, err := unmarshalObjectives(colString(r[19]))
		if err != nil {
			return nil, 0, err
		}
		id := colInt64(r[0])
		parentID := colInt64(r[2])
		if parentID == 0 {
			rootRef = id
		}
		a := &model.Activity{
			ID:                id,
			PackageActivityID: colInt64(r[1]),
			ParentID:          parentID,
			Key:               colString(r[3]),
			Title:             colString(r[4]),
			Placement:         int(colInt64(r[5])),
			RandomPlacement:   int(colInt64(r[6])),
			ResourceType:      model.ResourceType(colString(r[7])),
			ResourceKey:       colString(r[8]),
			Visible:           colBool(r[9]),
			Sequencing:        seq,
			DataModel: model.DataModel{
				ActivityIsActive:       colBool(r[11]),
				ActivityIsSuspended:    colBool(r[12]),
				ActivityAttemptCount:   int(colInt64(r[13])),
				ActivityProgressStatus: colBool(r[14]),
				AttemptProgressStatus:  colBool(r[15]),
				CompletionStatus:       model.CompletionStatus(colString(r[16])),
				SuccessStatus:          model.SuccessStatus(colString(r[17])),
				ScaledScore:            colFloat(r[18]),
				Objectives:             objs,
				SessionTime:            time.Duration(colInt64(r[20])) * time.Millisecond,
				TotalTime:              time.Duration(colInt64(r[21])) * time.Millisecond,
			},
		}
		rows = append(rows, tree.Row{Activity: a, RefID: id, ParentRefID: parentID})
	}
	return rows, rootRef, nil
}

// SaveDelta applies a navigator's change set in one job, all or
// nothing. An empty delta never opens a transaction.
func (s *Store) SaveDelta(ctx context.Context, attemptID int64, d *nav.Delta) error {
	if d.Empty() {
		return nil
	}
	job, err := s.BeginJob(ctx, Serializable)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	defer job.Rollback()

	for _, a := range d.Activities {
		objJSON, err := marshalObjectives(a.DataModel.Objectives)
		if err != nil {
			return fmt.Errorf("save attempt: activity %q: %w", a.Key, err)
		}
		job.UpdateItem(`
			UPDATE attempt_activities SET
				random_placement = ?, is_active = ?, is_suspended = ?,
				attempt_count = ?, activity_progress = ?, attempt_progress = ?,
				completion_status = ?, success_status = ?, scaled_score = ?,
				objectives = ?, session_time_ms = ?, total_time_ms = ?
			WHERE id = ?
		`, a.RandomPlacement, boolCol(a.DataModel.ActivityIsActive),
			boolCol(a.DataModel.ActivityIsSuspended), a.DataModel.ActivityAttemptCount,
			boolCol(a.DataModel.ActivityProgressStatus), boolCol(a.DataModel.AttemptProgressStatus),
			string(a.DataModel.CompletionStatus), string(a.DataModel.SuccessStatus),
			a.DataModel.ScaledScore, objJSON,
			a.DataModel.SessionTime.Milliseconds(), a.DataModel.TotalTime.Milliseconds(),
			a.ID)
	}

	if d.Attempt != nil {
		var endedAt any
		if d.Attempt.EndedAt != nil {
			endedAt = formatTime(*d.Attempt.EndedAt)
		}
		job.UpdateItem(`
			UPDATE attempts SET
				status = ?, ended_at = ?, current_activity_id = ?,
				suspended_activity_id = ?, completion_status = ?,
				success_status = ?, total_points = ?
			WHERE id = ?
		`, string(d.Attempt.Status), endedAt,
			d.Attempt.CurrentActivityID, d.Attempt.SuspendedActivityID,
			string(d.Attempt.CompletionStatus), string(d.Attempt.SuccessStatus),
			d.Attempt.TotalPoints, attemptID)
	}

	for _, g := range d.Globals {
		var satisfied any
		if g.SatisfiedStatus != nil {
			satisfied = boolCol(*g.SatisfiedStatus)
		}
		job.AddItem(`
			INSERT INTO global_objectives (learner_id, scope_package_id, key, satisfied, measure)
			VALUES (
				(SELECT learner_id FROM attempts WHERE id = ?),
				(SELECT CASE WHEN objectives_global_to_system = 1 THEN 0 ELSE package_id END
				 FROM attempts WHERE id = ?),
				?, ?, ?
			)
			ON CONFLICT(learner_id, scope_package_id, key) DO UPDATE SET
				satisfied = excluded.satisfied,
				measure = excluded.measure
		`, attemptID, attemptID, g.Key, satisfied, g.NormalizedMeasure)
	}

	if _, err := job.Execute(ctx); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	if err := job.Commit(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

// DeleteAttempt removes an attempt and its dependent rows. The learner
// must hold the delete right; the grants check and the delete share one
// job.
func (s *Store) DeleteAttempt(ctx context.Context, learnerID, attemptID int64) error {
	job, err := s.BeginJob(ctx, Serializable)
	if err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	defer job.Rollback()

	job.DemandRight(DeleteAttemptRight, learnerID)
	delQ := job.DeleteItem(`DELETE FROM attempts WHERE id = ?`, attemptID)

	results, err := job.Execute(ctx)
	if err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	if results[delQ].RowsAffected == 0 {
		return NewNotFoundError("attempt", attemptID)
	}
	if err := job.Commit(); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	s.logger.Info("attempt deleted", "attempt", attemptID)
	return nil
}

// attemptPersister binds a store and attempt id behind the navigator's
// persistence boundary.
type attemptPersister struct {
	st        *Store
	attemptID int64
}

// Persister returns the nav persistence boundary for one attempt.
func (s *Store) Persister(attemptID int64) nav.Persister {
	return &attemptPersister{st: s, attemptID: attemptID}
}

func (p *attemptPersister) LoadTree(ctx context.Context) (*nav.LoadResult, error) {
	return p.st.LoadAttempt(ctx, p.attemptID)
}

func (p *attemptPersister) SaveDelta(ctx context.Context, d *nav.Delta) error {
	return p.st.SaveDelta(ctx, p.attemptID, d)
}

func boolCol(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
