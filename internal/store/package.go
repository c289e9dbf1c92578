package store

import (
	"context"
	"fmt"

	"github.com/roach88/sequent/internal/model"
)

// Learner is a row of the learners table.
type Learner struct {
	ID   int64
	Key  string
	Name string
}

// CreateLearner inserts a learner and returns its id. The key must be
// unique across the store.
func (s *Store) CreateLearner(ctx context.Context, key, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO learners (key, name) VALUES (?, ?)
	`, key, name)
	if err != nil {
		return 0, fmt.Errorf("create learner: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create learner: %w", err)
	}
	return id, nil
}

// GetLearner loads a learner row by id.
func (s *Store) GetLearner(ctx context.Context, id int64) (*Learner, error) {
	l := &Learner{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, key, name FROM learners WHERE id = ?
	`, id).Scan(&l.ID, &l.Key, &l.Name)
	if err != nil {
		return nil, NewNotFoundError("learner", id)
	}
	return l, nil
}

// GetLearnerByKey loads a learner row by its unique key.
func (s *Store) GetLearnerByKey(ctx context.Context, key string) (*Learner, error) {
	l := &Learner{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, key, name FROM learners WHERE key = ?
	`, key).Scan(&l.ID, &l.Key, &l.Name)
	if err != nil {
		return nil, NewNotFoundError("learner", 0)
	}
	return l, nil
}

// Package is the metadata of one imported content package.
type Package struct {
	ID    int64
	GUID  string
	Title string

	Format model.PackageFormat

	// ObjectivesGlobalToSystem scopes the package's global objectives to
	// the learner across the whole store instead of per organization.
	ObjectivesGlobalToSystem bool
}

// PackageActivityRow is one flat manifest activity as produced by the
// package import boundary. ParentKey names the parent row within the
// same package; empty for the organization root.
type PackageActivityRow struct {
	ID        int64
	ParentKey string

	Key       string
	Title     string
	Placement int

	ResourceType model.ResourceType
	ResourceKey  string
	Visible      bool

	Sequencing model.SequencingInfo
	Objectives []model.Objective
}

// ImportPackage writes a package and its activity rows in one
// transaction. Rows must be ordered so every parent precedes its
// children (document order satisfies this). Returns the package id and
// the root activity id.
func (s *Store) ImportPackage(ctx context.Context, pkg *Package, rows []PackageActivityRow) (packageID, rootActivityID int64, err error) {
	if len(rows) == 0 {
		return 0, 0, fmt.Errorf("import package: no activities")
	}

	job, err := s.BeginJob(ctx, Serializable)
	if err != nil {
		return 0, 0, fmt.Errorf("import package: %w", err)
	}
	defer job.Rollback()

	global := 0
	if pkg.ObjectivesGlobalToSystem {
		global = 1
	}
	pkgRef := job.AddItem(`
		INSERT INTO packages (guid, title, format, objectives_global_to_system)
		VALUES (?, ?, ?, ?)
	`, pkg.GUID, pkg.Title, string(pkg.Format), global)

	// Parents resolve through ItemRefs: rows arrive parents-first, so
	// each ParentKey already has a queued insert.
	refByKey := make(map[string]ItemRef, len(rows))
	for _, row := range rows {
		seqJSON, err := marshalSequencing(row.Sequencing)
		if err != nil {
			return 0, 0, fmt.Errorf("import package: activity %q: %w", row.Key, err)
		}
		objJSON, err := marshalObjectives(row.Objectives)
		if err != nil {
			return 0, 0, fmt.Errorf("import package: activity %q: %w", row.Key, err)
		}

		var parent any = int64(0)
		if row.ParentKey != "" {
			ref, ok := refByKey[row.ParentKey]
			if !ok {
				return 0, 0, fmt.Errorf("import package: activity %q: unknown parent %q", row.Key, row.ParentKey)
			}
			parent = ref
		}
		visible := 0
		if row.Visible {
			visible = 1
		}
		refByKey[row.Key] = job.AddItem(`
			INSERT INTO package_activities
			(package_id, parent_id, key, title, placement, resource_type, resource_key, visible, sequencing, objectives)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, pkgRef, parent, row.Key, row.Title, row.Placement,
			string(row.ResourceType), row.ResourceKey, visible, seqJSON, objJSON)
	}

	results, err := job.Execute(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("import package: %w", err)
	}
	if err := job.Commit(); err != nil {
		return 0, 0, fmt.Errorf("import package: %w", err)
	}

	pkg.ID = results[int(pkgRef)].LastInsertID
	return pkg.ID, results[int(refByKey[rows[0].Key])].LastInsertID, nil
}

// GetPackage loads package metadata by id.
func (s *Store) GetPackage(ctx context.Context, id int64) (*Package, error) {
	pkg := &Package{}
	var format string
	var global int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, guid, title, format, objectives_global_to_system
		FROM packages WHERE id = ?
	`, id).Scan(&pkg.ID, &pkg.GUID, &pkg.Title, &format, &global)
	if err != nil {
		return nil, NewNotFoundError("package", id)
	}
	pkg.Format = model.PackageFormat(format)
	pkg.ObjectivesGlobalToSystem = global != 0
	return pkg, nil
}
