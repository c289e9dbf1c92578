package store

import (
	"context"
	"fmt"
)

// GrantRight grants a right to a learner. Granting twice is a no-op.
func (s *Store) GrantRight(ctx context.Context, learnerID int64, right Right) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rights (learner_id, right_name)
		VALUES (?, ?)
		ON CONFLICT(learner_id, right_name) DO NOTHING
	`, learnerID, string(right))
	if err != nil {
		return fmt.Errorf("grant right: %w", err)
	}
	return nil
}

// RevokeRight removes a learner's grant. Revoking an absent grant is a
// no-op.
func (s *Store) RevokeRight(ctx context.Context, learnerID int64, right Right) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM rights
		WHERE learner_id = ? AND right_name = ?
	`, learnerID, string(right))
	if err != nil {
		return fmt.Errorf("revoke right: %w", err)
	}
	return nil
}

// HasRight reports whether a learner holds a grant. Job-scoped demands
// go through Job.DemandRight instead so the check shares the job's
// transaction.
func (s *Store) HasRight(ctx context.Context, learnerID int64, right Right) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rights
		WHERE learner_id = ? AND right_name = ?
	`, learnerID, string(right)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check right: %w", err)
	}
	return count > 0, nil
}
