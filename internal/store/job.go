package store

import (
	"context"
	"database/sql"
	"fmt"
)

// JobIsolation records the isolation a job was requested with. SQLite
// transactions are always serializable; the level documents intent and
// keeps call sites honest about what they rely on.
type JobIsolation int

const (
	RepeatableRead JobIsolation = iota
	Serializable
)

// Right names a grant in the rights table.
type Right string

const (
	CreateAttemptRight Right = "CreateAttempt"
	DeleteAttemptRight Right = "DeleteAttempt"
)

// ItemRef refers to the row id produced by an earlier AddItem in the
// same execution phase. Arguments of this type are substituted with the
// inserted id when the phase executes, which lets one phase insert a
// parent row and its children without an intermediate round trip.
type ItemRef int

type opKind int

const (
	opQuery opKind = iota
	opAdd
	opUpdate
	opDelete
	opDemand
)

type jobOp struct {
	kind  opKind
	query string
	args  []any

	right     Right
	learnerID int64
}

// JobResult is the outcome of one queued operation, in queue order.
type JobResult struct {
	// LastInsertID is set for AddItem operations.
	LastInsertID int64

	// RowsAffected is set for UpdateItem and DeleteItem operations.
	RowsAffected int64

	// Rows holds every result row of a Query operation, one []any per
	// row in column order.
	Rows [][]any
}

// Job batches operations into one transaction. Operations queue without
// touching the database; Execute runs them in order and returns one
// JobResult per operation. A job may run in phases: queue, Execute,
// inspect the results, queue more, Execute again, then Commit once.
// Work done between phases (such as building a tree from queried rows)
// still sees the snapshot the transaction opened with.
//
// Callers defer Rollback immediately after BeginJob; it is a no-op once
// the job committed.
type Job struct {
	st  *Store
	tx  *sql.Tx
	iso JobIsolation

	ops  []jobOp
	done bool

	// rightGranted is set by the first successful DemandRight; later
	// demands in the same job are then skipped (single authorization
	// point per job).
	rightGranted bool
}

// BeginJob opens a transaction for a batch of operations.
func (s *Store) BeginJob(ctx context.Context, iso JobIsolation) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin job: %w", err)
	}
	return &Job{st: s, tx: tx, iso: iso}, nil
}

// Query queues a SELECT. Returns the operation's index into the Execute
// results.
func (j *Job) Query(query string, args ...any) int {
	return j.queue(jobOp{kind: opQuery, query: query, args: args})
}

// AddItem queues an INSERT and returns a reference to the row id it will
// produce. The returned ItemRef may be passed as an argument to later
// operations in the same job.
func (j *Job) AddItem(query string, args ...any) ItemRef {
	return ItemRef(j.queue(jobOp{kind: opAdd, query: query, args: args}))
}

// UpdateItem queues an UPDATE. Returns the operation's index into the
// Execute results.
func (j *Job) UpdateItem(query string, args ...any) int {
	return j.queue(jobOp{kind: opUpdate, query: query, args: args})
}

// DeleteItem queues a DELETE. Returns the operation's index into the
// Execute results.
func (j *Job) DeleteItem(query string, args ...any) int {
	return j.queue(jobOp{kind: opDelete, query: query, args: args})
}

// DemandRight queues a rights check for the learner the job acts for.
// Execute fails with a SecurityError when the grant is absent.
func (j *Job) DemandRight(right Right, learnerID int64) {
	j.queue(jobOp{kind: opDemand, right: right, learnerID: learnerID})
}

func (j *Job) queue(op jobOp) int {
	j.ops = append(j.ops, op)
	return len(j.ops) - 1
}

// Execute runs the operations queued since the previous Execute, in
// order, and returns one result per operation. Any failure leaves the
// transaction open for Rollback.
func (j *Job) Execute(ctx context.Context) ([]JobResult, error) {
	if j.done {
		return nil, fmt.Errorf("job already finished")
	}
	ops := j.ops
	j.ops = nil

	results := make([]JobResult, len(ops))
	for i, op := range ops {
		switch op.kind {
		case opDemand:
			if err := j.checkRight(ctx, op.right, op.learnerID); err != nil {
				return nil, err
			}

		case opQuery:
			rows, err := j.tx.QueryContext(ctx, op.query, j.resolveArgs(op.args, results)...)
			if err != nil {
				return nil, fmt.Errorf("job query %d: %w", i, err)
			}
			results[i].Rows, err = readAll(rows)
			if err != nil {
				return nil, fmt.Errorf("job query %d: %w", i, err)
			}

		case opAdd:
			res, err := j.tx.ExecContext(ctx, op.query, j.resolveArgs(op.args, results)...)
			if err != nil {
				return nil, fmt.Errorf("job insert %d: %w", i, err)
			}
			results[i].LastInsertID, err = res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("job insert %d: last insert id: %w", i, err)
			}

		case opUpdate, opDelete:
			res, err := j.tx.ExecContext(ctx, op.query, j.resolveArgs(op.args, results)...)
			if err != nil {
				return nil, fmt.Errorf("job exec %d: %w", i, err)
			}
			results[i].RowsAffected, err = res.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("job exec %d: rows affected: %w", i, err)
			}
		}
	}
	return results, nil
}

// resolveArgs substitutes ItemRef arguments with the ids produced by
// earlier AddItem operations.
func (j *Job) resolveArgs(args []any, results []JobResult) []any {
	resolved := make([]any, len(args))
	for i, a := range args {
		if ref, ok := a.(ItemRef); ok {
			resolved[i] = results[ref].LastInsertID
			continue
		}
		resolved[i] = a
	}
	return resolved
}

func (j *Job) checkRight(ctx context.Context, right Right, learnerID int64) error {
	if j.rightGranted {
		return nil
	}
	var count int
	err := j.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rights
		WHERE learner_id = ? AND right_name = ?
	`, learnerID, string(right)).Scan(&count)
	if err != nil {
		return fmt.Errorf("demand right: %w", err)
	}
	if count == 0 {
		return &SecurityError{Right: right, LearnerID: learnerID}
	}
	j.rightGranted = true
	return nil
}

// Commit commits the transaction.
func (j *Job) Commit() error {
	if j.done {
		return fmt.Errorf("job already finished")
	}
	j.done = true
	if err := j.tx.Commit(); err != nil {
		return fmt.Errorf("commit job: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. No-op after Commit.
func (j *Job) Rollback() error {
	if j.done {
		return nil
	}
	j.done = true
	return j.tx.Rollback()
}

// readAll drains a result set into row slices of driver values.
func readAll(rows *sql.Rows) ([][]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// Column value helpers for JobResult rows. SQLite hands back int64,
// float64, string, []byte, or nil.

func colInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case nil:
		return 0
	default:
		return 0
	}
}

func colBool(v any) bool {
	return colInt64(v) != 0
}

func colString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}

func colFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int64:
		f := float64(x)
		return &f
	default:
		return nil
	}
}
