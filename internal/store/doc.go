// Package store provides SQLite-backed durable storage for learning
// packages and attempts.
//
// The store holds:
//   - Packages: imported course manifests and their activity rows
//   - Learners and Rights: who may create and delete attempts
//   - Attempts: a learner's run of a package, with per-activity
//     sequencing state snapshotted at creation
//   - Global Objectives: objective status shared across attempts
//
// # Persistence Model
//
// An attempt's activity tree is materialized at creation time: the
// package rows are copied into attempt_activities after selection and
// randomization, so later edits to the package never disturb a running
// attempt. Navigation state is written back as a delta - only rows the
// navigator marked dirty are updated, inside a single transaction.
//
// All multi-row writes go through the job API (see job.go), which
// batches inserts, updates and demand checks into one transaction and
// resolves parent/child references without intermediate round trips.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
