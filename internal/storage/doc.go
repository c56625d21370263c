// Package storage journals the terminal outcome of every job.
//
// It is an audit trail, not a queue: pending jobs are never written here and
// nothing is replayed on startup. Drivers:
//   - "file": append-only JSON Lines, dependency-free
//   - "sqlite": SQLite database file (build tag sqlite)
package storage
