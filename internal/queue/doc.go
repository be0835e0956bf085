// Package queue persists processing jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages the database connection, schema initialization, status
// transitions, stats queries, and stale-job recovery. Every write is a single
// statement so status and progress always commit together. Terminal rows
// (completed, failed) are write-once: transition helpers refuse to mutate
// them and report ErrTerminal instead.
//
// Treat this package as the single source of truth for job state; in-memory
// views elsewhere are read-through projections, never independent state.
package queue
