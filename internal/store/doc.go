// Package store provides a SQLite-backed registry of simulation runs.
//
// The registry records:
//   - Runs: one row per run directory, keyed by its absolute path
//   - Sessions: the session_NN directories created inside a run, with the
//     file or checkpoint set each one restarted from
//   - Status observations: every classification of a run directory
//
// Rows are ordered by a seq INTEGER assigned on insert, never by
// timestamps, so listings are stable even when the wall clock jumps.
// Queries order by seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Identifiers are UUIDv7 strings unless the caller injects a generator.
package store
