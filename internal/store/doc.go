// Package store provides a SQLite-backed firing journal.
//
// The journal records every session a harness run opens and every rule that
// fires on it. It backs the scenario assertions that need more than counts
// (which event a rule fired for, in which order) and the golden firing
// traces.
//
// # Tables
//
//   - sessions: one row per attached session (rule base, fingerprint,
//     clock at attach, clock at dispose)
//   - firings: one row per rule firing, ordered by seq
//
// # Ordering
//
// All ordering uses the seq column assigned at insert, never the pseudo
// clock: several rules fire at the same clock instant.
//
// # Database Configuration
//
//   - ":memory:" by default; the journal does not outlive the process
//   - single connection (each in-memory connection is its own database)
//   - foreign_keys=ON
package store
