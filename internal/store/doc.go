// Package store keeps aggregation results in a SQLite database so runs can
// be compared after their output directories are gone.
//
// Each aggregation run is stored once, keyed by its run id:
//   - runs: protocol family, scoring function, run directory, columns
//   - mutations: labels and number of structures, in table order
//   - energies: mean ΔΔG (structure 0) and per-structure wt/mut/ddg terms
//   - skipped: outputs left out of the run
//
// Runs are ordered by insertion sequence, never by timestamps. Every query
// has an explicit ORDER BY so results are reproducible.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
