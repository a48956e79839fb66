// Package store provides SQLite-backed durable storage for saga event streams.
//
// Each saga is one stream in the saga_events table, keyed by
// (aggregate_id, revision). Streams are append-only.
//
// # Guarantees
//
//   - SaveEvents writes a batch in one transaction: all events or none
//   - A revision that already exists rejects the batch with
//     saga.ErrRevisionConflict
//   - Reads order by revision ascending, ties are impossible
//   - data is stored as RFC 8785 canonical JSON
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: DefaultBusyTimeout, see WithBusyTimeout
//   - foreign_keys=ON: Enforce referential integrity
package store
