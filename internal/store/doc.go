// Package store provides SQLite-backed persistence for function snapshots.
//
// A revision is a checkpoint of a running application: one row in
// revisions plus one row in snapshots per function instance.
//
//   - Revisions are scoped by application name and ordered by seq, the
//     logical clock of the runtime that wrote them, never by timestamps.
//   - Snapshot state is stored as RFC 8785 canonical JSON together with its
//     content hash, so a restore can detect a tampered or truncated row.
//   - Writing a revision is a single transaction; a crash leaves either the
//     whole revision or nothing.
//
// File databases run in WAL mode with a 5 second busy timeout. Foreign
// keys are enforced, so snapshots are deleted with their revision. The
// schema version lives in PRAGMA user_version.
package store
