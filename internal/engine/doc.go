// Package engine hosts a compiled application and runs its regex function
// call sites against incoming events.
//
// ARCHITECTURE:
//
// Binding:
// New binds every function column of every query to its own
// regex.Function. The instance key is "query/column". A setup failure
// stops the application from starting and is reported as a *BindError.
//
// Evaluation:
// Send evaluates one event against every query that reads its stream, in
// declaration order, and returns one Row per query. Run offers a
// single-writer FIFO loop over the same path; ProcessBatch evaluates a
// slice of events concurrently and keeps the output in input order.
//
// Revisions:
// Persist writes the snapshot of every instance as one revision, stamped
// with a logical seq from Clock. RestoreRevision and RestoreLastRevision
// verify the application hash and every state hash before any instance is
// touched.
//
// Revisions of one application are ordered by seq alone, never by wall
// clock time.
package engine
