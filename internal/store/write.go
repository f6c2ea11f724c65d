package store

import (
	"context"
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
)

// WriteRevision inserts a revision and all of its snapshots in one
// transaction. Uses ON CONFLICT(id) DO NOTHING for idempotency: writing
// the same revision twice is silently ignored.
//
// Snapshot state is serialized to canonical JSON per RFC 8785. StateHash
// is computed here when the caller left it empty.
func (s *Store) WriteRevision(ctx context.Context, rev ir.Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write revision: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	irVersion := rev.IRVersion
	if irVersion == "" {
		irVersion = ir.IRVersion
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (id, app, app_hash, seq, ir_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rev.ID, rev.App, rev.AppHash, rev.Seq, irVersion)
	if err != nil {
		return fmt.Errorf("write revision: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("write revision: rows affected: %w", err)
	} else if n == 0 {
		return nil
	}

	for _, snap := range rev.Snapshots {
		state, err := marshalState(snap.State)
		if err != nil {
			return fmt.Errorf("write revision: snapshot %q: %w", snap.InstanceKey, err)
		}

		hash := snap.StateHash
		if hash == "" {
			if hash, err = ir.StateHash(snap.InstanceKey, snap.State); err != nil {
				return fmt.Errorf("write revision: snapshot %q: %w", snap.InstanceKey, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (revision_id, instance_key, function, state, state_hash)
			VALUES (?, ?, ?, ?, ?)
		`, rev.ID, snap.InstanceKey, snap.Function, state, hash); err != nil {
			return fmt.Errorf("write revision: snapshot %q: %w", snap.InstanceKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write revision: commit: %w", err)
	}
	return nil
}

// PruneRevisions deletes all but the keep most recent revisions of app.
// Snapshots go with their revision (ON DELETE CASCADE). keep <= 0 keeps
// everything. Returns the number of revisions deleted.
func (s *Store) PruneRevisions(ctx context.Context, app string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM revisions
		WHERE app = ? AND id NOT IN (
			SELECT id FROM revisions
			WHERE app = ?
			ORDER BY seq DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
	`, app, app, keep)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune revisions: rows affected: %w", err)
	}
	return n, nil
}
