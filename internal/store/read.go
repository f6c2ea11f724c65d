package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
)

// ErrRevisionNotFound is returned when no revision matches a lookup.
var ErrRevisionNotFound = errors.New("revision not found")

// ReadRevision returns the revision with the given id, snapshots included.
// Snapshots are ordered by instance key.
func (s *Store) ReadRevision(ctx context.Context, id string) (ir.Revision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app, app_hash, seq, ir_version
		FROM revisions
		WHERE id = ?
	`, id)

	rev, err := scanRevision(row)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("read revision %q: %w", id, err)
	}

	if rev.Snapshots, err = s.readSnapshots(ctx, rev.ID); err != nil {
		return ir.Revision{}, err
	}
	return rev, nil
}

// LatestRevision returns the revision of app with the highest seq.
// Ties (which a single runtime never produces) are broken by id.
func (s *Store) LatestRevision(ctx context.Context, app string) (ir.Revision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app, app_hash, seq, ir_version
		FROM revisions
		WHERE app = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, app)

	rev, err := scanRevision(row)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("latest revision of %q: %w", app, err)
	}

	if rev.Snapshots, err = s.readSnapshots(ctx, rev.ID); err != nil {
		return ir.Revision{}, err
	}
	return rev, nil
}

// ListRevisions returns the revisions of app without snapshots, ordered by
// seq ASC, id ASC COLLATE BINARY. An empty app lists every application.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListRevisions(ctx context.Context, app string) ([]ir.Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, app, app_hash, seq, ir_version
		FROM revisions
		WHERE ? = '' OR app = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, app, app)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revisions := []ir.Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revisions, nil
}

// MaxSeq returns the highest seq stored for app, or 0 if there is none.
// A runtime resumes its clock from here so seq stays monotonic across
// restarts.
func (s *Store) MaxSeq(ctx context.Context, app string) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM revisions WHERE app = ?
	`, app).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq of %q: %w", app, err)
	}
	return seq.Int64, nil
}

func (s *Store) readSnapshots(ctx context.Context, revisionID string) ([]ir.SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_key, function, state, state_hash
		FROM snapshots
		WHERE revision_id = ?
		ORDER BY instance_key COLLATE BINARY ASC
	`, revisionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []ir.SnapshotRecord{}
	for rows.Next() {
		var (
			snap  ir.SnapshotRecord
			state string
		)
		if err := rows.Scan(&snap.InstanceKey, &snap.Function, &state, &snap.StateHash); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.State, err = unmarshalState(state); err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", snap.InstanceKey, err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRevision(row scanner) (ir.Revision, error) {
	var rev ir.Revision
	err := row.Scan(&rev.ID, &rev.App, &rev.AppHash, &rev.Seq, &rev.IRVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return ir.Revision{}, fmt.Errorf("scan revision: %w", err)
	}
	return rev, nil
}
