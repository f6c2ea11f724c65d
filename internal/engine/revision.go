package engine

import (
	"context"
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
)

// Persist snapshots every bound instance and writes them as one revision.
// The revision is stamped with the next seq of the clock; on the first
// call the clock is moved past the revisions already stored for the app.
func (r *Runtime) Persist(ctx context.Context) (ir.Revision, error) {
	if r.store == nil {
		return ir.Revision{}, &RuntimeError{Code: ErrCodeNoStore, Message: "persist needs a store"}
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if !r.clockSynced {
		seq, err := r.store.MaxSeq(ctx, r.app.Name)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("persist: %w", err)
		}
		r.clock.Observe(seq)
		r.clockSynced = true
	}

	rev := ir.Revision{
		ID:        r.idGen.Generate(),
		App:       r.app.Name,
		AppHash:   r.appHash,
		Seq:       r.clock.Next(),
		IRVersion: ir.IRVersion,
		Snapshots: make([]ir.SnapshotRecord, 0, len(r.instances)),
	}
	for _, inst := range r.instances {
		state := inst.fn.Snapshot()
		hash, err := ir.StateHash(inst.key, state)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("persist %s: %w", inst.key, err)
		}
		rev.Snapshots = append(rev.Snapshots, ir.SnapshotRecord{
			InstanceKey: inst.key,
			Function:    inst.fn.Name(),
			State:       state,
			StateHash:   hash,
		})
	}

	if err := r.store.WriteRevision(ctx, rev); err != nil {
		return ir.Revision{}, fmt.Errorf("persist: %w", err)
	}

	if r.keep > 0 {
		n, err := r.store.PruneRevisions(ctx, r.app.Name, r.keep)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("persist: %w", err)
		}
		if n > 0 {
			r.logger.Debug().Int64("pruned", n).Msg("old revisions pruned")
		}
	}

	r.logger.Info().
		Str("revision", rev.ID).
		Int64("seq", rev.Seq).
		Int("snapshots", len(rev.Snapshots)).
		Msg("revision persisted")
	return rev, nil
}

// RestoreLastRevision restores the most recent revision of the app.
// Returns an error wrapping store.ErrRevisionNotFound if there is none.
func (r *Runtime) RestoreLastRevision(ctx context.Context) (ir.Revision, error) {
	if r.store == nil {
		return ir.Revision{}, &RuntimeError{Code: ErrCodeNoStore, Message: "restore needs a store"}
	}
	rev, err := r.store.LatestRevision(ctx, r.app.Name)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("restore: %w", err)
	}
	return rev, r.Restore(rev)
}

// RestoreRevision restores the revision with the given id.
func (r *Runtime) RestoreRevision(ctx context.Context, id string) (ir.Revision, error) {
	if r.store == nil {
		return ir.Revision{}, &RuntimeError{Code: ErrCodeNoStore, Message: "restore needs a store"}
	}
	rev, err := r.store.ReadRevision(ctx, id)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("restore: %w", err)
	}
	return rev, r.Restore(rev)
}

// Restore applies a revision to every bound instance.
//
// The revision must come from the same application and every snapshot
// must match its state hash; both are checked before any instance is
// touched. If an instance rejects its snapshot, the instances already
// restored are put back, so a failed Restore leaves the runtime as it was.
func (r *Runtime) Restore(rev ir.Revision) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if rev.AppHash != r.appHash {
		return &RuntimeError{
			Code:     ErrCodeAppMismatch,
			Message:  fmt.Sprintf("revision was written by a different version of app %q", r.app.Name),
			Revision: rev.ID,
			Details:  map[string]string{"want": r.appHash, "got": rev.AppHash},
		}
	}

	byKey := make(map[string]ir.SnapshotRecord, len(rev.Snapshots))
	for _, s := range rev.Snapshots {
		byKey[s.InstanceKey] = s
	}

	for _, inst := range r.instances {
		s, ok := byKey[inst.key]
		if !ok || s.Function != inst.fn.Name() {
			return &RuntimeError{
				Code:     ErrCodeMissingSnapshot,
				Message:  fmt.Sprintf("no %s snapshot for %s", inst.fn.Name(), inst.key),
				Revision: rev.ID,
			}
		}
		computed, err := ir.StateHash(inst.key, s.State)
		if err != nil {
			return fmt.Errorf("restore %s: %w", inst.key, err)
		}
		if computed != s.StateHash {
			return newHashMismatchError(rev.ID, inst.key, s.StateHash, computed)
		}
	}

	previous := make([]ir.IRObject, 0, len(r.instances))
	for i, inst := range r.instances {
		before := inst.fn.Snapshot()
		if err := inst.fn.Restore(byKey[inst.key].State); err != nil {
			r.rollback(r.instances[:i], previous)
			return fmt.Errorf("restore %s: %w", inst.key, err)
		}
		previous = append(previous, before)
	}

	r.clock.Observe(rev.Seq)
	r.logger.Info().
		Str("revision", rev.ID).
		Int64("seq", rev.Seq).
		Msg("revision restored")
	return nil
}

func (r *Runtime) rollback(done []*instance, previous []ir.IRObject) {
	for i, inst := range done {
		if err := inst.fn.Restore(previous[i]); err != nil {
			// Only reachable if the engine registry changed in between.
			r.logger.Error().Err(err).Str("instance", inst.key).Msg("rollback failed")
		}
	}
}
