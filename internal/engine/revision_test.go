package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
	"github.com/roach88/rxfn/internal/store"
)

func TestPersist_WritesRevision(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r := newRuntime(t, testApp(), WithStore(s), WithIDGenerator(NewFixedGenerator("rev-a")))

	rev, err := r.Persist(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rev-a", rev.ID)
	assert.Equal(t, "stocks", rev.App)
	assert.Equal(t, r.AppHash(), rev.AppHash)
	assert.Equal(t, int64(1), rev.Seq)
	assert.Equal(t, ir.IRVersion, rev.IRVersion)
	require.Len(t, rev.Snapshots, 3)

	stored, err := s.ReadRevision(ctx, "rev-a")
	require.NoError(t, err)
	require.Len(t, stored.Snapshots, 3)

	for _, snap := range stored.Snapshots {
		assert.Equal(t, ir.MustStateHash(snap.InstanceKey, snap.State), snap.StateHash)
	}

	find := stored.Snapshots[0]
	assert.Equal(t, "aboutWSO2/aboutWSO2", find.InstanceKey)
	assert.Equal(t, "regex:find", find.Function)
	assert.Equal(t, ir.IRObject{
		regex.SnapshotKeyConstant: ir.IRBool(true),
		regex.SnapshotKeyPattern:  ir.IRString(`\d\d(.*)WSO2`),
		regex.SnapshotKeyEngine:   ir.IRString(regex.DefaultEngine),
		regex.SnapshotKeyAnchor:   ir.IRString("search"),
	}, find.State)
}

func TestPersist_SeqResumesFromStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	first := newRuntime(t, testApp(), WithStore(s))
	for i := 0; i < 3; i++ {
		_, err := first.Persist(ctx)
		require.NoError(t, err)
	}

	// A fresh runtime over the same store continues after seq 3.
	second := newRuntime(t, testApp(), WithStore(s))
	rev, err := second.Persist(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rev.Seq)
}

func TestPersist_KeepRevisions(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r := newRuntime(t, testApp(), WithStore(s), WithKeepRevisions(2))

	for i := 0; i < 5; i++ {
		_, err := r.Persist(ctx)
		require.NoError(t, err)
	}

	revs, err := s.ListRevisions(ctx, "stocks")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(4), revs[0].Seq)
	assert.Equal(t, int64(5), revs[1].Seq)
}

func TestPersist_NoStore(t *testing.T) {
	r := newRuntime(t, testApp())

	_, err := r.Persist(context.Background())
	assert.True(t, HasCode(err, ErrCodeNoStore))

	_, err = r.RestoreLastRevision(context.Background())
	assert.True(t, HasCode(err, ErrCodeNoStore))

	_, err = r.RestoreRevision(context.Background(), "x")
	assert.True(t, HasCode(err, ErrCodeNoStore))
}

func TestRestoreLastRevision_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r := newRuntime(t, testApp(), WithStore(s))
	rev, err := r.Persist(ctx)
	require.NoError(t, err)

	restarted := newRuntime(t, testApp(), WithStore(s))
	got, err := restarted.RestoreLastRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, got.ID)

	for _, key := range r.InstanceKeys() {
		before, _ := r.Function(key)
		after, _ := restarted.Function(key)
		assert.Equal(t, before.Snapshot(), after.Snapshot(), key)
	}

	rows, err := restarted.Send(ctx, "inputStream", event(wso2, 1, `\d+.*`, 1))
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), rows[0].Values["aboutWSO2"])

	// The clock continues after the restored revision.
	next, err := restarted.Persist(ctx)
	require.NoError(t, err)
	assert.Equal(t, rev.Seq+1, next.Seq)
}

func TestRestoreRevision_ByID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r := newRuntime(t, testApp(), WithStore(s), WithIDGenerator(NewFixedGenerator("one", "two")))

	_, err := r.Persist(ctx)
	require.NoError(t, err)
	_, err = r.Persist(ctx)
	require.NoError(t, err)

	got, err := r.RestoreRevision(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)

	_, err = r.RestoreRevision(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrRevisionNotFound))
}

func TestRestoreLastRevision_Empty(t *testing.T) {
	r := newRuntime(t, testApp(), WithStore(openStore(t)))

	_, err := r.RestoreLastRevision(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrRevisionNotFound))
}

func TestRestore_AppMismatch(t *testing.T) {
	r := newRuntime(t, testApp())
	rev := snapshotOf(t, r)

	changed := testApp()
	changed.Queries[0].Select[1].Args[0] = lit(ir.IRString("WSO2"))
	other := newRuntime(t, changed)

	err := other.Restore(rev)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeAppMismatch))
}

func TestRestore_HashMismatch(t *testing.T) {
	r := newRuntime(t, testApp())
	rev := snapshotOf(t, r)

	// Tamper with the pattern but keep the stored hash.
	rev.Snapshots[0].State = ir.IRObject{
		regex.SnapshotKeyConstant: ir.IRBool(true),
		regex.SnapshotKeyPattern:  ir.IRString("WSO2"),
		regex.SnapshotKeyEngine:   ir.IRString(regex.DefaultEngine),
		regex.SnapshotKeyAnchor:   ir.IRString("search"),
	}

	err := r.Restore(rev)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeHashMismatch))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "aboutWSO2/aboutWSO2", re.Details["instance"])

	fn, _ := r.Function("aboutWSO2/aboutWSO2")
	assert.Equal(t, ir.IRString(`\d\d(.*)WSO2`), fn.Snapshot()[regex.SnapshotKeyPattern])
}

func TestRestore_MissingSnapshot(t *testing.T) {
	r := newRuntime(t, testApp())
	rev := snapshotOf(t, r)
	rev.Snapshots = rev.Snapshots[:2]

	err := r.Restore(rev)
	assert.True(t, HasCode(err, ErrCodeMissingSnapshot))
}

func TestRestore_RollsBackOnInvalidSnapshot(t *testing.T) {
	r := newRuntime(t, testApp())
	rev := snapshotOf(t, r)

	// First instance gets a valid new pattern, the last one an anchor its
	// function cannot take. Both hashes are correct.
	rehash(&rev.Snapshots[0], ir.IRObject{
		regex.SnapshotKeyConstant: ir.IRBool(true),
		regex.SnapshotKeyPattern:  ir.IRString("WSO2"),
		regex.SnapshotKeyEngine:   ir.IRString(regex.DefaultEngine),
		regex.SnapshotKeyAnchor:   ir.IRString("search"),
	})
	rehash(&rev.Snapshots[2], ir.IRObject{
		regex.SnapshotKeyConstant: ir.IRBool(true),
		regex.SnapshotKeyPattern:  ir.IRString("(x)"),
		regex.SnapshotKeyEngine:   ir.IRString(regex.DefaultEngine),
		regex.SnapshotKeyAnchor:   ir.IRString("full"),
	})

	err := r.Restore(rev)
	require.Error(t, err)

	var re *regex.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, regex.ErrCodeInvalidSnapshot, re.Code)

	fn, _ := r.Function("aboutWSO2/aboutWSO2")
	assert.Equal(t, ir.IRString(`\d\d(.*)WSO2`), fn.Snapshot()[regex.SnapshotKeyPattern],
		"earlier instances are rolled back")
}

func TestRestore_ConstantToDynamicState(t *testing.T) {
	r := newRuntime(t, testApp())
	rev := snapshotOf(t, r)

	rehash(&rev.Snapshots[0], ir.IRObject{regex.SnapshotKeyConstant: ir.IRBool(false)})
	require.NoError(t, r.Restore(rev))

	fn, _ := r.Function("aboutWSO2/aboutWSO2")
	assert.False(t, fn.State().IsConstant())

	// The instance now compiles the constant argument per event.
	rows, err := r.Send(context.Background(), "inputStream", event(wso2, 1, ".*", 1))
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), rows[0].Values["aboutWSO2"])
}

// snapshotOf builds the revision Persist would write, without a store.
func snapshotOf(t *testing.T, r *Runtime) ir.Revision {
	t.Helper()
	rev := ir.Revision{ID: "mem", App: r.App().Name, AppHash: r.AppHash(), Seq: 1}
	for _, key := range r.InstanceKeys() {
		fn, _ := r.Function(key)
		state := fn.Snapshot()
		rev.Snapshots = append(rev.Snapshots, ir.SnapshotRecord{
			InstanceKey: key,
			Function:    fn.Name(),
			State:       state,
			StateHash:   ir.MustStateHash(key, state),
		})
	}
	return rev
}

func rehash(s *ir.SnapshotRecord, state ir.IRObject) {
	s.State = state
	s.StateHash = ir.MustStateHash(s.InstanceKey, state)
}
