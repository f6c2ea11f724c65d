package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createStoreAt(t, filepath.Join(t.TempDir(), "test.db"))
}

// createStoreAt opens the store at path and closes it when the test ends.
func createStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRevision creates a revision with one constant and one dynamic
// snapshot.
func createTestRevision(id, app string, seq int64) ir.Revision {
	return ir.Revision{
		ID:        id,
		App:       app,
		AppHash:   "test-app-hash",
		Seq:       seq,
		IRVersion: ir.IRVersion,
		Snapshots: []ir.SnapshotRecord{
			{
				InstanceKey: "aboutWSO2/aboutWSO2",
				Function:    "regex:find",
				State: ir.IRObject{
					"is_pattern_constant": ir.IRBool(true),
					"pattern":             ir.IRString(`\d\d(.*)WSO2`),
					"pattern_engine":      ir.IRString("regexp2"),
					"pattern_anchor":      ir.IRString("search"),
				},
			},
			{
				InstanceKey: "aboutWSO2/dynamic",
				Function:    "regex:matches",
				State:       ir.IRObject{"is_pattern_constant": ir.IRBool(false)},
			},
		},
	}
}
