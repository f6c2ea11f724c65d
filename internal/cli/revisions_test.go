package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

func persistRevisions(t *testing.T, db string, n int) []string {
	t.Helper()
	events := writeEvents(t, eventsJSONL)
	var ids []string
	for i := 0; i < n; i++ {
		out, _, err := execute(t, "--db", db, "--format", "json", "run", stocksApp, "--events", events, "--persist")
		require.NoError(t, err)
		ids = append(ids, lastSummary(t, out).Revision)
	}
	return ids
}

func TestRevisions_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	out, _, err := execute(t, "--db", db, "revisions")
	require.NoError(t, err)
	assert.Equal(t, "No revisions.\n", out)
}

func TestRevisions_List(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")
	ids := persistRevisions(t, db, 2)

	out, _, err := execute(t, "--db", db, "revisions")
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, ids[0])
	assert.Contains(t, out, ids[1])

	out, _, err = execute(t, "--db", db, "revisions", "other")
	require.NoError(t, err)
	assert.Equal(t, "No revisions.\n", out)
}

func TestRevisions_Show(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")
	ids := persistRevisions(t, db, 1)

	out, _, err := execute(t, "--db", db, "revisions", "--show", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, "Revision "+ids[0]+" (app stocks, seq 1, ir "+ir.IRVersion+")")
	assert.Contains(t, out, "  aboutWSO2/aboutWSO2 regex:find ")
	assert.Contains(t, out, "  dynamic/found regex:find ")

	out, _, err = execute(t, "--db", db, "--format", "json", "revisions", "--show", ids[0])
	require.NoError(t, err)
	var resp struct {
		Data ir.Revision `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ids[0], resp.Data.ID)
	assert.Len(t, resp.Data.Snapshots, 6)
}

func TestRevisions_ShowNotFound(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	out, _, err := execute(t, "--db", db, "--format", "json", "revisions", "--show", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, bytes.NewBufferString(out))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestRevisions_Prune(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")
	ids := persistRevisions(t, db, 3)

	out, _, err := execute(t, "--db", db, "--format", "json", "revisions", "stocks", "--prune", "1")
	require.NoError(t, err)
	var resp struct {
		Data RevisionsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(2), resp.Data.Pruned)
	require.Len(t, resp.Data.Revisions, 1)
	assert.Equal(t, ids[2], resp.Data.Revisions[0].ID)
}

func TestRevisions_PruneErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	_, _, err := execute(t, "--db", db, "revisions", "--prune", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--prune needs an app")

	_, _, err = execute(t, "--db", db, "revisions", "stocks", "--prune", "-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "abc", shortHash("abc"))
	assert.Equal(t, "0123456789abcdef012", shortHash("0123456789abcdef0123456789"))
}
