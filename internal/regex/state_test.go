package regex

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

func TestSnapshot_Constant(t *testing.T) {
	f := newConst(t, "coregex", "regex:lookingAt", `\d\d`, ir.TypeString)

	want := ir.IRObject{
		SnapshotKeyConstant: ir.IRBool(true),
		SnapshotKeyPattern:  ir.IRString(`\d\d`),
		SnapshotKeyEngine:   ir.IRString("coregex"),
		SnapshotKeyAnchor:   ir.IRString("prefix"),
	}
	if diff := cmp.Diff(want, f.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_Dynamic(t *testing.T) {
	f := newDynamic(t, DefaultEngine, "regex:find", ir.TypeString, ir.TypeString)

	want := ir.IRObject{SnapshotKeyConstant: ir.IRBool(false)}
	if diff := cmp.Diff(want, f.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRestore_RoundTripThroughJSON(t *testing.T) {
	inputs := [][]ir.IRValue{
		{ir.IRString(""), ir.IRString(wso2Long), ir.IRInt(1)},
		{ir.IRString(""), ir.IRString(wso2Long), ir.IRInt(3)},
		{ir.IRString(""), ir.IRString("nothing"), ir.IRInt(1)},
		{ir.IRString(""), ir.IRString(wso2Long), ir.IRInt(9)},
	}

	for _, engine := range allEngines {
		t.Run(engine, func(t *testing.T) {
			before := newConst(t, engine, "regex:group", `(\d\d)(.*)(WSO2.*)`, ir.TypeString, ir.TypeInt)
			data, err := ir.MarshalCanonical(before.Snapshot())
			require.NoError(t, err)

			var snap ir.IRObject
			require.NoError(t, json.Unmarshal(data, &snap))

			// A fresh instance set up with a dynamic pattern picks up the
			// constant pattern from the snapshot.
			after := newDynamic(t, engine, "regex:group", ir.TypeString, ir.TypeString, ir.TypeInt)
			require.NoError(t, after.Restore(snap))
			require.True(t, after.State().IsConstant())

			for _, in := range inputs {
				assert.Equal(t, exec(t, before, in...), exec(t, after, in...))
			}
		})
	}
}

func TestRestore_SamePatternIsReused(t *testing.T) {
	f := newConst(t, DefaultEngine, "regex:find", "a(b)", ir.TypeString)
	state := f.State()

	require.NoError(t, f.Restore(f.Snapshot()))
	assert.Same(t, state, f.State())
}

func TestRestore_OtherEngine(t *testing.T) {
	f := newConst(t, "regexp2", "regex:find", "a(b)", ir.TypeString)
	snap := f.Snapshot()
	snap[SnapshotKeyEngine] = ir.IRString("re2")

	require.NoError(t, f.Restore(snap))
	assert.Equal(t, "re2", f.State().Pattern().Engine())
	assert.Equal(t, ir.IRBool(true), exec(t, f, ir.IRString(""), ir.IRString("xab")))
}

func TestRestore_Dynamic(t *testing.T) {
	f := newConst(t, DefaultEngine, "regex:find", "a", ir.TypeString)

	require.NoError(t, f.Restore(ir.IRObject{SnapshotKeyConstant: ir.IRBool(false)}))
	assert.False(t, f.State().IsConstant())
	assert.Equal(t, ir.IRBool(false), exec(t, f, ir.IRString("b"), ir.IRString("a")))
}

func TestRestore_InvalidSnapshots(t *testing.T) {
	tests := []struct {
		name string
		snap ir.IRObject
	}{
		{"empty", ir.IRObject{}},
		{"flag not bool", ir.IRObject{SnapshotKeyConstant: ir.IRString("true")}},
		{"missing pattern", ir.IRObject{
			SnapshotKeyConstant: ir.IRBool(true),
			SnapshotKeyEngine:   ir.IRString("regexp2"),
			SnapshotKeyAnchor:   ir.IRString("search"),
		}},
		{"unknown engine", ir.IRObject{
			SnapshotKeyConstant: ir.IRBool(true),
			SnapshotKeyPattern:  ir.IRString("a"),
			SnapshotKeyEngine:   ir.IRString("pcre"),
			SnapshotKeyAnchor:   ir.IRString("search"),
		}},
		{"anchor of another function", ir.IRObject{
			SnapshotKeyConstant: ir.IRBool(true),
			SnapshotKeyPattern:  ir.IRString("a"),
			SnapshotKeyEngine:   ir.IRString("regexp2"),
			SnapshotKeyAnchor:   ir.IRString("full"),
		}},
		{"pattern does not compile", ir.IRObject{
			SnapshotKeyConstant: ir.IRBool(true),
			SnapshotKeyPattern:  ir.IRString("(a"),
			SnapshotKeyEngine:   ir.IRString("regexp2"),
			SnapshotKeyAnchor:   ir.IRString("search"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newConst(t, DefaultEngine, "regex:find", "x", ir.TypeString)
			before := f.State()

			err := f.Restore(tt.snap)
			var re *RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeInvalidSnapshot, re.Code)
			assert.Same(t, before, f.State())
		})
	}
}
