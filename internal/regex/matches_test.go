package regex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

func TestMatches_Examples(t *testing.T) {
	subject := "WSO2 is situated in trace and its a middleware company"
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"whole subject consumed", "WSO2(.*)middleware(.*)", subject, true},
		{"trailing text remains", "WSO2(.*)middleware", subject, false},
		{"alternation is fully anchored", "a|ab", "ab", true},
		{"alternation needs the whole subject", "a|b", "ab", false},
		{"empty pattern on empty subject", "", "", true},
	}

	for _, engine := range allEngines {
		for _, tt := range tests {
			t.Run(engine+"/"+tt.name, func(t *testing.T) {
				f := newConst(t, engine, "regex:matches", tt.pattern, ir.TypeString)
				assert.Equal(t, ir.IRBool(tt.want), exec(t, f, ir.IRString(tt.pattern), ir.IRString(tt.subject)))

				d := newDynamic(t, engine, "matches", ir.TypeString, ir.TypeString)
				assert.Equal(t, ir.IRBool(tt.want), exec(t, d, ir.IRString(tt.pattern), ir.IRString(tt.subject)))
			})
		}
	}
}

func TestLookingAt_Examples(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"prefix match", `\d\d(.*)WSO2`, "21 products are produced by WSO2 currently in Sri Lanka", true},
		{"match not at offset 0", "WSO2(.*)middleware(.*)", "sample test string and WSO2 is situated in trace and its a middleware company", false},
		{"alternation anchored at start", "b|a", "abc", true},
		{"whole subject also counts", "abc", "abc", true},
	}

	for _, engine := range allEngines {
		for _, tt := range tests {
			t.Run(engine+"/"+tt.name, func(t *testing.T) {
				f := newConst(t, engine, "regex:lookingAt", tt.pattern, ir.TypeString)
				assert.Equal(t, ir.IRBool(tt.want), exec(t, f, ir.IRString(tt.pattern), ir.IRString(tt.subject)))

				d := newDynamic(t, engine, "lookingAt", ir.TypeString, ir.TypeString)
				assert.Equal(t, ir.IRBool(tt.want), exec(t, d, ir.IRString(tt.pattern), ir.IRString(tt.subject)))
			})
		}
	}
}

func TestMatchesAndLookingAt_NullHandling(t *testing.T) {
	for _, fn := range []string{"regex:matches", "regex:lookingAt"} {
		t.Run(fn, func(t *testing.T) {
			f := newDynamic(t, DefaultEngine, fn, ir.TypeString, ir.TypeString)

			_, err := f.Execute([]ir.IRValue{ir.IRNull{}, ir.IRString("abc")})
			var re *RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeNullArgument, re.Code)
			assert.Equal(t, 1, re.Arg)

			assert.Equal(t, ir.IRBool(false), exec(t, f, ir.IRString("abc"), ir.IRNull{}))
		})
	}
}

func TestLookingAt_RegexpOnlySyntax(t *testing.T) {
	f := newConst(t, "regexp2", "regex:lookingAt", `(?=\d)\d+`, ir.TypeString)
	assert.Equal(t, ir.IRBool(true), exec(t, f, ir.IRString(`(?=\d)\d+`), ir.IRString("42 apples")))

	for _, engine := range []string{"coregex", "re2"} {
		_, err := New("regex:lookingAt", []ArgSpec{Const(ir.IRString(`(?=\d)\d+`)), Var(ir.TypeString)}, engineOpt(t, engine))
		var se *SetupError
		require.ErrorAs(t, err, &se, engine)
		assert.Equal(t, ErrCodeInvalidPatternSetup, se.Code)
	}
}
