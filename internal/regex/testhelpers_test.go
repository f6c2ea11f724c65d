package regex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

// allEngines lists the registered engines every behavioural test runs on.
var allEngines = []string{"regexp2", "coregex", "re2"}

func engineOpt(t *testing.T, name string) Option {
	t.Helper()
	e, err := LookupEngine(name)
	require.NoError(t, err)
	return WithEngine(e)
}

// newConst sets up fn with a constant pattern and variable remaining args.
func newConst(t *testing.T, engine, fn, pattern string, rest ...ir.Type) *Function {
	t.Helper()
	args := []ArgSpec{Const(ir.IRString(pattern))}
	for _, ty := range rest {
		args = append(args, Var(ty))
	}
	f, err := New(fn, args, engineOpt(t, engine))
	require.NoError(t, err)
	return f
}

// newDynamic sets up fn with every argument variable.
func newDynamic(t *testing.T, engine, fn string, types ...ir.Type) *Function {
	t.Helper()
	args := make([]ArgSpec, len(types))
	for i, ty := range types {
		args[i] = Var(ty)
	}
	f, err := New(fn, args, engineOpt(t, engine))
	require.NoError(t, err)
	return f
}

func exec(t *testing.T, f *Function, args ...ir.IRValue) ir.IRValue {
	t.Helper()
	v, err := f.Execute(args)
	require.NoError(t, err)
	return v
}

const (
	wso2Long = "21 products are produced within 10 years by WSO2 currently by WSO2 employees"
)
