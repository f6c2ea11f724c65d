package regex

import "github.com/roach88/rxfn/internal/ir"

// executeFind implements regex:find(regex, input.sequence[, starting.index]).
func executeFind(f *Function, args []ir.IRValue) (ir.IRValue, error) {
	if ir.IsNull(args[0]) {
		return nil, nullArgument(f.Name(), 1)
	}
	if ir.IsNull(args[1]) {
		return f.softFail(2)
	}

	start := 0
	if len(args) == 3 {
		if ir.IsNull(args[2]) {
			return f.softFail(3)
		}
		n, ok := args[2].(ir.IRInt)
		if !ok {
			return nil, invalidArgument(f.Name(), 3, "an integer")
		}
		start = int(n)
	}

	subject, err := f.subject(args[1])
	if err != nil {
		return nil, err
	}
	p, err := f.pattern(args[0])
	if err != nil {
		return nil, err
	}

	// Index errors from the matcher pass through as they are.
	found, err := p.MatchFrom(subject, start)
	if err != nil {
		return nil, err
	}
	return ir.IRBool(found), nil
}
