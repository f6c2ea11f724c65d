package regex

import "github.com/roach88/rxfn/internal/ir"

// executeAnchored implements regex:matches and regex:lookingAt. The two
// differ only in the anchoring their pattern was compiled with.
func executeAnchored(f *Function, args []ir.IRValue) (ir.IRValue, error) {
	if ir.IsNull(args[0]) {
		return nil, nullArgument(f.Name(), 1)
	}
	if ir.IsNull(args[1]) {
		return f.softFail(2)
	}

	subject, err := f.subject(args[1])
	if err != nil {
		return nil, err
	}
	p, err := f.pattern(args[0])
	if err != nil {
		return nil, err
	}

	ok, err := p.MatchFrom(subject, 0)
	if err != nil {
		return nil, err
	}
	return ir.IRBool(ok), nil
}
