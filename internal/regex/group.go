package regex

import "github.com/roach88/rxfn/internal/ir"

// executeGroup implements regex:group(regex, input.sequence, group.id).
// Every argument is mandatory; a null is an error, never a soft failure.
func executeGroup(f *Function, args []ir.IRValue) (ir.IRValue, error) {
	for i, a := range args {
		if ir.IsNull(a) {
			return nil, nullArgument(f.Name(), i+1)
		}
	}

	id, ok := args[2].(ir.IRInt)
	if !ok {
		return nil, invalidArgument(f.Name(), 3, "an integer")
	}
	subject, err := f.subject(args[1])
	if err != nil {
		return nil, err
	}
	p, err := f.pattern(args[0])
	if err != nil {
		return nil, err
	}

	text, ok, err := p.Group(subject, int(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return ir.IRNull{}, nil
	}
	return ir.IRString(text), nil
}
