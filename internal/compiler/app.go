package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rxfn/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// CompileApp parses a CUE value into an App.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is unified with the embedded #App schema first, so structural
// mistakes are reported with CUE positions before any IR is built:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`name: "demo", stream: {...}, query: {...}`)
//	app, err := CompileApp(v)
//
// Streams keep their attribute declaration order; queries keep theirs.
func CompileApp(v cue.Value) (*ir.App, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}

	v = schema.LookupPath(cue.ParsePath("#App")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	app := &ir.App{}

	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	app.Name = name

	if app.Streams, err = parseStreams(v.LookupPath(cue.ParsePath("stream"))); err != nil {
		return nil, err
	}
	if app.Queries, err = parseQueries(v.LookupPath(cue.ParsePath("query"))); err != nil {
		return nil, err
	}
	return app, nil
}

// parseStreams extracts stream definitions. stream is optional.
func parseStreams(v cue.Value) ([]ir.StreamDef, error) {
	var streams []ir.StreamDef
	if !v.Exists() {
		return streams, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		def := ir.StreamDef{Name: iter.Selector().Unquoted()}

		attrIter, err := iter.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for attrIter.Next() {
			typeName, err := attrIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			t, err := ir.ParseType(typeName)
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("stream.%s.%s", def.Name, attrIter.Selector().Unquoted()),
					Message: err.Error(),
					Pos:     attrIter.Value().Pos(),
				}
			}
			def.Attributes = append(def.Attributes, ir.Attribute{
				Name: attrIter.Selector().Unquoted(),
				Type: t,
			})
		}
		streams = append(streams, def)
	}
	return streams, nil
}

// parseQueries extracts query definitions. query is optional.
func parseQueries(v cue.Value) ([]ir.QuerySpec, error) {
	var queries []ir.QuerySpec
	if !v.Exists() {
		return queries, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		q, err := parseQuery(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func parseQuery(name string, v cue.Value) (ir.QuerySpec, error) {
	q := ir.QuerySpec{Name: name}

	from, err := v.LookupPath(cue.ParsePath("from")).String()
	if err != nil {
		return q, formatCUEError(err)
	}
	q.From = from

	list, err := v.LookupPath(cue.ParsePath("select")).List()
	if err != nil {
		return q, formatCUEError(err)
	}
	for list.Next() {
		col, err := parseColumn(list.Value())
		if err != nil {
			return q, err
		}
		q.Select = append(q.Select, col)
	}
	return q, nil
}

func parseColumn(v cue.Value) (ir.Projection, error) {
	var p ir.Projection

	as, err := v.LookupPath(cue.ParsePath("as")).String()
	if err != nil {
		return p, formatCUEError(err)
	}
	p.As = as

	if attr := v.LookupPath(cue.ParsePath("attr")); attr.Exists() {
		p.Attr, err = attr.String()
		if err != nil {
			return p, formatCUEError(err)
		}
		return p, nil
	}

	p.Call, err = v.LookupPath(cue.ParsePath("call")).String()
	if err != nil {
		return p, formatCUEError(err)
	}

	args, err := v.LookupPath(cue.ParsePath("args")).List()
	if err != nil {
		return p, formatCUEError(err)
	}
	for args.Next() {
		e, err := parseExpr(args.Value())
		if err != nil {
			return p, err
		}
		p.Args = append(p.Args, e)
	}
	return p, nil
}

func parseExpr(v cue.Value) (ir.Expr, error) {
	if attr := v.LookupPath(cue.ParsePath("attr")); attr.Exists() {
		s, err := attr.String()
		if err != nil {
			return ir.Expr{}, formatCUEError(err)
		}
		return ir.Expr{Attr: s}, nil
	}

	c, err := literal(v.LookupPath(cue.MakePath(cue.Str("const"))))
	if err != nil {
		return ir.Expr{}, err
	}
	return ir.Expr{Const: c}, nil
}

// literal converts a concrete CUE scalar to an IRValue.
// Floats are forbidden: the IR has no float type.
func literal(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "const",
			Message: "float constants are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "const",
			Message: fmt.Sprintf("unsupported constant kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
