package compiler

import (
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
)

// Validation error codes (E100-E199)
const (
	ErrUnknownStream    = "E101" // query reads a stream that is not declared
	ErrUnknownAttribute = "E102" // attribute is not part of the query's stream
	ErrUnknownFunction  = "E103" // call does not name a registered function
	ErrDuplicateColumn  = "E104" // two columns of a query share a name
	ErrNoQueries        = "E105" // application declares no query
)

// ValidationError represents a semantic validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the references inside a compiled application.
// Returns all errors found (does not fail-fast).
//
// Argument arity and types are not checked here: they belong to function
// setup, which the runtime performs when it binds the application.
func Validate(app *ir.App) []ValidationError {
	var errs []ValidationError

	if len(app.Queries) == 0 {
		errs = append(errs, ValidationError{
			Field:   "query",
			Message: "at least one query is required",
			Code:    ErrNoQueries,
		})
	}

	for _, q := range app.Queries {
		stream, ok := app.Stream(q.From)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("query.%s.from", q.Name),
				Message: fmt.Sprintf("unknown stream %q", q.From),
				Code:    ErrUnknownStream,
			})
		}

		columns := make(map[string]bool)
		for i, col := range q.Select {
			field := fmt.Sprintf("query.%s.select[%d]", q.Name, i)

			if columns[col.As] {
				errs = append(errs, ValidationError{
					Field:   field + ".as",
					Message: fmt.Sprintf("duplicate column %q", col.As),
					Code:    ErrDuplicateColumn,
				})
			}
			columns[col.As] = true

			if !col.IsCall() {
				if ok {
					errs = append(errs, checkAttr(stream, col.Attr, field+".attr")...)
				}
				continue
			}

			if _, found := regex.Lookup(col.Call); !found {
				errs = append(errs, ValidationError{
					Field:   field + ".call",
					Message: fmt.Sprintf("unknown function %q", col.Call),
					Code:    ErrUnknownFunction,
				})
			}
			for j, arg := range col.Args {
				if !arg.IsConst() && ok {
					errs = append(errs, checkAttr(stream, arg.Attr, fmt.Sprintf("%s.args[%d].attr", field, j))...)
				}
			}
		}
	}

	return errs
}

func checkAttr(stream ir.StreamDef, name, field string) []ValidationError {
	if _, ok := stream.Attribute(name); ok {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("stream %q has no attribute %q", stream.Name, name),
		Code:    ErrUnknownAttribute,
	}}
}
