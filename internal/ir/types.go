package ir

import (
	"fmt"
	"strings"
)

// Type is the declared type of a stream attribute, a function parameter or
// a function result.
type Type string

const (
	TypeString Type = "STRING"
	TypeInt    Type = "INT"
	TypeLong   Type = "LONG"
	TypeBool   Type = "BOOL"
	TypeObject Type = "OBJECT"
)

// ValidTypes defines the allowed attribute types.
var ValidTypes = map[Type]bool{
	TypeString: true,
	TypeInt:    true,
	TypeLong:   true,
	TypeBool:   true,
	TypeObject: true,
}

// ParseType converts a type name ("string", "INT", ...) into a Type.
func ParseType(name string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(name)))
	if !ValidTypes[t] {
		return "", fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

// TypeOf returns the type a literal value carries when it appears as a
// constant argument. Integers are INT, null is OBJECT.
func TypeOf(v IRValue) Type {
	switch v.(type) {
	case IRString:
		return TypeString
	case IRInt:
		return TypeInt
	case IRBool:
		return TypeBool
	default:
		return TypeObject
	}
}

// Attribute is a named, typed field of a stream.
type Attribute struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// StreamDef declares an input stream and its attribute layout.
type StreamDef struct {
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute returns the attribute with the given name.
func (s StreamDef) Attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Expr is an argument expression of a function call: either a constant
// literal or a reference to an attribute of the incoming event.
type Expr struct {
	Const IRValue `json:"const,omitempty"`
	Attr  string  `json:"attr,omitempty"`
}

// IsConst reports whether the expression is a literal.
func (e Expr) IsConst() bool {
	return e.Attr == ""
}

// String renders the expression the way it appears in a query.
func (e Expr) String() string {
	if !e.IsConst() {
		return e.Attr
	}
	b, err := MarshalIRValue(e.Const)
	if err != nil {
		return "?"
	}
	return string(b)
}

// Projection is one output column of a query: a pass-through attribute or
// a function call.
type Projection struct {
	As   string `json:"as"`
	Attr string `json:"attr,omitempty"`
	Call string `json:"call,omitempty"` // qualified function name, e.g. "regex:find"
	Args []Expr `json:"args,omitempty"`
}

// IsCall reports whether the projection invokes a function.
func (p Projection) IsCall() bool {
	return p.Call != ""
}

// QuerySpec is a compiled query: read events from one stream, emit one row
// per event with the selected columns.
type QuerySpec struct {
	Name   string       `json:"name"`
	From   string       `json:"from"`
	Select []Projection `json:"select"`
}

// App is a compiled application: the streams it reads and the queries it runs.
// Queries are kept in declaration order.
type App struct {
	Name    string      `json:"name"`
	Streams []StreamDef `json:"streams"`
	Queries []QuerySpec `json:"queries"`
}

// Stream returns the stream definition with the given name.
func (a *App) Stream(name string) (StreamDef, bool) {
	for _, s := range a.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamDef{}, false
}

// toIR renders the application as an IRObject for hashing.
func (a *App) toIR() IRObject {
	streams := make(IRArray, len(a.Streams))
	for i, s := range a.Streams {
		attrs := make(IRArray, len(s.Attributes))
		for j, at := range s.Attributes {
			attrs[j] = IRObject{"name": IRString(at.Name), "type": IRString(at.Type)}
		}
		streams[i] = IRObject{"name": IRString(s.Name), "attributes": attrs}
	}

	queries := make(IRArray, len(a.Queries))
	for i, q := range a.Queries {
		cols := make(IRArray, len(q.Select))
		for j, p := range q.Select {
			col := IRObject{"as": IRString(p.As)}
			if p.IsCall() {
				args := make(IRArray, len(p.Args))
				for k, e := range p.Args {
					if e.IsConst() {
						c := e.Const
						if c == nil {
							c = IRNull{}
						}
						args[k] = IRObject{"const": c}
					} else {
						args[k] = IRObject{"attr": IRString(e.Attr)}
					}
				}
				col["call"] = IRString(p.Call)
				col["args"] = args
			} else {
				col["attr"] = IRString(p.Attr)
			}
			cols[j] = col
		}
		queries[i] = IRObject{"name": IRString(q.Name), "from": IRString(q.From), "select": cols}
	}

	return IRObject{
		"name":    IRString(a.Name),
		"streams": streams,
		"queries": queries,
	}
}
