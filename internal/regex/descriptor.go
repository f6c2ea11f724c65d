package regex

import (
	"fmt"
	"strings"

	"github.com/roach88/rxfn/internal/ir"
)

// Namespace is the extension namespace all functions register under.
const Namespace = "regex"

// Param describes one positional parameter of a function.
type Param struct {
	Name        string  `json:"name"`
	Type        ir.Type `json:"type"`
	Optional    bool    `json:"optional,omitempty"`
	Description string  `json:"description"`
}

// Descriptor is what a function registers with the host: its name, the
// parameters the query compiler type-checks against, and its return type.
type Descriptor struct {
	Namespace   string  `json:"namespace"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	ReturnType  ir.Type `json:"return_type"`

	anchor Anchor
	invoke invokeFunc
}

// invokeFunc evaluates one event for a function instance. args has already
// been checked against the setup arity.
type invokeFunc func(f *Function, args []ir.IRValue) (ir.IRValue, error)

// QualifiedName returns "namespace:name", the form used in queries.
func (d Descriptor) QualifiedName() string {
	return d.Namespace + ":" + d.Name
}

// MinArity is the number of mandatory parameters.
func (d Descriptor) MinArity() int {
	n := 0
	for _, p := range d.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// MaxArity is the total number of parameters.
func (d Descriptor) MaxArity() int {
	return len(d.Params)
}

// arityText renders the accepted arities for error messages, e.g. "2 or 3".
func (d Descriptor) arityText() string {
	if d.MinArity() == d.MaxArity() {
		return fmt.Sprintf("%d", d.MaxArity())
	}
	parts := make([]string, 0, d.MaxArity()-d.MinArity()+1)
	for n := d.MinArity(); n <= d.MaxArity(); n++ {
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	return strings.Join(parts, " or ")
}

var (
	paramRegex = Param{
		Name:        "regex",
		Type:        ir.TypeString,
		Description: "A regular expression, e.g. \\d\\d(.*)WSO2.",
	}
	paramInput = Param{
		Name:        "input.sequence",
		Type:        ir.TypeString,
		Description: "The input sequence to be matched with the regular expression.",
	}
)

var catalog = []Descriptor{
	{
		Namespace:   Namespace,
		Name:        "find",
		Description: "Finds the subsequence of the input sequence that matches the regular expression, optionally starting at a character offset.",
		Params: []Param{
			paramRegex,
			paramInput,
			{
				Name:        "starting.index",
				Type:        ir.TypeInt,
				Optional:    true,
				Description: "The character offset the search starts from.",
			},
		},
		ReturnType: ir.TypeBool,
		anchor:     AnchorSearch,
		invoke:     executeFind,
	},
	{
		Namespace:   Namespace,
		Name:        "group",
		Description: "Returns the subsequence captured by the given group during the first match.",
		Params: []Param{
			paramRegex,
			paramInput,
			{
				Name:        "group.id",
				Type:        ir.TypeInt,
				Description: "The capture group to return; 0 is the whole match.",
			},
		},
		ReturnType: ir.TypeString,
		anchor:     AnchorSearch,
		invoke:     executeGroup,
	},
	{
		Namespace:   Namespace,
		Name:        "lookingAt",
		Description: "Matches the input sequence from the beginning against the regular expression without requiring the whole sequence to match.",
		Params:      []Param{paramRegex, paramInput},
		ReturnType:  ir.TypeBool,
		anchor:      AnchorPrefix,
		invoke:      executeAnchored,
	},
	{
		Namespace:   Namespace,
		Name:        "matches",
		Description: "Matches the entire input sequence against the regular expression.",
		Params:      []Param{paramRegex, paramInput},
		ReturnType:  ir.TypeBool,
		anchor:      AnchorFull,
		invoke:      executeAnchored,
	},
}

// Catalog returns the descriptors of every function, sorted by name.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a descriptor by qualified ("regex:find") or bare ("find") name.
func Lookup(name string) (Descriptor, bool) {
	ns, fn, ok := strings.Cut(name, ":")
	if !ok {
		ns, fn = Namespace, name
	}
	for _, d := range catalog {
		if d.Namespace == ns && d.Name == fn {
			return d, true
		}
	}
	return Descriptor{}, false
}
