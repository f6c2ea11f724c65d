package regex

import (
	"github.com/coregx/coregex"
	"github.com/wasilibs/go-re2"
)

// stdRegexp is the stdlib-shaped API shared by the RE2-family engines.
type stdRegexp interface {
	MatchString(s string) bool
	FindStringSubmatchIndex(s string) []int
	NumSubexp() int
}

// stdEngine adapts any stdlib-shaped engine. RE2-family engines have no
// start offset, so find slices the subject at the offset; ^ and \b then see
// the offset as the beginning of input.
//
// captures, when set, compiles the twin used for group extraction and the
// group count, for engines whose submatch spans cannot be trusted.
type stdEngine struct {
	name     string
	compile  func(expr string) (stdRegexp, error)
	captures func(expr string) (stdRegexp, error)
}

// NewCoregexEngine returns the pure-Go github.com/coregx/coregex engine.
// coregex v0.10 miscounts and misplaces capture groups, so matching runs on
// coregex while group extraction runs on an RE2 twin of the same pattern.
func NewCoregexEngine() Engine {
	return &stdEngine{
		name: "coregex",
		compile: func(expr string) (stdRegexp, error) {
			re, err := coregex.Compile(expr)
			if err != nil {
				return nil, err
			}
			return re, nil
		},
		captures: compileRE2,
	}
}

// NewRE2Engine returns the github.com/wasilibs/go-re2 engine (RE2 compiled
// to WebAssembly, or cgo when built with the re2_cgo tag).
func NewRE2Engine() Engine {
	return &stdEngine{
		name: "re2",
		compile: compileRE2,
	}
}

func compileRE2(expr string) (stdRegexp, error) {
	re, err := re2.Compile(expr)
	if err != nil {
		return nil, err
	}
	return re, nil
}

func (e *stdEngine) Name() string { return e.name }

func (e *stdEngine) Compile(expr string, anchor Anchor) (Pattern, error) {
	re, err := e.compile(expr)
	if err != nil {
		return nil, err
	}
	capt := re
	if e.captures != nil {
		if capt, err = e.captures(expr); err != nil {
			return nil, err
		}
	}
	groups := capt.NumSubexp()

	if anchor != AnchorSearch {
		full := anchoredExpr(expr, anchor)
		if re, err = e.compile(full); err != nil {
			return nil, err
		}
		capt = re
		if e.captures != nil {
			if capt, err = e.captures(full); err != nil {
				return nil, err
			}
		}
	}

	return &stdPattern{re: re, capt: capt, engine: e.name, source: expr, anchor: anchor, groups: groups}, nil
}

type stdPattern struct {
	re     stdRegexp
	capt   stdRegexp // submatch spans; same as re unless the engine has a captures twin
	engine string
	source string
	anchor Anchor
	groups int
}

func (p *stdPattern) Source() string { return p.source }
func (p *stdPattern) Engine() string { return p.engine }
func (p *stdPattern) Anchor() Anchor { return p.anchor }
func (p *stdPattern) NumGroups() int { return p.groups }

func (p *stdPattern) MatchFrom(subject string, start int) (bool, error) {
	off, err := byteOffset(subject, start)
	if err != nil {
		return false, err
	}
	return p.re.MatchString(subject[off:]), nil
}

func (p *stdPattern) Group(subject string, id int) (string, bool, error) {
	loc := p.capt.FindStringSubmatchIndex(subject)
	if loc == nil {
		return "", false, nil
	}
	if id < 0 {
		return "", false, &IndexError{What: "group", Index: id, Length: -1}
	}
	if id > p.groups || 2*id+1 >= len(loc) || loc[2*id] < 0 {
		return "", false, nil
	}
	return subject[loc[2*id]:loc[2*id+1]], true, nil
}
