package regex

import (
	"time"

	"github.com/dlclark/regexp2"
)

// regexp2Engine compiles patterns with github.com/dlclark/regexp2, a
// backtracking engine whose syntax and group semantics are close to the
// Java and .NET families (lookaround, backreferences).
type regexp2Engine struct {
	timeout time.Duration
}

// NewRegexp2Engine returns the backtracking engine. A positive timeout bounds
// every single match; zero keeps regexp2's default (no timeout).
func NewRegexp2Engine(timeout time.Duration) Engine {
	return &regexp2Engine{timeout: timeout}
}

func (e *regexp2Engine) Name() string { return "regexp2" }

func (e *regexp2Engine) compile(expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		re.MatchTimeout = e.timeout
	}
	return re, nil
}

func (e *regexp2Engine) Compile(expr string, anchor Anchor) (Pattern, error) {
	re, err := e.compile(expr)
	if err != nil {
		return nil, err
	}
	groups := len(re.GetGroupNumbers()) - 1

	if anchor != AnchorSearch {
		if re, err = e.compile(anchoredExpr(expr, anchor)); err != nil {
			return nil, err
		}
	}

	return &regexp2Pattern{re: re, source: expr, anchor: anchor, groups: groups}, nil
}

type regexp2Pattern struct {
	re     *regexp2.Regexp
	source string
	anchor Anchor
	groups int
}

func (p *regexp2Pattern) Source() string { return p.source }
func (p *regexp2Pattern) Engine() string { return "regexp2" }
func (p *regexp2Pattern) Anchor() Anchor { return p.anchor }
func (p *regexp2Pattern) NumGroups() int { return p.groups }

func (p *regexp2Pattern) MatchFrom(subject string, start int) (bool, error) {
	if _, err := byteOffset(subject, start); err != nil {
		return false, err
	}

	var (
		m   *regexp2.Match
		err error
	)
	if start == 0 {
		m, err = p.re.FindStringMatch(subject)
	} else {
		// The rune form takes a character offset; \A still refers to the
		// start of the subject rather than to the offset.
		m, err = p.re.FindRunesMatchStartingAt([]rune(subject), start)
	}
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (p *regexp2Pattern) Group(subject string, id int) (string, bool, error) {
	m, err := p.re.FindStringMatch(subject)
	if err != nil {
		return "", false, err
	}
	if m == nil {
		return "", false, nil
	}
	if id < 0 {
		return "", false, &IndexError{What: "group", Index: id, Length: -1}
	}
	if id > p.groups {
		return "", false, nil
	}

	g := m.GroupByNumber(id)
	if g == nil || len(g.Captures) == 0 {
		return "", false, nil
	}
	return g.String(), true, nil
}
