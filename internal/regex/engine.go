package regex

import (
	"fmt"
	"slices"
	"sync"
	"unicode/utf8"
)

// Anchor selects how a compiled pattern is applied to a subject.
type Anchor int

const (
	// AnchorSearch finds the pattern anywhere in the subject (find, group).
	AnchorSearch Anchor = iota
	// AnchorFull requires the pattern to consume the whole subject (matches).
	AnchorFull
	// AnchorPrefix requires a match starting at offset 0 (lookingAt).
	AnchorPrefix
)

// String returns the anchor name used in snapshots.
func (a Anchor) String() string {
	switch a {
	case AnchorFull:
		return "full"
	case AnchorPrefix:
		return "prefix"
	default:
		return "search"
	}
}

// ParseAnchor is the inverse of Anchor.String.
func ParseAnchor(s string) (Anchor, error) {
	switch s {
	case "search":
		return AnchorSearch, nil
	case "full":
		return AnchorFull, nil
	case "prefix":
		return AnchorPrefix, nil
	default:
		return 0, fmt.Errorf("unknown anchor %q", s)
	}
}

// anchoredExpr wraps an already validated expression so that the engine's
// leftmost match implements the anchoring. \A and \z are understood by both
// the backtracking and the RE2-family syntaxes.
func anchoredExpr(expr string, a Anchor) string {
	switch a {
	case AnchorFull:
		return `\A(?:` + expr + `)\z`
	case AnchorPrefix:
		return `\A(?:` + expr + `)`
	default:
		return expr
	}
}

// Engine compiles patterns. Implementations must be safe for concurrent use.
type Engine interface {
	// Name is the registry key, stored in snapshots.
	Name() string

	// Compile compiles expr for the given anchoring.
	Compile(expr string, anchor Anchor) (Pattern, error)
}

// Pattern is a compiled pattern. It is immutable and safe for concurrent use.
type Pattern interface {
	// Source returns the expression as written, without anchoring.
	Source() string

	// Engine returns the name of the engine that compiled the pattern.
	Engine() string

	// Anchor returns the anchoring the pattern was compiled for.
	Anchor() Anchor

	// NumGroups returns the number of capture groups.
	NumGroups() int

	// MatchFrom reports whether the pattern matches subject, scanning from
	// the character offset start. An offset outside [0, len] is an *IndexError.
	MatchFrom(subject string, start int) (bool, error)

	// Group returns the text captured by group id in the first match.
	// ok is false if nothing matched, id exceeds NumGroups, or the group did
	// not participate. A negative id on a matching subject is an *IndexError.
	Group(subject string, id int) (text string, ok bool, err error)
}

// DefaultEngine is the engine used when none is configured.
const DefaultEngine = "regexp2"

var (
	enginesMu sync.RWMutex
	engines   = map[string]Engine{}
)

func init() {
	for _, e := range []Engine{
		NewRegexp2Engine(0),
		NewCoregexEngine(),
		NewRE2Engine(),
	} {
		if err := RegisterEngine(e); err != nil {
			panic(err.Error())
		}
	}
}

// RegisterEngine makes an engine available by name.
// Registering a name twice is an error.
func RegisterEngine(e Engine) error {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if _, ok := engines[e.Name()]; ok {
		return fmt.Errorf("regex engine %q already registered", e.Name())
	}
	engines[e.Name()] = e
	return nil
}

// LookupEngine returns the engine registered under name.
// An empty name selects DefaultEngine.
func LookupEngine(name string) (Engine, error) {
	if name == "" {
		name = DefaultEngine
	}

	enginesMu.RLock()
	defer enginesMu.RUnlock()

	e, ok := engines[name]
	if !ok {
		return nil, &SetupError{
			Code:    ErrCodeUnknownEngine,
			Message: fmt.Sprintf("no regex engine named %q (available: %v)", name, engineNamesLocked()),
		}
	}
	return e, nil
}

// EngineNames lists the registered engines in sorted order.
func EngineNames() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return engineNamesLocked()
}

func engineNamesLocked() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// byteOffset converts a character offset into a byte offset of subject.
func byteOffset(subject string, start int) (int, error) {
	if start < 0 {
		return 0, &IndexError{What: "start index", Index: start, Length: utf8.RuneCountInString(subject)}
	}
	if start == 0 {
		return 0, nil
	}

	n := 0
	for i := range subject {
		if n == start {
			return i, nil
		}
		n++
	}
	if n == start {
		return len(subject), nil
	}
	return 0, &IndexError{What: "start index", Index: start, Length: n}
}
