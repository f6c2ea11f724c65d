package regex

import (
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
)

// Snapshot keys. A dynamic state carries only SnapshotKeyConstant.
const (
	SnapshotKeyConstant = "is_pattern_constant"
	SnapshotKeyPattern  = "pattern"
	SnapshotKeyEngine   = "pattern_engine"
	SnapshotKeyAnchor   = "pattern_anchor"
)

// State is the per-instance invocation state: constant (a compiled pattern
// shared by every invocation) or dynamic (nothing cached). It never changes
// after creation.
type State struct {
	pattern Pattern
}

// ConstantState returns a state that reuses p for every invocation.
func ConstantState(p Pattern) *State {
	return &State{pattern: p}
}

// DynamicState returns a state that compiles the runtime pattern per call.
func DynamicState() *State {
	return &State{}
}

// IsConstant reports whether the pattern was known at setup.
func (s *State) IsConstant() bool {
	return s.pattern != nil
}

// Pattern returns the cached pattern, or nil for a dynamic state.
func (s *State) Pattern() Pattern {
	return s.pattern
}

// Snapshot renders the state as a flat key-value map.
func (s *State) Snapshot() ir.IRObject {
	if !s.IsConstant() {
		return ir.IRObject{SnapshotKeyConstant: ir.IRBool(false)}
	}
	return ir.IRObject{
		SnapshotKeyConstant: ir.IRBool(true),
		SnapshotKeyPattern:  ir.IRString(s.pattern.Source()),
		SnapshotKeyEngine:   ir.IRString(s.pattern.Engine()),
		SnapshotKeyAnchor:   ir.IRString(s.pattern.Anchor().String()),
	}
}

// sameAs reports whether the state already holds the pattern described by
// a snapshot, so restore can keep it instead of recompiling.
func (s *State) sameAs(source, engine string, anchor Anchor) bool {
	if !s.IsConstant() {
		return false
	}
	return s.pattern.Source() == source && s.pattern.Engine() == engine && s.pattern.Anchor() == anchor
}

// restoreState rebuilds a State from a snapshot. current is reused when it
// already holds the snapshotted pattern; resolve supplies the engine by name.
func restoreState(snap ir.IRObject, want Anchor, current *State, resolve func(string) (Engine, error)) (*State, error) {
	constant, ok := snap[SnapshotKeyConstant].(ir.IRBool)
	if !ok {
		return nil, fmt.Errorf("missing or non-bool %q", SnapshotKeyConstant)
	}
	if !constant {
		return DynamicState(), nil
	}

	source, ok := snap[SnapshotKeyPattern].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("constant snapshot without %q", SnapshotKeyPattern)
	}
	engineName, ok := snap[SnapshotKeyEngine].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("constant snapshot without %q", SnapshotKeyEngine)
	}
	anchorName, ok := snap[SnapshotKeyAnchor].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("constant snapshot without %q", SnapshotKeyAnchor)
	}
	anchor, err := ParseAnchor(string(anchorName))
	if err != nil {
		return nil, err
	}
	if anchor != want {
		return nil, fmt.Errorf("snapshot anchor %q does not match function anchor %q", anchor, want)
	}

	if current != nil && current.sameAs(string(source), string(engineName), anchor) {
		return current, nil
	}

	engine, err := resolve(string(engineName))
	if err != nil {
		return nil, err
	}
	p, err := engine.Compile(string(source), anchor)
	if err != nil {
		return nil, fmt.Errorf("recompile %q: %w", source, err)
	}
	return ConstantState(p), nil
}
