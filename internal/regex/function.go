package regex

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/roach88/rxfn/internal/ir"
)

// ArgSpec describes one argument of a call site as the host sees it at
// setup: its declared type and, for literals, the constant value.
type ArgSpec struct {
	Type     ir.Type
	Constant bool
	Value    ir.IRValue
}

// Const describes a literal argument. The type is taken from the value.
func Const(v ir.IRValue) ArgSpec {
	return ArgSpec{Type: ir.TypeOf(v), Constant: true, Value: v}
}

// Var describes a per-event argument of the given type.
func Var(t ir.Type) ArgSpec {
	return ArgSpec{Type: t}
}

// Option configures a Function.
type Option func(*Function)

// WithEngine selects the engine that compiles patterns.
func WithEngine(e Engine) Option {
	return func(f *Function) {
		f.engine = e
	}
}

// WithLogger sets the logger used for soft failures.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Function) {
		f.logger = l
	}
}

// Function is one call site of a regex function. Instances are independent:
// the same function used twice in a query gets two Functions.
//
// Execute is safe for concurrent use, also concurrently with Restore.
type Function struct {
	desc   Descriptor
	engine Engine
	logger zerolog.Logger
	arity  int
	state  atomic.Pointer[State]
}

// New validates a call site of the named function and prepares its state.
// All failures are *SetupError.
func New(name string, args []ArgSpec, opts ...Option) (*Function, error) {
	desc, ok := Lookup(name)
	if !ok {
		return nil, &SetupError{
			Code:     ErrCodeUnknownFunction,
			Function: name,
			Message:  fmt.Sprintf("no function %q in namespace %q", name, Namespace),
		}
	}
	fn := desc.QualifiedName()

	f := &Function{
		desc:   desc,
		logger: zerolog.Nop(),
		arity:  len(args),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.engine == nil {
		e, err := LookupEngine(DefaultEngine)
		if err != nil {
			return nil, err
		}
		f.engine = e
	}
	f.logger = f.logger.With().Str("function", fn).Logger()

	if len(args) < desc.MinArity() || len(args) > desc.MaxArity() {
		return nil, arityError(fn, desc.arityText(), len(args))
	}
	for i, a := range args {
		if want := desc.Params[i].Type; a.Type != want {
			return nil, typeError(fn, i+1, want, a.Type)
		}
	}

	if !args[0].Constant {
		f.state.Store(DynamicState())
		return f, nil
	}

	if ir.IsNull(args[0].Value) {
		return nil, &SetupError{
			Code:     ErrCodeNullConstant,
			Function: fn,
			Message:  fmt.Sprintf("constant pattern of %s() function cannot be null", fn),
		}
	}
	src, ok := args[0].Value.(ir.IRString)
	if !ok {
		return nil, typeError(fn, 1, ir.TypeString, ir.TypeOf(args[0].Value))
	}
	p, err := f.engine.Compile(string(src), desc.anchor)
	if err != nil {
		return nil, &SetupError{
			Code:     ErrCodeInvalidPatternSetup,
			Function: fn,
			Message:  fmt.Sprintf("cannot compile pattern %q of %s() function", string(src), fn),
			Err:      err,
		}
	}
	f.state.Store(ConstantState(p))
	return f, nil
}

// Descriptor returns the descriptor of the function.
func (f *Function) Descriptor() Descriptor { return f.desc }

// Name returns the qualified function name.
func (f *Function) Name() string { return f.desc.QualifiedName() }

// Engine returns the engine patterns are compiled with.
func (f *Function) Engine() Engine { return f.engine }

// State returns the current state.
func (f *Function) State() *State { return f.state.Load() }

// Execute evaluates the function for one event. args must have the arity
// the function was set up with.
func (f *Function) Execute(args []ir.IRValue) (ir.IRValue, error) {
	if len(args) != f.arity {
		return nil, &RuntimeError{
			Code:     ErrCodeInvalidArgument,
			Function: f.Name(),
			Message:  fmt.Sprintf("%s() function was set up with %d arguments, but called with %d", f.Name(), f.arity, len(args)),
		}
	}
	return f.desc.invoke(f, args)
}

// Snapshot captures the current state.
func (f *Function) Snapshot() ir.IRObject {
	return f.state.Load().Snapshot()
}

// Restore replaces the state with one rebuilt from snap. The current
// compiled pattern is kept if snap describes the same pattern.
func (f *Function) Restore(snap ir.IRObject) error {
	s, err := restoreState(snap, f.desc.anchor, f.state.Load(), f.resolveEngine)
	if err != nil {
		return &RuntimeError{
			Code:     ErrCodeInvalidSnapshot,
			Function: f.Name(),
			Message:  fmt.Sprintf("cannot restore state of %s() function", f.Name()),
			Err:      err,
		}
	}
	f.state.Store(s)
	return nil
}

// resolveEngine prefers the configured engine so its options (match
// timeout) survive a restore.
func (f *Function) resolveEngine(name string) (Engine, error) {
	if name == f.engine.Name() {
		return f.engine, nil
	}
	return LookupEngine(name)
}

// pattern returns the cached pattern or compiles the runtime one.
func (f *Function) pattern(arg ir.IRValue) (Pattern, error) {
	if s := f.state.Load(); s.IsConstant() {
		return s.Pattern(), nil
	}

	src, ok := arg.(ir.IRString)
	if !ok {
		return nil, invalidArgument(f.Name(), 1, "a string")
	}
	p, err := f.engine.Compile(string(src), f.desc.anchor)
	if err != nil {
		return nil, &RuntimeError{
			Code:     ErrCodeInvalidPattern,
			Function: f.Name(),
			Arg:      1,
			Message:  fmt.Sprintf("cannot compile pattern %q of %s() function", string(src), f.Name()),
			Err:      err,
		}
	}
	return p, nil
}

// subject returns the subject argument as a string.
func (f *Function) subject(arg ir.IRValue) (string, error) {
	s, ok := arg.(ir.IRString)
	if !ok {
		return "", invalidArgument(f.Name(), 2, "a string")
	}
	return string(s), nil
}

// softFail logs a null argument that yields false instead of an error.
func (f *Function) softFail(pos int) (ir.IRValue, error) {
	f.logger.Debug().
		Int("arg", pos).
		Msgf("invalid input given to %s() function. %s argument is null, returning false",
			f.Name(), capitalize(ordinal(pos)))
	return ir.IRBool(false), nil
}
