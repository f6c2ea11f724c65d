package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
	"github.com/roach88/rxfn/internal/store"
)

// ErrorPolicy decides what happens to a row whose function call fails.
type ErrorPolicy string

const (
	// PolicyDrop logs the error and omits the row.
	PolicyDrop ErrorPolicy = "drop"
	// PolicyFail returns the error to the caller.
	PolicyFail ErrorPolicy = "fail"
)

// ParseErrorPolicy converts "drop" or "fail" into an ErrorPolicy.
// The empty string selects PolicyDrop.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want drop or fail)", s)
	}
}

// DefaultWorkers bounds ProcessBatch concurrency when WithWorkers is not set.
const DefaultWorkers = 8

// Row is the output of one query for one event. Values holds one entry per
// selected column, keyed by the column name.
type Row struct {
	Query  string      `json:"query"`
	Values ir.IRObject `json:"values"`
}

// instance is one bound call site.
type instance struct {
	key    string // "query/column"
	query  string
	column string
	fn     *regex.Function
	args   []ir.Expr
}

// column is one compiled projection of a query.
type column struct {
	as   string
	attr string    // pass-through attribute
	inst *instance // function call, nil for pass-through
}

type boundQuery struct {
	name    string
	from    string
	columns []column
}

// Runtime runs a compiled application.
//
// Thread-safety model:
//   - Send(), ProcessBatch(), Enqueue(): safe from any goroutine
//   - Persist(), RestoreRevision(): safe from any goroutine; a restore
//     swaps instance states atomically per instance
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - queries and instances keep declaration order
//   - instance keys are unique
type Runtime struct {
	app       *ir.App
	appHash   string
	queries   []boundQuery
	instances []*instance
	byStream  map[string][]int // stream -> indexes into queries

	store   *store.Store
	clock   *Clock
	idGen   IDGenerator
	policy  ErrorPolicy
	keep    int
	workers int
	logger  zerolog.Logger
	output  func(Event, []Row, error)

	regexOpts []regex.Option

	queue *eventQueue

	persistMu   sync.Mutex // serializes Persist and Restore
	clockSynced bool
}

// Option allows configuration of runtime parameters.
type Option func(*Runtime)

// WithEngine compiles every pattern with the given matcher engine.
func WithEngine(e regex.Engine) Option {
	return func(r *Runtime) {
		r.regexOpts = append(r.regexOpts, regex.WithEngine(e))
	}
}

// WithLogger sets the logger of the runtime and of every bound function.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithStore enables Persist and Restore.
func WithStore(s *store.Store) Option {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithErrorPolicy sets the policy for failed function calls.
// Default: PolicyDrop.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(r *Runtime) {
		r.policy = p
	}
}

// WithClock sets the logical clock that stamps revisions.
func WithClock(c *Clock) Option {
	return func(r *Runtime) {
		r.clock = c
	}
}

// WithIDGenerator sets the revision id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runtime) {
		r.idGen = g
	}
}

// WithKeepRevisions prunes all but the n most recent revisions after each
// Persist. n <= 0 keeps everything.
func WithKeepRevisions(n int) Option {
	return func(r *Runtime) {
		r.keep = n
	}
}

// WithWorkers bounds the number of goroutines ProcessBatch uses.
func WithWorkers(n int) Option {
	return func(r *Runtime) {
		r.workers = n
	}
}

// WithOutput sets the callback the Run loop hands each event's rows to,
// together with the error of a failed event. Under the fail policy rows
// holds the rows evaluated before the failure.
func WithOutput(fn func(Event, []Row, error)) Option {
	return func(r *Runtime) {
		r.output = fn
	}
}

// New binds every function call of app and returns a ready runtime.
//
// Each call site gets its own regex.Function; a constant pattern is
// compiled here. The first call site that fails setup is returned as a
// *BindError.
func New(app *ir.App, opts ...Option) (*Runtime, error) {
	appHash, err := ir.AppHash(app)
	if err != nil {
		return nil, fmt.Errorf("hash app %q: %w", app.Name, err)
	}

	r := &Runtime{
		app:      app,
		appHash:  appHash,
		byStream: make(map[string][]int),
		clock:    NewClock(),
		idGen:    UUIDv7Generator{},
		policy:   PolicyDrop,
		workers:  DefaultWorkers,
		logger:   zerolog.Nop(),
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("app", app.Name).Logger()
	r.regexOpts = append(r.regexOpts, regex.WithLogger(r.logger))

	for _, q := range app.Queries {
		stream, ok := app.Stream(q.From)
		if !ok {
			return nil, &BindError{Query: q.Name, Err: fmt.Errorf("unknown stream %q", q.From)}
		}

		bq := boundQuery{name: q.Name, from: q.From}
		for _, p := range q.Select {
			if !p.IsCall() {
				bq.columns = append(bq.columns, column{as: p.As, attr: p.Attr})
				continue
			}
			inst, err := r.bind(q.Name, p, stream)
			if err != nil {
				return nil, err
			}
			r.instances = append(r.instances, inst)
			bq.columns = append(bq.columns, column{as: p.As, inst: inst})
		}

		r.byStream[q.From] = append(r.byStream[q.From], len(r.queries))
		r.queries = append(r.queries, bq)
	}

	r.logger.Debug().
		Int("queries", len(r.queries)).
		Int("instances", len(r.instances)).
		Msg("app bound")
	return r, nil
}

// bind sets up one function call of a query.
func (r *Runtime) bind(query string, p ir.Projection, stream ir.StreamDef) (*instance, error) {
	specs := make([]regex.ArgSpec, len(p.Args))
	for i, e := range p.Args {
		if e.IsConst() {
			c := e.Const
			if c == nil {
				c = ir.IRNull{}
			}
			specs[i] = regex.Const(c)
			continue
		}
		attr, ok := stream.Attribute(e.Attr)
		if !ok {
			return nil, &BindError{
				Query:  query,
				Column: p.As,
				Err:    fmt.Errorf("stream %q has no attribute %q", stream.Name, e.Attr),
			}
		}
		specs[i] = regex.Var(attr.Type)
	}

	fn, err := regex.New(p.Call, specs, r.regexOpts...)
	if err != nil {
		return nil, &BindError{Query: query, Column: p.As, Err: err}
	}
	return &instance{
		key:    query + "/" + p.As,
		query:  query,
		column: p.As,
		fn:     fn,
		args:   p.Args,
	}, nil
}

// App returns the application the runtime was built from.
func (r *Runtime) App() *ir.App { return r.app }

// AppHash returns the content hash of the application.
func (r *Runtime) AppHash() string { return r.appHash }

// InstanceKeys returns the keys of all bound call sites in declaration order.
func (r *Runtime) InstanceKeys() []string {
	keys := make([]string, len(r.instances))
	for i, inst := range r.instances {
		keys[i] = inst.key
	}
	return keys
}

// Function returns the bound function with the given instance key.
func (r *Runtime) Function(key string) (*regex.Function, bool) {
	for _, inst := range r.instances {
		if inst.key == key {
			return inst.fn, true
		}
	}
	return nil, false
}

// Send evaluates one event against every query reading stream and returns
// the rows in query declaration order. Attributes missing from the event
// are null.
//
// Under PolicyDrop a failed call drops that query's row and the other
// queries still produce theirs. Under PolicyFail the first failure is
// returned as an *EvalError together with the rows produced before it.
func (r *Runtime) Send(ctx context.Context, stream string, event ir.IRObject) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, ok := r.byStream[stream]
	if !ok {
		if _, declared := r.app.Stream(stream); !declared {
			return nil, &RuntimeError{
				Code:    ErrCodeUnknownStream,
				Message: fmt.Sprintf("app %q has no stream %q", r.app.Name, stream),
			}
		}
		return []Row{}, nil
	}

	rows := make([]Row, 0, len(idx))
	for _, i := range idx {
		row, err := r.evalQuery(&r.queries[i], event)
		if err != nil {
			if r.policy == PolicyFail {
				return rows, err
			}
			r.logger.Warn().Err(err).Str("stream", stream).Msg("row dropped")
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Runtime) evalQuery(q *boundQuery, event ir.IRObject) (Row, error) {
	values := make(ir.IRObject, len(q.columns))
	for _, c := range q.columns {
		if c.inst == nil {
			values[c.as] = attrValue(event, c.attr)
			continue
		}
		args := make([]ir.IRValue, len(c.inst.args))
		for i, e := range c.inst.args {
			if e.IsConst() {
				args[i] = e.Const
			} else {
				args[i] = attrValue(event, e.Attr)
			}
		}
		v, err := c.inst.fn.Execute(args)
		if err != nil {
			return Row{}, &EvalError{Query: q.name, Column: c.as, Err: err}
		}
		values[c.as] = v
	}
	return Row{Query: q.name, Values: values}, nil
}

func attrValue(event ir.IRObject, name string) ir.IRValue {
	v, ok := event[name]
	if !ok || v == nil {
		return ir.IRNull{}
	}
	return v
}

// ProcessBatch evaluates events concurrently, bounded by WithWorkers.
// The result has one entry per event, in input order. The first error
// cancels the remaining work and is returned.
func (r *Runtime) ProcessBatch(ctx context.Context, events []Event) ([][]Row, error) {
	out := make([][]Row, len(events))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.workers, 1))
	for i, ev := range events {
		g.Go(func() error {
			rows, err := r.Send(ctx, ev.Stream, ev.Data)
			if err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			out[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the runtime has been stopped.
func (r *Runtime) Enqueue(ev Event) bool {
	return r.queue.Enqueue(ev)
}

// Run is the single-writer event loop. It evaluates queued events in
// enqueue order and hands each result, failed ones included, to the
// WithOutput callback. It returns nil once Stop was called and the queue is
// drained, or the context's error.
//
// Must be called from exactly one goroutine.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info().Msg("runtime starting")

	for {
		batch, err := r.queue.take(ctx)
		if errors.Is(err, errQueueClosed) {
			r.logger.Info().Msg("runtime stopping: queue closed")
			return nil
		}
		if err != nil {
			r.queue.Close()
			r.logger.Info().Msg("runtime stopping: context cancelled")
			return err
		}

		for _, ev := range batch {
			rows, err := r.Send(ctx, ev.Stream, ev.Data)
			if err != nil {
				if ctx.Err() != nil {
					r.queue.Close()
					return ctx.Err()
				}
				r.logger.Error().Err(err).Str("stream", ev.Stream).Msg("event failed")
			}
			if r.output != nil {
				r.output(ev, rows, err)
			}
		}
	}
}

// Stop closes the event queue. Run returns once the queued events are
// processed.
func (r *Runtime) Stop() {
	r.queue.Close()
}
