package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/roach88/rxfn/internal/compiler"
	"github.com/roach88/rxfn/internal/engine"
	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
	"github.com/roach88/rxfn/internal/store"
)

// IndexErrorCode is the code ErrorCode reports for a *regex.IndexError.
const IndexErrorCode = "INDEX_OUT_OF_BOUNDS"

// Harness executes the steps of one scenario.
type Harness struct {
	store   *store.Store
	runtime *engine.Runtime
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger routes runtime logs (dropped rows, soft failures) to l.
// Default: discarded.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// An error is returned only when the scenario cannot be executed at all
// (the app does not compile, the store cannot be opened); failed
// expectations are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	app, err := compiler.LoadDir(scenario.App)
	if err != nil {
		return nil, fmt.Errorf("load app: %w", err)
	}
	// A scenario expecting a setup error checks what binding reports, so
	// reference validation must not stop it first.
	if scenario.ExpectSetupError == "" {
		if errs := compiler.Validate(app); len(errs) > 0 {
			return nil, fmt.Errorf("load app: %w", errs[0])
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	engineOpts := []engine.Option{
		engine.WithStore(st),
		engine.WithClock(engine.NewClock()),
		engine.WithIDGenerator(engine.NewFixedGenerator()),
		engine.WithLogger(o.logger),
		engine.WithErrorPolicy(engine.PolicyFail),
	}
	if scenario.OnError == string(engine.PolicyDrop) {
		engineOpts = append(engineOpts, engine.WithErrorPolicy(engine.PolicyDrop))
	}
	if scenario.Engine != "" {
		e, err := regex.LookupEngine(scenario.Engine)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithEngine(e))
	}

	result := NewResult()

	rt, err := engine.New(app, engineOpts...)
	if scenario.ExpectSetupError != "" {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected setup error %s, app bound without error", scenario.ExpectSetupError))
		case !errorMatches(err, scenario.ExpectSetupError):
			result.AddError(fmt.Sprintf("expected setup error %s, got: %v", scenario.ExpectSetupError, err))
		}
		if err != nil || len(scenario.Steps) == 0 {
			return result, nil
		}
	} else if err != nil {
		return nil, fmt.Errorf("bind app: %w", err)
	}

	h := &Harness{store: st, runtime: rt}
	ctx := context.Background()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, errMsg := range EvaluateAssertions(ctx, result, scenario.Assertions, h) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeStep runs one step and records it in the trace. Returned errors
// abort the scenario; expectation failures go into result.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Send != nil:
		event, err := ir.ObjectFromAny(step.Send.Event)
		if err != nil {
			return fmt.Errorf("convert event: %w", err)
		}

		rows, err := h.runtime.Send(ctx, step.Send.Stream, event)
		result.AddSendTrace(step.Send.Stream, event, rows, ErrorCode(err))

		if step.ExpectError != "" {
			switch {
			case err == nil:
				result.AddError(fmt.Sprintf("steps[%d]: expected error %s, send succeeded", index, step.ExpectError))
			case !errorMatches(err, step.ExpectError):
				result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got: %v", index, step.ExpectError, err))
			}
			return nil
		}
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, err))
			return nil
		}
		for _, msg := range checkExpect(rows, step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", index, msg))
		}
		return nil

	case step.Persist:
		rev, err := h.runtime.Persist(ctx)
		if err != nil {
			return err
		}
		result.AddRevisionTrace(EventPersist, rev)
		return nil

	default:
		var rev ir.Revision
		var err error
		if step.Restore == RestoreLast {
			rev, err = h.runtime.RestoreLastRevision(ctx)
		} else {
			rev, err = h.runtime.RestoreRevision(ctx, step.Restore)
		}
		if err != nil {
			return err
		}
		result.AddRevisionTrace(EventRestore, rev)
		return nil
	}
}

// checkExpect compares rows against the expected values per query.
func checkExpect(rows []engine.Row, expect map[string]map[string]any) []string {
	byQuery := make(map[string]engine.Row, len(rows))
	for _, r := range rows {
		byQuery[r.Query] = r
	}

	queries := make([]string, 0, len(expect))
	for q := range expect {
		queries = append(queries, q)
	}
	sort.Strings(queries)

	var msgs []string
	for _, q := range queries {
		want := expect[q]
		row, ok := byQuery[q]
		if want == nil {
			if ok {
				msgs = append(msgs, fmt.Sprintf("query %s: expected no row, got %v", q, row.Values))
			}
			continue
		}
		if !ok {
			msgs = append(msgs, fmt.Sprintf("query %s: expected a row, got none", q))
			continue
		}
		if diff, err := subsetDiff(want, row.Values); err != nil {
			msgs = append(msgs, fmt.Sprintf("query %s: %v", q, err))
		} else if diff != "" {
			msgs = append(msgs, fmt.Sprintf("query %s: values mismatch (-want +got):\n%s", q, diff))
		}
	}
	return msgs
}

// subsetDiff compares the keys of want against got. Returns an empty diff
// if every key in want has an equal value in got.
func subsetDiff(want map[string]any, got ir.IRObject) (string, error) {
	expected, err := ir.ObjectFromAny(want)
	if err != nil {
		return "", fmt.Errorf("expected values: %w", err)
	}

	actual := make(ir.IRObject, len(expected))
	for k := range expected {
		v, ok := got[k]
		if !ok {
			return "", fmt.Errorf("column %q not present", k)
		}
		actual[k] = v
	}
	return cmp.Diff(expected, actual), nil
}

// ErrorCode returns a stable code for err: the code of a regex or engine
// error, IndexErrorCode for index errors, "ERROR" for anything else and ""
// for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var setupErr *regex.SetupError
	var runtimeErr *regex.RuntimeError
	var indexErr *regex.IndexError
	var engineErr *engine.RuntimeError
	switch {
	case errors.As(err, &setupErr):
		return string(setupErr.Code)
	case errors.As(err, &runtimeErr):
		return string(runtimeErr.Code)
	case errors.As(err, &indexErr):
		return IndexErrorCode
	case errors.As(err, &engineErr):
		return string(engineErr.Code)
	default:
		return "ERROR"
	}
}

// errorMatches reports whether err has the expected code or its message
// contains expected.
func errorMatches(err error, expected string) bool {
	return ErrorCode(err) == expected || strings.Contains(err.Error(), expected)
}
