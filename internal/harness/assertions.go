package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/rxfn/internal/ir"
)

// AssertionError provides detailed assertion failure information.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface with a readable failure message.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventSend:
				fmt.Fprintf(&buf, "  [%d] send %s %d rows", i+1, event.Stream, len(event.Rows))
				if event.Error != "" {
					fmt.Fprintf(&buf, " error=%s", event.Error)
				}
				buf.WriteByte('\n')
			default:
				fmt.Fprintf(&buf, "  [%d] %s %s seq=%d\n", i+1, event.Type, event.Revision, event.Seq)
			}
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, h *Harness) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowContains:
			err = assertRowContains(result, a)
		case AssertRowCount:
			err = assertRowCount(result, a)
		case AssertFinalState:
			err = assertFinalState(h, a)
		case AssertRevisionCount:
			err = assertRevisionCount(ctx, h, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertRowContains verifies that some row of the query has the values.
func assertRowContains(result *Result, a Assertion) error {
	for _, row := range result.Rows(a.Query) {
		diff, err := subsetDiff(a.Values, row.Values)
		if err != nil {
			continue
		}
		if diff == "" {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertRowContains,
		Expected: fmt.Sprintf("row of %s with values %v", a.Query, a.Values),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertRowCount verifies the number of rows the query produced.
func assertRowCount(result *Result, a Assertion) error {
	count := len(result.Rows(a.Query))
	if count != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows of %s", a.Count, a.Query),
			Actual:   fmt.Sprintf("%d rows", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState verifies the current snapshot of one instance.
func assertFinalState(h *Harness, a Assertion) error {
	if h == nil || h.runtime == nil {
		return fmt.Errorf("final_state needs a bound app")
	}

	fn, ok := h.runtime.Function(a.Instance)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("instance %s", a.Instance),
			Actual:   fmt.Sprintf("no such instance (have %v)", h.runtime.InstanceKeys()),
		}
	}

	diff, err := subsetDiff(a.Values, fn.Snapshot())
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state of %s with %v", a.Instance, a.Values),
			Actual:   err.Error(),
		}
	}
	if diff != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state of %s with %v", a.Instance, a.Values),
			Actual:   fmt.Sprintf("(-want +got):\n%s", diff),
		}
	}
	return nil
}

// assertRevisionCount verifies how many revisions the store holds.
func assertRevisionCount(ctx context.Context, h *Harness, a Assertion) error {
	if h == nil || h.store == nil {
		return fmt.Errorf("revision_count needs a store")
	}

	revs, err := h.store.ListRevisions(ctx, h.runtime.App().Name)
	if err != nil {
		return err
	}
	if len(revs) != a.Count {
		return &AssertionError{
			Type:     AssertRevisionCount,
			Expected: fmt.Sprintf("%d revisions", a.Count),
			Actual:   fmt.Sprintf("%d revisions: %v", len(revs), revisionIDs(revs)),
		}
	}
	return nil
}

func revisionIDs(revs []ir.Revision) []string {
	ids := make([]string, len(revs))
	for i, r := range revs {
		ids[i] = r.ID
	}
	return ids
}
