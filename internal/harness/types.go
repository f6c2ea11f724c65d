package harness

import (
	"github.com/roach88/rxfn/internal/engine"
	"github.com/roach88/rxfn/internal/ir"
)

// Trace event types.
const (
	EventSend    = "send"
	EventPersist = "persist"
	EventRestore = "restore"
)

// TraceEvent records what one step did.
type TraceEvent struct {
	Type     string       `json:"type"`
	Stream   string       `json:"stream,omitempty"`
	Event    ir.IRObject  `json:"event,omitempty"`
	Rows     []engine.Row `json:"rows,omitempty"`
	Error    string       `json:"error,omitempty"` // error code, see ErrorCode
	Revision string       `json:"revision,omitempty"`
	Seq      int64        `json:"seq,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddSendTrace adds an evaluated event to the trace.
func (r *Result) AddSendTrace(stream string, event ir.IRObject, rows []engine.Row, code string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventSend,
		Stream: stream,
		Event:  event,
		Rows:   rows,
		Error:  code,
	})
}

// AddRevisionTrace adds a persist or restore to the trace.
func (r *Result) AddRevisionTrace(typ string, rev ir.Revision) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:     typ,
		Revision: rev.ID,
		Seq:      rev.Seq,
	})
}

// Rows returns every row query produced, in trace order.
func (r *Result) Rows(query string) []engine.Row {
	var rows []engine.Row
	for _, ev := range r.Trace {
		for _, row := range ev.Rows {
			if row.Query == query {
				rows = append(rows, row)
			}
		}
	}
	return rows
}
