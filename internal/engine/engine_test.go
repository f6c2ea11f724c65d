package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
	"github.com/roach88/rxfn/internal/store"
)

const wso2 = "21 products are produced by WSO2 currently"

func call(fn string, args ...ir.Expr) ir.Projection {
	return ir.Projection{Call: fn, Args: args}
}

func lit(v ir.IRValue) ir.Expr { return ir.Expr{Const: v} }
func ref(attr string) ir.Expr  { return ir.Expr{Attr: attr} }

func as(name string, p ir.Projection) ir.Projection {
	p.As = name
	return p
}

// testApp reads inputStream with three queries: a constant find, a
// dynamic matches and a group extraction.
func testApp() *ir.App {
	return &ir.App{
		Name: "stocks",
		Streams: []ir.StreamDef{
			{Name: "inputStream", Attributes: []ir.Attribute{
				{Name: "symbol", Type: ir.TypeString},
				{Name: "price", Type: ir.TypeLong},
				{Name: "regex", Type: ir.TypeString},
				{Name: "group", Type: ir.TypeInt},
			}},
			{Name: "quiet", Attributes: []ir.Attribute{
				{Name: "symbol", Type: ir.TypeString},
			}},
		},
		Queries: []ir.QuerySpec{
			{Name: "aboutWSO2", From: "inputStream", Select: []ir.Projection{
				{As: "symbol", Attr: "symbol"},
				as("aboutWSO2", call("regex:find", lit(ir.IRString(`\d\d(.*)WSO2`)), ref("symbol"))),
			}},
			{Name: "dynamic", From: "inputStream", Select: []ir.Projection{
				as("m", call("regex:matches", ref("regex"), ref("symbol"))),
			}},
			{Name: "grp", From: "inputStream", Select: []ir.Projection{
				{As: "price", Attr: "price"},
				as("g", call("regex:group", lit(ir.IRString(`(\d\d)(.*)`)), ref("symbol"), ref("group"))),
			}},
		},
	}
}

func newRuntime(t *testing.T, app *ir.App, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(app, opts...)
	require.NoError(t, err)
	return r
}

func event(symbol string, price int64, re string, group int64) ir.IRObject {
	return ir.IRObject{
		"symbol": ir.IRString(symbol),
		"price":  ir.IRInt(price),
		"regex":  ir.IRString(re),
		"group":  ir.IRInt(group),
	}
}

func TestNew_BindsInstances(t *testing.T) {
	r := newRuntime(t, testApp())

	assert.Equal(t, []string{"aboutWSO2/aboutWSO2", "dynamic/m", "grp/g"}, r.InstanceKeys())
	assert.NotEmpty(t, r.AppHash())

	fn, ok := r.Function("aboutWSO2/aboutWSO2")
	require.True(t, ok)
	assert.Equal(t, "regex:find", fn.Name())
	assert.True(t, fn.State().IsConstant())

	fn, ok = r.Function("dynamic/m")
	require.True(t, ok)
	assert.False(t, fn.State().IsConstant())

	_, ok = r.Function("nope/nope")
	assert.False(t, ok)
}

func TestNew_BindErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(app *ir.App)
		query  string
		column string
		code   regex.SetupErrorCode
	}{
		{
			name: "invalid constant pattern",
			mutate: func(app *ir.App) {
				app.Queries[0].Select[1].Args[0] = lit(ir.IRString("(unclosed"))
			},
			query: "aboutWSO2", column: "aboutWSO2", code: regex.ErrCodeInvalidPatternSetup,
		},
		{
			name: "long subject",
			mutate: func(app *ir.App) {
				app.Queries[0].Select[1].Args[1] = ref("price")
			},
			query: "aboutWSO2", column: "aboutWSO2", code: regex.ErrCodeTypeMismatch,
		},
		{
			name: "arity",
			mutate: func(app *ir.App) {
				app.Queries[1].Select[0].Args = []ir.Expr{ref("regex")}
			},
			query: "dynamic", column: "m", code: regex.ErrCodeArityMismatch,
		},
		{
			name: "unknown function",
			mutate: func(app *ir.App) {
				app.Queries[2].Select[1].Call = "regex:split"
			},
			query: "grp", column: "g", code: regex.ErrCodeUnknownFunction,
		},
		{
			name: "null literal pattern",
			mutate: func(app *ir.App) {
				app.Queries[0].Select[1].Args[0] = lit(nil)
			},
			query: "aboutWSO2", column: "aboutWSO2", code: regex.ErrCodeTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp()
			tt.mutate(app)

			_, err := New(app)
			require.Error(t, err)
			assert.True(t, IsBindError(err))

			var be *BindError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.query, be.Query)
			assert.Equal(t, tt.column, be.Column)

			var se *regex.SetupError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
		})
	}
}

func TestNew_UnknownReferences(t *testing.T) {
	app := testApp()
	app.Queries[0].Select[1].Args[1] = ref("missing")
	_, err := New(app)
	require.Error(t, err)
	assert.True(t, IsBindError(err))
	assert.Contains(t, err.Error(), `no attribute "missing"`)

	app = testApp()
	app.Queries[1].From = "nowhere"
	_, err = New(app)
	require.Error(t, err)
	assert.True(t, IsBindError(err))
	assert.Contains(t, err.Error(), `unknown stream "nowhere"`)
}

func TestSend_Rows(t *testing.T) {
	r := newRuntime(t, testApp())

	rows, err := r.Send(context.Background(), "inputStream", event(wso2, 700, `\d+ products.*`, 1))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{Query: "aboutWSO2", Values: ir.IRObject{
		"symbol":    ir.IRString(wso2),
		"aboutWSO2": ir.IRBool(true),
	}}, rows[0])
	assert.Equal(t, Row{Query: "dynamic", Values: ir.IRObject{"m": ir.IRBool(true)}}, rows[1])
	assert.Equal(t, Row{Query: "grp", Values: ir.IRObject{
		"price": ir.IRInt(700),
		"g":     ir.IRString("21"),
	}}, rows[2])
}

func TestSend_NoMatch(t *testing.T) {
	r := newRuntime(t, testApp())

	rows, err := r.Send(context.Background(), "inputStream", event("WSO2 ships 21 products", 10, "WSO2", 2))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, ir.IRBool(false), rows[0].Values["aboutWSO2"])
	assert.Equal(t, ir.IRBool(false), rows[1].Values["m"])
	assert.Equal(t, ir.IRString(" products"), rows[2].Values["g"])
}

func TestSend_MissingAttributesAreNull(t *testing.T) {
	r := newRuntime(t, testApp(), WithErrorPolicy(PolicyFail))

	// Only the null subject reaches the functions; find and matches soft
	// fail, group raises.
	rows, err := r.Send(context.Background(), "inputStream", ir.IRObject{"regex": ir.IRString("x")})
	require.Error(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.IRNull{}, rows[0].Values["symbol"])
	assert.Equal(t, ir.IRBool(false), rows[0].Values["aboutWSO2"])
	assert.Equal(t, ir.IRBool(false), rows[1].Values["m"])

	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "grp", ee.Query)
	assert.Equal(t, "g", ee.Column)
}

func TestSend_DropPolicy(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := newRuntime(t, testApp(), WithLogger(logger))

	// Null pattern on the dynamic query: that row is dropped, the others stay.
	ev := event(wso2, 1, "", 1)
	ev["regex"] = ir.IRNull{}

	rows, err := r.Send(context.Background(), "inputStream", ev)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "aboutWSO2", rows[0].Query)
	assert.Equal(t, "grp", rows[1].Query)

	assert.Contains(t, buf.String(), "row dropped")
	assert.Contains(t, buf.String(), `"app":"stocks"`)
}

func TestSend_FailPolicy(t *testing.T) {
	r := newRuntime(t, testApp(), WithErrorPolicy(PolicyFail))

	ev := event(wso2, 1, "", 1)
	ev["regex"] = ir.IRNull{}

	rows, err := r.Send(context.Background(), "inputStream", ev)
	require.Error(t, err)
	assert.True(t, IsEvalError(err))
	assert.Len(t, rows, 1, "rows before the failing query are returned")

	var re *regex.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, regex.ErrCodeNullArgument, re.Code)
	assert.Equal(t, 1, re.Arg)
}

func TestSend_IndexErrorSurfaces(t *testing.T) {
	r := newRuntime(t, testApp(), WithErrorPolicy(PolicyFail))

	_, err := r.Send(context.Background(), "inputStream", event(wso2, 1, ".*", -1))
	require.Error(t, err)
	assert.True(t, regex.IsIndexError(err))
}

func TestSend_UnknownStream(t *testing.T) {
	r := newRuntime(t, testApp())

	_, err := r.Send(context.Background(), "outputStream", ir.IRObject{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnknownStream))
}

func TestSend_StreamWithoutQueries(t *testing.T) {
	r := newRuntime(t, testApp())

	rows, err := r.Send(context.Background(), "quiet", ir.IRObject{"symbol": ir.IRString("x")})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSend_CancelledContext(t *testing.T) {
	r := newRuntime(t, testApp())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Send(ctx, "inputStream", event(wso2, 1, ".*", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_EveryEngine(t *testing.T) {
	for _, name := range regex.EngineNames() {
		t.Run(name, func(t *testing.T) {
			e, err := regex.LookupEngine(name)
			require.NoError(t, err)
			r := newRuntime(t, testApp(), WithEngine(e))

			fn, _ := r.Function("aboutWSO2/aboutWSO2")
			assert.Equal(t, name, fn.Engine().Name())

			rows, err := r.Send(context.Background(), "inputStream", event(wso2, 1, `\d+.*`, 1))
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, ir.IRBool(true), rows[0].Values["aboutWSO2"])
			assert.Equal(t, ir.IRBool(true), rows[1].Values["m"])
			assert.Equal(t, ir.IRString("21"), rows[2].Values["g"])
		})
	}
}

func TestSend_ConcurrentCallers(t *testing.T) {
	r := newRuntime(t, testApp())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rows, err := r.Send(context.Background(), "inputStream", event(wso2, int64(j), `\d+.*`, 1))
				assert.NoError(t, err)
				assert.Len(t, rows, 3)
			}
		}()
	}
	wg.Wait()
}

func TestProcessBatch_PreservesOrder(t *testing.T) {
	r := newRuntime(t, testApp(), WithWorkers(4))

	events := make([]Event, 50)
	for i := range events {
		symbol := fmt.Sprintf("%02d items by WSO2", i)
		if i%3 == 0 {
			symbol = fmt.Sprintf("WSO2 %d", i)
		}
		events[i] = Event{Stream: "inputStream", Data: event(symbol, int64(i), `.*`, 1)}
	}

	out, err := r.ProcessBatch(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, out, len(events))

	for i, ev := range events {
		want, err := r.Send(context.Background(), ev.Stream, ev.Data)
		require.NoError(t, err)
		assert.Equal(t, want, out[i], "event %d", i)
		assert.Equal(t, ir.IRInt(i), out[i][2].Values["price"])
	}
}

func TestProcessBatch_FirstErrorWins(t *testing.T) {
	r := newRuntime(t, testApp(), WithErrorPolicy(PolicyFail), WithWorkers(1))

	events := []Event{
		{Stream: "inputStream", Data: event(wso2, 1, ".*", 1)},
		{Stream: "outputStream", Data: ir.IRObject{}},
	}

	out, err := r.ProcessBatch(context.Background(), events)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, HasCode(err, ErrCodeUnknownStream))
	assert.Contains(t, err.Error(), "event 1")
}

func TestRun_ProcessesInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var got []ir.IRValue

	r := newRuntime(t, testApp(), WithOutput(func(ev Event, rows []Row, err error) {
		require.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		got = append(got, rows[0].Values["symbol"])
	}))

	for _, s := range []string{"A", "B", "C"} {
		require.True(t, r.Enqueue(Event{Stream: "inputStream", Data: event(s, 1, ".*", 0)}))
	}
	r.Stop()

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []ir.IRValue{ir.IRString("A"), ir.IRString("B"), ir.IRString("C")}, got)
	assert.False(t, r.Enqueue(Event{Stream: "inputStream"}), "enqueue after stop should fail")
}

func TestRun_ContinuesAfterFailedEvent(t *testing.T) {
	var count int
	var failed []string
	r := newRuntime(t, testApp(), WithOutput(func(ev Event, rows []Row, err error) {
		if err != nil {
			failed = append(failed, ev.Stream)
			return
		}
		count++
	}))

	r.Enqueue(Event{Stream: "nowhere", Data: ir.IRObject{}})
	r.Enqueue(Event{Stream: "inputStream", Data: event("x", 1, ".*", 0)})
	r.Stop()

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"nowhere"}, failed)
}

func TestRun_ContextCancellation(t *testing.T) {
	r := newRuntime(t, testApp())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestParseErrorPolicy(t *testing.T) {
	p, err := ParseErrorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)

	p, err = ParseErrorPolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)

	_, err = ParseErrorPolicy("retry")
	assert.Error(t, err)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
