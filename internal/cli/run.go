package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rxfn/internal/engine"
	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Events  string // JSONL file, "-" for stdin
	Restore bool   // restore the last revision before the first event
	Persist bool   // write a revision after the last event

	// IDGenerator overrides the revision id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// eventLine is one line of an events file.
type eventLine struct {
	Stream string         `yaml:"stream"`
	Event  map[string]any `yaml:"event"`
}

// OutputRow is one row written by the run command.
type OutputRow struct {
	Line   int         `json:"line"`
	Query  string      `json:"query"`
	Values ir.IRObject `json:"values"`
}

// RunSummary is the JSON summary written after the last row.
type RunSummary struct {
	Events   int    `json:"events"`
	Rows     int    `json:"rows"`
	Failed   int    `json:"failed"`
	Restored string `json:"restored,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <app-dir>",
		Short: "Evaluate an events file against an application",
		Long: `Bind the queries of a CUE application and feed it the events of a JSONL
file, one {"stream": ..., "event": {...}} object per line. Every output row
is printed in event order.

With --restore the state of the last revision in the database is
restored before the first event; with --persist a revision is written
after the last one.

Examples:
  rxfn run ./app --events events.jsonl
  rxfn run ./app --events - --db state.db --restore --persist
  rxfn run ./app --events events.jsonl --on-error fail --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Events, "events", "", "JSONL events file, - for stdin (required)")
	cmd.Flags().BoolVar(&opts.Restore, "restore", false, "restore the last revision first")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "write a revision after the last event")
	cmd.Flags().String("on-error", "", "runtime error policy (drop|fail)")
	cmd.Flags().Duration("match-timeout", 0, "regexp2 match timeout, 0 for none")
	cmd.Flags().Int("keep-revisions", 0, "revisions kept per app after --persist, 0 keeps all")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

func runApp(opts *RunOptions, appDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger

	app, err := LoadValidApp(appDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	events, lineNos, err := readEvents(opts.Events, cmd.InOrStdin())
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	var st *store.Store
	if opts.Restore || opts.Persist {
		st, err = openStore(opts.RootOptions)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("error closing database")
			}
		}()
	}

	printer := &rowPrinter{formatter: formatter, lines: lineNos}
	extra := []engine.Option{engine.WithOutput(printer.print)}
	if opts.IDGenerator != nil {
		extra = append(extra, engine.WithIDGenerator(opts.IDGenerator))
	}
	rt, err := newRuntime(opts.RootOptions, app, st, extra...)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to bind app", err)
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := RunSummary{Events: len(events)}
	if opts.Restore {
		rev, err := rt.RestoreLastRevision(ctx)
		switch {
		case errors.Is(err, store.ErrRevisionNotFound):
			logger.Info().Str("app", app.Name).Msg("no revision to restore")
		case err != nil:
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitFailure, "restore failed", err)
		default:
			summary.Restored = rev.ID
			logger.Info().Str("revision", rev.ID).Int64("seq", rev.Seq).Msg("revision restored")
		}
	}

	for _, ev := range events {
		rt.Enqueue(ev)
	}
	rt.Stop()

	logger.Info().Str("app", app.Name).Int("events", len(events)).Msg("runtime started")
	if err := rt.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "runtime interrupted", err)
	}
	summary.Rows = printer.rows
	summary.Failed = printer.failed

	if opts.Persist {
		rev, err := rt.Persist(ctx)
		if err != nil {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitFailure, "persist failed", err)
		}
		summary.Revision = rev.ID
		logger.Info().Str("revision", rev.ID).Int64("seq", rev.Seq).Msg("revision written")
	}

	if formatter.IsJSON() {
		if err := formatter.Success(summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "%d event(s), %d row(s), %d failed\n", summary.Events, summary.Rows, summary.Failed)
		if summary.Revision != "" {
			fmt.Fprintf(formatter.Writer, "Wrote revision %s\n", summary.Revision)
		}
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) failed", summary.Failed))
	}
	return nil
}

// rowPrinter writes the rows of each evaluated event, one line per row:
// text "line query {values}" or one JSON object. The Run loop reports
// events in FIFO order, so the n-th call belongs to lines[n].
type rowPrinter struct {
	formatter *OutputFormatter
	lines     []int
	calls     int
	rows      int
	failed    int
}

func (p *rowPrinter) print(_ engine.Event, rows []engine.Row, err error) {
	line := 0
	if p.calls < len(p.lines) {
		line = p.lines[p.calls]
	}
	p.calls++
	if err != nil {
		p.failed++
		p.formatter.VerboseLog("line %d: %v", line, err)
	}
	for _, row := range rows {
		p.rows++
		if p.formatter.IsJSON() {
			data, mErr := json.Marshal(OutputRow{Line: line, Query: row.Query, Values: row.Values})
			if mErr != nil {
				continue
			}
			fmt.Fprintln(p.formatter.Writer, string(data))
			continue
		}
		values, mErr := ir.MarshalCanonical(row.Values)
		if mErr != nil {
			continue
		}
		fmt.Fprintf(p.formatter.Writer, "%d %s %s\n", line, row.Query, values)
	}
}

// readEvents parses a JSONL events file and returns the events with their
// line numbers. Blank lines and lines starting with # are skipped.
func readEvents(path string, stdin io.Reader) ([]engine.Event, []int, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		r = f
	}

	var events []engine.Event
	var lines []int
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var line eventLine
		if err := yaml.Unmarshal([]byte(text), &line); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", n, err)
		}
		if line.Stream == "" {
			return nil, nil, fmt.Errorf("line %d: stream is required", n)
		}
		data, err := ir.ObjectFromAny(line.Event)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", n, err)
		}
		events = append(events, engine.Event{Stream: line.Stream, Data: data})
		lines = append(lines, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return events, lines, nil
}
