package cli

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Dynamic bool  // pass the pattern per event instead of as a constant
	Null    []int // 1-based argument positions evaluated as null
}

// EvalResult is the JSON payload of the eval command.
type EvalResult struct {
	Function string     `json:"function"`
	Engine   string     `json:"engine"`
	Constant bool       `json:"is_pattern_constant"`
	Result   ir.IRValue `json:"result"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <function> <pattern> <subject> [int]",
		Short: "Evaluate one function call",
		Long: `Set up a single function call and evaluate it once.

The pattern is a constant unless --dynamic is given, in which case it is
compiled at evaluation time like a pattern read from an event attribute.
The optional integer is the start index of find or the group of group.

Examples:
  rxfn eval find '\d\d(.*)WSO2' '21 products are produced by WSO2'
  rxfn eval group '(\d\d)(.*)(WSO2.*)' '21 products are produced by WSO2' 3
  rxfn eval matches --dynamic '[' 'abc'
  rxfn eval find 'x' '' --null 2`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Dynamic, "dynamic", false, "treat the pattern as a per-event argument")
	cmd.Flags().IntSliceVar(&opts.Null, "null", nil, "argument positions (1-based) to pass as null")

	return cmd
}

func runEval(opts *EvalOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	values, err := evalArgs(args[1:], opts.Null)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	specs := make([]regex.ArgSpec, len(values))
	for i := range values {
		t := ir.TypeString
		if i == 2 {
			t = ir.TypeInt
		}
		specs[i] = regex.Var(t)
	}
	if !opts.Dynamic {
		// A typed literal: a null pattern stays a STRING constant.
		specs[0] = regex.ArgSpec{Type: ir.TypeString, Constant: true, Value: values[0]}
	}

	matcher, err := opts.Config.MatcherEngine()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine", err)
	}

	fn, err := regex.New(args[0], specs, regex.WithEngine(matcher), regex.WithLogger(opts.Logger))
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "setup failed", err)
	}
	formatter.VerboseLog("%s set up on %s, constant pattern: %t", fn.Name(), matcher.Name(), fn.State().IsConstant())

	result, err := fn.Execute(values)
	if err != nil {
		code := errorCode(err)
		if regex.IsIndexError(err) {
			code = "INDEX_OUT_OF_BOUNDS"
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(EvalResult{
			Function: fn.Name(),
			Engine:   matcher.Name(),
			Constant: fn.State().IsConstant(),
			Result:   result,
		})
	}
	rendered, err := ir.MarshalIRValue(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(formatter.Writer, string(rendered))
	return nil
}

// evalArgs converts the pattern, subject and optional integer arguments.
func evalArgs(args []string, null []int) ([]ir.IRValue, error) {
	for _, pos := range null {
		if pos < 1 || pos > len(args) {
			return nil, fmt.Errorf("--null %d: no such argument (have %d)", pos, len(args))
		}
	}

	values := make([]ir.IRValue, len(args))
	for i, a := range args {
		switch {
		case slices.Contains(null, i+1):
			values[i] = ir.IRNull{}
		case i == 2:
			n, err := strconv.ParseInt(a, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("third argument must be an integer: %w", err)
			}
			values[i] = ir.IRInt(n)
		default:
			values[i] = ir.IRString(a)
		}
	}
	return values, nil
}
