package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxfn/internal/compiler"
	"github.com/roach88/rxfn/internal/engine"
	"github.com/roach88/rxfn/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <app-dir>",
		Short: "Validate an application without running it",
		Long: `Validate a CUE application: schema, references between queries and
streams, and the setup of every function call (arity, argument types,
constant patterns) against the configured engine.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, appDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	app, err := LoadApp(appDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Validating app %s (%d queries)", app.Name, len(app.Queries))

	errs := compiler.Validate(app)
	// Binding assumes resolved references, so function setup is checked
	// only for a referentially valid app.
	if len(errs) == 0 {
		errs = bindErrors(opts, app)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "%s App %s valid\n", markOK, app.Name)
	return nil
}

// bindErrors sets up every query on its own so one failing call site does
// not hide the others.
func bindErrors(opts *RootOptions, app *ir.App) []compiler.ValidationError {
	var errs []compiler.ValidationError
	for _, q := range app.Queries {
		single := &ir.App{Name: app.Name, Streams: app.Streams, Queries: []ir.QuerySpec{q}}
		_, err := newRuntime(opts, single, nil)
		if err == nil {
			continue
		}

		field := "query." + q.Name
		var bindErr *engine.BindError
		if errors.As(err, &bindErr) {
			field = fmt.Sprintf("query.%s.%s", bindErr.Query, bindErr.Column)
		}
		errs = append(errs, compiler.ValidationError{
			Field:   field,
			Message: err.Error(),
			Code:    errorCode(err),
		})
	}
	return errs
}

// outputValidationErrors outputs every validation error (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.IsJSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n\n", markFail)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return failure
}
