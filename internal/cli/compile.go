package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rxfn/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled application and its identity hash.
type CompilationResult struct {
	App       *ir.App `json:"app"`
	AppHash   string  `json:"app_hash"`
	IRVersion string  `json:"ir_version"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <app-dir>",
		Short: "Compile a CUE application to IR",
		Long: `Compile the streams and queries of a CUE application to the IR the
runtime binds, and print its app hash. Revisions written by a runtime
can only be restored into an app with the same hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, appDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	app, err := LoadApp(appDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Compiled app %s: %d stream(s), %d query(s)", app.Name, len(app.Streams), len(app.Queries))

	hash, err := ir.AppHash(app)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	result := &CompilationResult{App: app, AppHash: hash, IRVersion: ir.IRVersion}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s Compiled %s: %d stream(s), %d query(s)\n", markOK, app.Name, len(app.Streams), len(app.Queries))
	fmt.Fprintf(w, "  app hash: %s\n", hash)
	for _, q := range app.Queries {
		fmt.Fprintf(w, "  %s from %s: %d column(s)\n", q.Name, q.From, len(q.Select))
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", opts.Output)
	}
	return nil
}

// outputLoadError reports an app that cannot be loaded (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		var details any
		if loadErr.Pos.IsValid() {
			details = map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, details)
		return WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

// writeIRToFile writes the compilation result as indented JSON.
// (canonical JSON without indentation is used only for hashing)
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
