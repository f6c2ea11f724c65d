package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/rxfn/internal/compiler"
	"github.com/roach88/rxfn/internal/engine"
	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/regex"
	"github.com/roach88/rxfn/internal/store"
)

// Error code constants shared by all CLI commands. Validation codes
// (E1xx) come from the compiler; setup codes are the regex SetupError codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWriteFailed = "E007" // File write error
)

// LoadError represents an error that occurred while loading an app.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadApp compiles the CUE application in dir. Errors are *LoadError.
func LoadApp(dir string) (*ir.App, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("app directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	app, err := compiler.LoadDir(dir)
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: compileErr.Message, Pos: compileErr.Pos}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	return app, nil
}

// LoadValidApp compiles dir and rejects an app with validation errors.
func LoadValidApp(dir string) (*ir.App, error) {
	app, err := LoadApp(dir)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(app); len(errs) > 0 {
		return nil, &LoadError{Code: errs[0].Code, Message: fmt.Sprintf("%s: %s", errs[0].Field, errs[0].Message)}
	}
	return app, nil
}

// errorCode returns the code reported for err in CLI output.
func errorCode(err error) string {
	var loadErr *LoadError
	var setupErr *regex.SetupError
	var runtimeErr *regex.RuntimeError
	var engineErr *engine.RuntimeError
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code
	case errors.As(err, &setupErr):
		return string(setupErr.Code)
	case errors.As(err, &runtimeErr):
		return string(runtimeErr.Code)
	case errors.As(err, &engineErr):
		return string(engineErr.Code)
	case errors.Is(err, store.ErrRevisionNotFound):
		return "NOT_FOUND"
	default:
		return ErrCodeGeneric
	}
}

// newRuntime binds app with the settings of the loaded configuration.
// st may be nil for commands that never persist.
func newRuntime(opts *RootOptions, app *ir.App, st *store.Store, extra ...engine.Option) (*engine.Runtime, error) {
	cfg := opts.Config
	matcher, err := cfg.MatcherEngine()
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.Option{
		engine.WithEngine(matcher),
		engine.WithLogger(opts.Logger),
		engine.WithErrorPolicy(cfg.ErrorPolicy()),
		engine.WithKeepRevisions(cfg.KeepRevisions),
	}
	if st != nil {
		engineOpts = append(engineOpts, engine.WithStore(st))
	}
	engineOpts = append(engineOpts, extra...)
	return engine.New(app, engineOpts...)
}

// openStore opens the configured database.
func openStore(opts *RootOptions) (*store.Store, error) {
	st, err := store.Open(opts.Config.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.Config.DB), err)
	}
	return st, nil
}
