package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/parser"

	"github.com/roach88/rxfn/internal/ir"
)

// FindCUEFiles returns the .cue files directly inside dir, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir loads the CUE package in dir and compiles it into an App.
// All .cue files in the directory are unified, so an application can be
// split across files.
func LoadDir(dir string) (*ir.App, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("app directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	cfg := &load.Config{Dir: dir, Package: packageName(files)}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileApp(value)
}

// packageName returns the first package declared by files, or "_" when no
// file has a package clause. The loader skips package-less files unless
// asked for "_" explicitly.
func packageName(files []string) string {
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		// Syntax errors are reported by the loader.
		file, err := parser.ParseFile(f, src, parser.PackageClauseOnly)
		if err != nil {
			continue
		}
		if name := file.PackageName(); name != "" {
			return name
		}
	}
	return "_"
}
