package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxfn/internal/regex"
)

// FunctionsResult lists the registered functions and engines.
type FunctionsResult struct {
	Functions []regex.Descriptor `json:"functions"`
	Engines   []string           `json:"engines"`
	Default   string             `json:"default_engine"`
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the regex functions and matcher engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFunctions(rootOpts, cmd)
		},
	}
}

func listFunctions(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	result := FunctionsResult{
		Functions: regex.Catalog(),
		Engines:   regex.EngineNames(),
		Default:   opts.Config.Engine,
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, d := range result.Functions {
		fmt.Fprintf(w, "%s -> %s\n", signature(d), d.ReturnType)
		fmt.Fprintf(w, "    %s\n", d.Description)
		for _, p := range d.Params {
			fmt.Fprintf(w, "    %-16s %s\n", p.Name, p.Description)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Engines: %s (using %s)\n", strings.Join(result.Engines, ", "), result.Default)
	return nil
}

// signature renders a descriptor as it is called in a query, optional
// parameters in brackets, e.g. "regex:find(regex STRING, input.sequence STRING[, starting.index INT])".
func signature(d regex.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.QualifiedName())
	b.WriteByte('(')
	for i, p := range d.Params {
		sep := ""
		if i > 0 {
			sep = ", "
		}
		if p.Optional {
			fmt.Fprintf(&b, "[%s%s %s]", sep, p.Name, p.Type)
			continue
		}
		fmt.Fprintf(&b, "%s%s %s", sep, p.Name, p.Type)
	}
	b.WriteByte(')')
	return b.String()
}
