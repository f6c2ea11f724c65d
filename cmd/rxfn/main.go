// Command rxfn evaluates, validates and tests regex functions bound into
// CUE stream applications.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rxfn/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
