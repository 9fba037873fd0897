// Command micruler interprets MIC measurements against clinical breakpoints
// and applies interpretive expert rules.
package main

import (
	"fmt"
	"os"

	"github.com/vicbeneder/micruler/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands print their own formatted errors; this catches flag
		// parsing and setup failures.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
