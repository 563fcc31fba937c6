// Command querybridge translates queries between SQL, document-store
// method calls and the neutral record form.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/querybridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
