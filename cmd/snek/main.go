// Command snek manages simulation run directories: creating them from solver
// defaults, classifying their status and restarting them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/snek/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
