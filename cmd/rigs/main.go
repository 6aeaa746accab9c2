// Command rigs validates rig definitions and runs rig scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rigs/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
