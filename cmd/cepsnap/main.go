// Command cepsnap drives CEP rule sessions through snapshot and restore.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cepsnap/internal/cli"
	"github.com/roach88/cepsnap/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCommandError)
	}

	if err := cli.NewRootCommand(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cepsnap:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
