package main

import (
	"fmt"
	"os"

	"github.com/tessera-dev/tessera/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tessera: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
