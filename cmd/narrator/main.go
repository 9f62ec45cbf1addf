// Command narrator runs the lobby commentary and notification pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/narrator/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "narrator:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
