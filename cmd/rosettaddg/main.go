// Command rosettaddg prepares, runs and aggregates Rosetta ΔΔG
// calculations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jlingford/ddg-rosetta/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// commands report their own failures; anything else is a usage error
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
