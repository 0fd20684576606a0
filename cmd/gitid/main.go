// Package main is the entry point for the gitid CLI.
//
// The startup sequence is deliberately small: initialize logging, build
// the command tree, run it, and translate the result into a process exit
// code. Everything else lives behind the internal/api boundary, which the
// hook entry points share with the interactive commands.
package main

import (
	"fmt"
	"os"

	"gitid/internal/cli"
	"gitid/internal/logging"
)

func main() {
	appLogger := logging.NewAppLogger()

	root := cli.NewRootCommand(appLogger)
	if err := root.Execute(); err != nil {
		code := cli.ExitCode(err)
		// Hook verdicts already printed their reasons; everything else gets
		// one line on stderr.
		if code == 1 && err.Error() != "" {
			fmt.Fprintf(os.Stderr, "gitid: %v\n", err)
		}
		os.Exit(code)
	}
}
