// Command poolmanagerctl is the operator entry point for the worker pool
// manager: it builds the Cobra command tree in internal/cli and executes
// it, with build-time version injection and top-level panic recovery
// mirroring the teacher's cmd/queue entry point.
package main

import (
	"fmt"
	"os"

	"github.com/chuliyu/poolmanager/internal/cli"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
