// Command scoperag is the entry point for the scoperag retrieval-augmented
// generation backend. It provides a CLI (via Cobra) for ingesting documents,
// asking questions, and cleaning up scopes, plus an HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/scoperag-go/cmd/scoperag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
