// Command fsnbmatch is the entry point for the FSNB semantic matching
// service. It provides catalog ingestion, vector index rebuilds, and an
// HTTP server exposing matching and review APIs.
package main

import (
	"fmt"
	"os"

	"github.com/stroikit/fsnbmatch/cmd/fsnbmatch/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
