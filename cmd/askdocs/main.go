// Command askdocs is the entry point for the askdocs question-answering CLI.
// It provides commands for asking questions against an ingested document
// index, raw hybrid search, ingestion, and an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/d3vah/askdocs-go/cmd/askdocs/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
