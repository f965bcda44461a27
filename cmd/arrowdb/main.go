// Package main is the entry point for the arrowdb CLI.
//
// Usage:
//
//	arrowdb [flags] <command> [args]
//
// Commands:
//
//	create  - Create a collection
//	list    - List collections
//	load    - Insert random vectors into a collection
//	search  - Query a collection
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/arrowdb/cmd/arrowdb/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
