// Package main is the entry point for the beepscan CLI.
//
// Usage:
//
//	beepscan [flags] <command> [args]
//
// Commands:
//
//	detect  - Find beeps by band energy
//	match   - Find occurrences of a reference beep
//	serve   - Run the HTTP API
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/beep-sonar/cmd/beepscan/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
