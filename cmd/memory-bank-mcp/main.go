// memory-bank-mcp: memory bank and mode rules MCP server
//
// Keeps project context in a folder of markdown files and switches the
// assistant between modes defined by .clinerules-<mode> files, over any
// MCP client that speaks stdio.
//
// Usage:
//
//	memory-bank-mcp serve     # Start MCP server (stdio transport)
//	memory-bank-mcp modes     # Load and validate rule files
//	memory-bank-mcp version   # Print the version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
