// Package main provides the entry point for cachesim.
// Cachesim is a trace-driven two-level cache hierarchy simulator with an
// optional stream-buffer prefetcher.
//
// For the full CLI, use: go run ./cmd/cachesim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("cachesim - Trace-Driven Cache Hierarchy Simulator")
	fmt.Println("")
	fmt.Println("Usage: cachesim [options] BLOCKSIZE L1_SIZE L1_ASSOC L2_SIZE L2_ASSOC PREF_N PREF_M trace_file")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to simulator configuration JSON file")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/cachesim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/cachesim' instead.")
	}
}
