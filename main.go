// Package main is the entry point for the runner control daemon.
package main

import (
	"fmt"
	"os"

	"github.com/caldera-rt/runner/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
