// Package main is the operator CLI for the power scheduling system. It edits
// schedules against the local store, tracks dirty scopes against the last
// synced snapshot, and pushes changes to the remote schedule store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
