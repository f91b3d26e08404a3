// Package main provides the entry point for the ddwiki CLI.
package main

import (
	"os"

	"github.com/jadedragon942/ddwiki/cmd/ddwiki/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
