// Package main is the entry point for the sportsclips application.
package main

import (
	"os"

	"github.com/shlawgathon/sportsclips/cmd/sportsclips/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
