package main

import (
	"os"

	"github.com/wonny/techstock/cmd/techstock/commands"
)

// main is the entry point for the techstock CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
