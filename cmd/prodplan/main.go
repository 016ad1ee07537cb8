package main

import (
	"os"

	"github.com/vsinha/prodplan/pkg/interfaces/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
