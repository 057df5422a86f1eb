package main

import (
	"os"

	"github.com/grez-lucas/iframe-bridge/cmd/iframe-bridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
