package main

import (
	"os"

	"github.com/starweaver/starweaver/internal/cmd"
)

func main() {
	// cobra prints the error itself; we only set the exit code.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
