package main

import (
	"os"

	"github.com/omniagent/devboxctl/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
