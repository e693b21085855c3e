package main

import (
	"os"

	"github.com/psantana5/worker-metadata/cmd/worker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
