package main

import (
	"os"

	"github.com/lawrencejones/oddscap/cmd/oddscap/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}
