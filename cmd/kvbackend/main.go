package main

import (
	"os"

	"github.com/jrife/kvbackend/cmd/kvbackend/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
