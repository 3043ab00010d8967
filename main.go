package main

import (
	"os"

	"github.com/skyhookqa/skyhook/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
