package main

import (
	"os"

	"github.com/chattrain/chattrain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
