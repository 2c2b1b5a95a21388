package main

import (
	"os"

	"github.com/abhisek/microtutor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
