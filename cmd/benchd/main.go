package main

import (
	"os"

	"benchd.sh/cmd/benchd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
