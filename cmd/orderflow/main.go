package main

import (
	"os"

	"github.com/rekakarya/orderflow/cmd/orderflow/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
