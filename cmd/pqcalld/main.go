package main

import (
	"os"

	"pqcall/cmd/pqcalld/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
