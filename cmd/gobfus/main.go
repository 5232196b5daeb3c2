package main

import (
	"os"

	"github.com/gnolang/gobfus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
