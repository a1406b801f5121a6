package main

import (
	"os"

	"github.com/solatis/formguard/cmd/formguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
