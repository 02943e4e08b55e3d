package main

import (
	"os"

	"github.com/shoprec/shoprec/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
