package main

import (
	"os"

	"github.com/jmeijer/socmon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
