package main

import (
	"os"

	"redline/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
