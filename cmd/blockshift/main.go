// Package main provides the blockshift CLI.
package main

import (
	"os"

	"github.com/mesh-intelligence/blockshift/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
