package main

import (
	"os"

	"github.com/spideynolove/memory-bank-mcp/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
