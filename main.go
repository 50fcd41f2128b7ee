package main

import (
	"os"

	"github.com/dslh/mcp-toolbox/internal/cmd"
)

func main() {
	os.Exit(cmd.Run(os.Args[1:]))
}
