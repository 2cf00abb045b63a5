package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Ash-Blanc/migru/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "migru:", err)
		os.Exit(1)
	}
}
