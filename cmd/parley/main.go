// Package main is the entry point for the parley binary.
// It delegates immediately to the CLI command tree.
package main

import (
	"context"
	"os"

	"github.com/averau/parley/cli"
	"github.com/averau/parley/logging"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		logging.New(false).Error("fatal error", "err", err)
		os.Exit(1)
	}
}
