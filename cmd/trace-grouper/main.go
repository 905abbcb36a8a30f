package main

import (
	"context"
	"fmt"
	"os"

	clipkg "github.com/tobert/trace-grouper/internal/cli"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cli.Command{
		Name:    "trace-grouper",
		Usage:   "Correlate and group execution trace events",
		Version: version,
		Commands: []*cli.Command{
			clipkg.GroupCommand(),
			clipkg.WatchCommand(),
			clipkg.ServeCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
