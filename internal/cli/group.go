package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/urfave/cli/v3"

	"github.com/tobert/trace-grouper/internal/otlpconv"
	"github.com/tobert/trace-grouper/internal/tracefile"
)

// GroupCommand returns the one-shot 'group' subcommand.
func GroupCommand() *cli.Command {
	return &cli.Command{
		Name:      "group",
		Usage:     "Group a trace dump and print the result",
		ArgsUsage: "<trace.jsonl | directory>",
		Description: `Loads an OTLP JSONL trace dump (a file or a directory of .jsonl
files), correlates and groups the events, and prints the group table
plus a per-group timing report.`,
		Flags:  commonFlags(),
		Action: runGroup,
	}
}

func runGroup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("a trace file or directory is required")
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	rs, err := loadRuleSet(cfg)
	if err != nil {
		return err
	}

	conv := otlpconv.NewConverter(cfg.HostService)
	lines, err := tracefile.LoadPath(ctx, path, conv)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	if cfg.Verbose {
		log.Printf("loaded %d trace lines from %s", lines, path)
	}

	fmt.Print(groupAndReport(conv, rs, cfg))
	return nil
}
