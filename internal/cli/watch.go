package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/tobert/trace-grouper/internal/otlpconv"
	"github.com/tobert/trace-grouper/internal/tracefile"
)

// WatchCommand returns the 'watch' subcommand: like group, but it keeps
// watching the directory and regroups whenever the dump grows.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch a trace dump directory and regroup on change",
		ArgsUsage: "<directory>",
		Flags:     commonFlags(),
		Action:    runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return fmt.Errorf("a directory to watch is required")
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
	watcher, err := tracefile.NewWatcher(dir, conv, func() {
		fmt.Print(groupAndReport(conv, rs, cfg))
		fmt.Println()
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	log.Printf("watching %s (ctrl-c to stop)", dir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	return nil
}
