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
	"github.com/tobert/trace-grouper/internal/otlpreceiver"
)

// ServeCommand returns the 'serve' subcommand: a live OTLP gRPC endpoint
// that accumulates spans and groups them when the receiver shuts down.
func ServeCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:  "otlp-host",
			Usage: "OTLP receiver bind address",
		},
		&cli.IntFlag{
			Name:  "otlp-port",
			Usage: "OTLP receiver port (0 for ephemeral)",
			Value: -1,
		},
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Receive OTLP traces over gRPC, group on shutdown",
		Description: `Starts an OTLP gRPC receiver and buffers incoming spans. On SIGINT or
SIGTERM the receiver drains, the buffered trace is grouped, and the
report is printed.`,
		Flags:  flags,
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if host := cmd.String("otlp-host"); host != "" {
		cfg.OTLPHost = host
	}
	if port := cmd.Int("otlp-port"); port >= 0 {
		cfg.OTLPPort = port
	}
	rs, err := loadRuleSet(cfg)
	if err != nil {
		return err
	}

	conv := otlpconv.NewConverter(cfg.HostService)
	server, err := otlpreceiver.NewServer(otlpreceiver.Config{
		Host:    cfg.OTLPHost,
		Port:    cfg.OTLPPort,
		Verbose: cfg.Verbose,
	}, conv)
	if err != nil {
		return fmt.Errorf("failed to create OTLP receiver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start(ctx) }()

	log.Printf("OTLP gRPC receiver listening on %s", server.Endpoint())
	log.Printf("send traces with OTEL_EXPORTER_OTLP_ENDPOINT=%s, ctrl-c to group", server.Endpoint())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		server.Stop()
		if err := <-errChan; err != nil {
			return fmt.Errorf("OTLP receiver error: %w", err)
		}
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("OTLP receiver error: %w", err)
		}
	}

	fmt.Print(groupAndReport(conv, rs, cfg))
	return nil
}
