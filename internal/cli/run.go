// Package cli wires the trace-grouper subcommands: one-shot grouping of a
// trace dump, watching a growing dump, and a live OTLP receiver.
package cli

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tobert/trace-grouper/internal/grouper"
	"github.com/tobert/trace-grouper/internal/otlpconv"
	"github.com/tobert/trace-grouper/internal/render"
	"github.com/tobert/trace-grouper/internal/rules"
	"github.com/tobert/trace-grouper/internal/timeline"
)

// commonFlags are shared by every subcommand.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a JSON config file (default: project .trace-grouper.json)",
		},
		&cli.StringFlag{
			Name:  "rules",
			Usage: "YAML rules file declaring correlation rules and roots",
		},
		&cli.StringFlag{
			Name:  "host-service",
			Usage: "Service name treated as the host timeline",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Report line width",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
	}
}

// resolveConfig layers defaults, the project config file, and flags.
func resolveConfig(cmd *cli.Command) (*Config, error) {
	cfg := DefaultConfig()

	path := cmd.String("config")
	if path == "" {
		if found, err := FindProjectConfig(); err == nil {
			path = found
		}
	}
	if path != "" {
		fileCfg, err := LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = MergeConfigs(cfg, fileCfg)
		if cmd.Bool("verbose") {
			log.Printf("loaded config from %s", path)
		}
	}

	cfg = MergeConfigs(cfg, &Config{
		RulesFile:   cmd.String("rules"),
		HostService: cmd.String("host-service"),
		Width:       cmd.Int("width"),
		Verbose:     cmd.Bool("verbose"),
	})
	return cfg, nil
}

func loadRuleSet(cfg *Config) (*rules.RuleSet, error) {
	if cfg.RulesFile == "" {
		return rules.Default(), nil
	}
	return rules.Load(cfg.RulesFile)
}

// groupAndReport runs the grouping pass over the converter's planes and
// returns the printable report.
func groupAndReport(conv *otlpconv.Converter, rs *rules.RuleSet, cfg *Config) string {
	host, devices := conv.Planes()
	names := grouper.GroupEvents(rs.ConnectInfo, rs.RootTypes, host, devices)

	ids := make([]int64, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "%d groups\n", len(names))
	for _, id := range ids {
		fmt.Fprintf(&b, "  %d: %s\n", id, names[id])
	}

	planes := append([]*timeline.Plane{host}, devices...)
	if report := render.Report(names, render.CollectRows(planes...), cfg.Width); report != "" {
		b.WriteByte('\n')
		b.WriteString(report)
	}
	return b.String()
}
