package main

import (
	"fmt"
	"time"

	"github.com/rsalesc/scpd-cpp-optimizer/internal/cache"
	"github.com/rsalesc/scpd-cpp-optimizer/internal/output"
	"github.com/urfave/cli/v2"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the result cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cache statistics",
				Action: runCacheStatsCmd,
			},
			{
				Name:      "clear",
				Usage:     "Remove cached results, all of them or for specific files",
				ArgsUsage: "[files...]",
				Action:    runCacheClearCmd,
			},
		},
	}
}

func openCache(c *cli.Context) (*cache.Cache, error) {
	cfg := loadConfig(c)
	return cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
}

func runCacheStatsCmd(c *cli.Context) error {
	store, err := openCache(c)
	if err != nil {
		return err
	}
	stats, err := store.GetStats()
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(output.ParseFormat(c.String("format")), "", true)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() == output.FormatJSON || formatter.Format() == output.FormatTOON {
		return formatter.Output(stats)
	}

	rows := [][]string{
		{"Entries", fmt.Sprintf("%d", stats.Entries)},
		{"Total size", fmt.Sprintf("%d bytes", stats.TotalSize)},
		{"Oldest entry", stats.OldestAge.Round(time.Second).String()},
		{"Newest entry", stats.NewestAge.Round(time.Second).String()},
	}
	return formatter.Output(output.NewTable("Cache", []string{"Metric", "Value"}, rows, nil, stats))
}

func runCacheClearCmd(c *cli.Context) error {
	store, err := openCache(c)
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(output.ParseFormat(c.String("format")), "", true)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if c.Args().Len() > 0 {
		for _, path := range c.Args().Slice() {
			if err := store.Invalidate(path); err != nil {
				return err
			}
		}
		formatter.Success("Invalidated %d cache entries", c.Args().Len())
		return nil
	}

	if err := store.Clear(); err != nil {
		return err
	}
	formatter.Success("Cache cleared")
	return nil
}
