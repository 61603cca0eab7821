package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rsalesc/scpd-cpp-optimizer/internal/output"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/config"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/frontend"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/inliner"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/optimizer"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
	"github.com/urfave/cli/v2"
)

func graphCmd() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Inspect the dependency graph of a translation unit",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "entry",
				Aliases: []string{"e"},
				Usage:   "Entry point symbol (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "keep-symbol",
				Usage: "Symbol treated as a root (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:    "define",
				Aliases: []string{"D"},
				Usage:   "Preprocessor definition NAME or NAME=VALUE (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "inline",
				Usage: "Inline quoted includes before analysis",
			},
			&cli.StringSliceFlag{
				Name:    "include-dir",
				Aliases: []string{"I"},
				Usage:   "Directory to resolve quoted includes against (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "edges",
				Usage: "List every dependency edge",
			},
		},
		Action: runGraphCmd,
	}
}

// graphReport is the serializable form of a graph inspection.
type graphReport struct {
	Path    string        `json:"path" toon:"path"`
	Symbols []graphSymbol `json:"symbols" toon:"symbols"`
	Roots   []string      `json:"roots" toon:"roots"`
	Edges   []graphEdge   `json:"edges,omitempty" toon:"edges,omitempty"`
	Cycles  [][]string    `json:"cycles,omitempty" toon:"cycles,omitempty"`
}

type graphSymbol struct {
	Name      string `json:"name" toon:"name"`
	Kind      string `json:"kind" toon:"kind"`
	Reachable bool   `json:"reachable" toon:"reachable"`
}

type graphEdge struct {
	From string `json:"from" toon:"from"`
	To   string `json:"to" toon:"to"`
}

func runGraphCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("graph expects exactly one file argument")
	}
	path := c.Args().First()

	cfg := loadConfig(c)
	if c.IsSet("entry") {
		cfg.Optimize.EntryPoints = c.StringSlice("entry")
	}
	if c.IsSet("keep-symbol") {
		cfg.Optimize.KeepSymbols = c.StringSlice("keep-symbol")
	}
	if c.IsSet("define") {
		cfg.Optimize.Defines = c.StringSlice("define")
	}
	if c.IsSet("inline") {
		cfg.Inline.Enabled = c.Bool("inline")
	}
	if c.IsSet("include-dir") {
		cfg.Inline.IncludeDirs = c.StringSlice("include-dir")
	}

	var source []byte
	var err error
	if cfg.Inline.Enabled {
		source, err = inliner.New(cfg.Inline.IncludeDirs...).InlineFile(path)
	} else {
		source, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	fe := frontend.New(frontend.WithDefines(config.ParseDefines(cfg.Optimize.Defines)))
	defer fe.Close()

	unit, err := fe.Parse(source, path)
	if err != nil {
		return err
	}

	opt := optimizer.New(optimizer.Options{
		EntryPoints: cfg.Optimize.EntryPoints,
		KeepSymbols: cfg.Optimize.KeepSymbols,
	})
	g, err := opt.Analyze(unit)
	if err != nil {
		return err
	}
	reach := g.Reachable()

	report := &graphReport{Path: path}
	for id, sym := range unit.Symbols {
		report.Symbols = append(report.Symbols, graphSymbol{
			Name:      sym.Name,
			Kind:      sym.Kind.String(),
			Reachable: reach.Contains(uint32(id)),
		})
	}
	for _, id := range g.Roots() {
		report.Roots = append(report.Roots, unit.Symbols[id].Name)
	}
	if c.Bool("edges") {
		g.Edges(func(user, used tu.DeclID) {
			report.Edges = append(report.Edges, graphEdge{
				From: unit.Symbols[user].Name,
				To:   unit.Symbols[used].Name,
			})
		})
	}
	for _, cyc := range g.Cycles() {
		names := make([]string, len(cyc))
		for i, id := range cyc {
			names[i] = unit.Symbols[id].Name
		}
		report.Cycles = append(report.Cycles, names)
	}

	formatter, err := output.NewFormatter(output.ParseFormat(c.String("format")), "", true)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() == output.FormatJSON || formatter.Format() == output.FormatTOON {
		return formatter.Output(report)
	}
	return renderGraphText(formatter, report)
}

func renderGraphText(formatter *output.Formatter, report *graphReport) error {
	var rows [][]string
	for _, sym := range report.Symbols {
		mark := ""
		if sym.Reachable {
			mark = "yes"
		}
		rows = append(rows, []string{sym.Name, sym.Kind, mark})
	}
	table := output.NewTable(
		fmt.Sprintf("Symbols in %s", report.Path),
		[]string{"Symbol", "Kind", "Reachable"},
		rows,
		nil,
		report,
	)
	if err := formatter.Output(table); err != nil {
		return err
	}

	section := &output.Section{
		Title:   "Roots",
		Content: strings.Join(report.Roots, "\n"),
		Data:    report,
	}
	if len(report.Cycles) > 0 {
		var lines []string
		for _, cyc := range report.Cycles {
			lines = append(lines, strings.Join(cyc, " <-> "))
		}
		section.Sections = append(section.Sections, output.Section{
			Title:   "Mutual dependencies",
			Content: strings.Join(lines, "\n"),
		})
	}
	if len(report.Edges) > 0 {
		var lines []string
		for _, e := range report.Edges {
			lines = append(lines, fmt.Sprintf("%s -> %s", e.From, e.To))
		}
		section.Sections = append(section.Sections, output.Section{
			Title:   "Edges",
			Content: strings.Join(lines, "\n"),
		})
	}
	return formatter.Output(section)
}
