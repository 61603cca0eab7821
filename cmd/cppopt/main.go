package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/rsalesc/scpd-cpp-optimizer/internal/cache"
	"github.com/rsalesc/scpd-cpp-optimizer/internal/output"
	"github.com/rsalesc/scpd-cpp-optimizer/internal/progress"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/config"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/frontend"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/inliner"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/optimizer"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

// getPaths returns paths from positional args, defaulting to ["."]
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}

func main() {
	app := &cli.App{
		Name:    "cppopt",
		Usage:   "Whole-unit dead-code elimination for C++ sources",
		Version: version,
		Description: `cppopt minimizes a single C++ translation unit: it keeps only the
declarations reachable from the entry point, then strips dead
conditional-compilation branches and orphaned macro definitions while
keeping the result compilable.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"CPPOPT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "text",
				Usage:   "Output format: text, json, markdown, toon",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable caching",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output",
			},
		},
		Commands: []*cli.Command{
			optimizeCmd(),
			graphCmd(),
			cacheCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func optimizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "optimize",
		Aliases:   []string{"opt"},
		Usage:     "Minimize C++ files to their reachable code",
		ArgsUsage: "[path...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "entry",
				Aliases: []string{"e"},
				Usage:   "Entry point symbol (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "keep-symbol",
				Usage: "Symbol to retain regardless of use (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "keep-macro",
				Usage: "Macro name never pruned (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:    "define",
				Aliases: []string{"D"},
				Usage:   "Preprocessor definition NAME or NAME=VALUE (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:    "include-dir",
				Aliases: []string{"I"},
				Usage:   "Directory to resolve quoted includes against (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "inline",
				Usage: "Inline quoted includes before analysis",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write minimized source to file (single input only)",
			},
			&cli.BoolFlag{
				Name:    "in-place",
				Aliases: []string{"w"},
				Usage:   "Overwrite the input files",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print a removal summary",
			},
		},
		Action: runOptimizeCmd,
	}
}

// fileResult is the per-file outcome of a batch run.
type fileResult struct {
	Path     string          `json:"path" toon:"path"`
	Cached   bool            `json:"cached" toon:"cached"`
	Changed  bool            `json:"changed" toon:"changed"`
	Stats    optimizer.Stats `json:"stats" toon:"stats"`
	output   []byte
	err      error
}

func runOptimizeCmd(c *cli.Context) error {
	files, err := collectFiles(getPaths(c))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.Yellow("No C++ source files found")
		return nil
	}

	cfg := loadConfig(c)
	if c.IsSet("entry") {
		cfg.Optimize.EntryPoints = c.StringSlice("entry")
	}
	if c.IsSet("keep-symbol") {
		cfg.Optimize.KeepSymbols = c.StringSlice("keep-symbol")
	}
	if c.IsSet("keep-macro") {
		cfg.Optimize.KeepMacros = c.StringSlice("keep-macro")
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

	if c.String("output") != "" && len(files) > 1 {
		return fmt.Errorf("--output accepts a single input, got %d files", len(files))
	}
	if !c.Bool("in-place") && c.String("output") == "" && len(files) > 1 {
		return fmt.Errorf("multiple inputs require --in-place or a single --output target")
	}

	store, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.Enabled && !c.Bool("no-cache"))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	optsKey := cache.OptionsKey(
		strings.Join(cfg.Optimize.EntryPoints, ","),
		strings.Join(cfg.Optimize.KeepSymbols, ","),
		strings.Join(cfg.Optimize.KeepMacros, ","),
		strings.Join(cfg.Optimize.Defines, ","),
		strings.Join(cfg.Inline.IncludeDirs, ","),
		fmt.Sprintf("inline=%v", cfg.Inline.Enabled),
		version,
	)

	opt := optimizer.New(optimizer.Options{
		EntryPoints: cfg.Optimize.EntryPoints,
		KeepSymbols: cfg.Optimize.KeepSymbols,
		KeepMacros:  cfg.Optimize.KeepMacros,
	})
	defines := config.ParseDefines(cfg.Optimize.Defines)

	var tracker *progress.Tracker
	if len(files) == 1 {
		tracker = progress.NewSpinner("Optimizing " + files[0])
	} else {
		tracker = progress.NewTracker("Optimizing...", len(files))
	}
	results := make([]*fileResult, len(files))
	p := pool.New().WithMaxGoroutines(runtime.NumCPU())
	for i, path := range files {
		p.Go(func() {
			results[i] = processFile(path, cfg, defines, opt, store, optsKey)
			tracker.Tick()
		})
	}
	p.Wait()

	for _, res := range results {
		if res.err != nil {
			tracker.FinishError(res.err)
			return fmt.Errorf("%s: %w", res.Path, res.err)
		}
	}
	if len(files) == 1 && results[0].Cached {
		tracker.FinishCached()
	} else {
		tracker.FinishSuccess()
	}

	for _, res := range results {
		switch {
		case c.Bool("in-place"):
			if res.Changed {
				if err := os.WriteFile(res.Path, res.output, 0644); err != nil {
					return err
				}
			}
		case c.String("output") != "":
			if err := os.WriteFile(c.String("output"), res.output, 0644); err != nil {
				return err
			}
		default:
			if _, err := os.Stdout.Write(res.output); err != nil {
				return err
			}
		}
	}

	if c.Bool("stats") || c.String("format") != "text" {
		return printStats(c, results)
	}
	return nil
}

func printStats(c *cli.Context, results []*fileResult) error {
	formatter, err := output.NewFormatter(output.ParseFormat(c.String("format")), "", true)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() == output.FormatJSON || formatter.Format() == output.FormatTOON {
		return formatter.Output(results)
	}

	var rows [][]string
	totalIn, totalOut := 0, 0
	for _, res := range results {
		st := res.Stats
		totalIn += st.BytesIn
		totalOut += st.BytesOut
		note := ""
		if res.Cached {
			note = "cached"
		}
		rows = append(rows, []string{
			res.Path,
			fmt.Sprintf("%d/%d", st.Reachable, st.Symbols),
			fmt.Sprintf("%d", st.RemovedDecls),
			fmt.Sprintf("%d", st.RemovedMacros),
			fmt.Sprintf("%d", st.RemovedDirectives),
			fmt.Sprintf("%d -> %d", st.BytesIn, st.BytesOut),
			note,
		})
	}
	footer := []string{"Total", "", "", "", "", fmt.Sprintf("%d -> %d", totalIn, totalOut), shrinkPercent(totalIn, totalOut)}

	table := output.NewTable(
		"Optimization Summary",
		[]string{"File", "Reachable", "Decls", "Macros", "Directives", "Bytes", ""},
		rows,
		footer,
		results,
	)
	return formatter.Output(table)
}

func shrinkPercent(in, out int) string {
	if in == 0 {
		return ""
	}
	return fmt.Sprintf("-%.1f%%", 100*float64(in-out)/float64(in))
}

// processFile runs the strictly sequential pipeline for one unit: read or
// inline, parse, optimize. The surrounding pool parallelizes across files
// only.
func processFile(path string, cfg *config.Config, defines map[string]string, opt *optimizer.Optimizer, store *cache.Cache, optsKey string) *fileResult {
	res := &fileResult{Path: path}

	var source []byte
	var err error
	if cfg.Inline.Enabled {
		source, err = inliner.New(cfg.Inline.IncludeDirs...).InlineFile(path)
	} else {
		source, err = os.ReadFile(path)
	}
	if err != nil {
		res.err = err
		return res
	}

	hash := cache.HashBytes(source)
	if out, ok := store.Get(path, hash, optsKey); ok {
		res.output = out
		res.Cached = true
		res.Changed = !bytes.Equal(out, source)
		res.Stats = optimizer.Stats{BytesIn: len(source), BytesOut: len(out)}
		return res
	}

	fe := frontend.New(frontend.WithDefines(defines))
	defer fe.Close()

	unit, err := fe.Parse(source, path)
	if err != nil {
		res.err = err
		return res
	}

	result, err := opt.Optimize(unit)
	if err != nil {
		res.err = err
		return res
	}

	res.output = result.Output
	res.Changed = result.Changed
	res.Stats = result.Stats
	if err := store.Set(path, hash, optsKey, result.Output); err != nil && cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "cache write failed for %s: %v\n", path, err)
	}
	return res
}

func loadConfig(c *cli.Context) *config.Config {
	if path := c.String("config"); path != "" {
		if cfg, err := config.Load(path); err == nil {
			return cfg
		}
	}
	return config.LoadOrDefault()
}

var sourceExts = map[string]bool{
	".cpp": true,
	".cc":  true,
	".cxx": true,
	".c++": true,
}

// collectFiles expands directory arguments into the C++ sources beneath
// them; explicit file arguments are taken as-is.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		st, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				base := filepath.Base(p)
				if strings.HasPrefix(base, ".") && p != path {
					return filepath.SkipDir
				}
				return nil
			}
			if sourceExts[strings.ToLower(filepath.Ext(p))] {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
