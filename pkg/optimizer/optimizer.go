// Package optimizer implements whole-unit dead-code elimination: a
// dependency graph over canonical declaration identities, a reachability
// closure from the entry points, and a lexical pruning pass that turns the
// semantic verdicts into source edits while keeping the output compilable.
package optimizer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/rewriter"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
)

// ErrNoEntryPoint reports that none of the configured entry symbols was
// declared in the unit. Running the pipeline anyway would delete the whole
// file.
var ErrNoEntryPoint = errors.New("no entry point declaration found")

// Options configures one Optimizer.
type Options struct {
	// EntryPoints are the root symbols, matched against both the
	// qualified and the unqualified name. Defaults to "main".
	EntryPoints []string

	// KeepSymbols are additional identities pinned into the root set.
	KeepSymbols []string

	// KeepMacros are macro names never pruned, used or not.
	KeepMacros []string
}

// Stats summarizes one run.
type Stats struct {
	Symbols           int `json:"symbols"`
	Reachable         int `json:"reachable"`
	RemovedDecls      int `json:"removed_decls"`
	RemovedDirectives int `json:"removed_directives"`
	RemovedMacros     int `json:"removed_macros"`
	BytesIn           int `json:"bytes_in"`
	BytesOut          int `json:"bytes_out"`
}

// Result carries the minimized text and the run summary.
type Result struct {
	Output  []byte
	Changed bool
	Stats   Stats
}

// Optimizer runs the analysis pipeline over parsed units. It holds only
// configuration and is safe to reuse across units.
type Optimizer struct {
	entries    map[string]bool
	keepSyms   map[string]bool
	keepMacros map[string]bool
}

func New(opts Options) *Optimizer {
	entries := opts.EntryPoints
	if len(entries) == 0 {
		entries = []string{"main"}
	}
	return &Optimizer{
		entries:    toSet(entries),
		keepSyms:   toSet(opts.KeepSymbols),
		keepMacros: toSet(opts.KeepMacros),
	}
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Analyze builds the dependency graph for a unit without rewriting
// anything.
func (o *Optimizer) Analyze(unit *tu.Unit) (*Graph, error) {
	g := buildGraph(unit, o.entries, o.keepSyms)
	if g.roots.IsEmpty() {
		return nil, fmt.Errorf("%s: %w", unit.Path, ErrNoEntryPoint)
	}
	return g, nil
}

// Reachable computes the reachable identity set for a unit.
func (o *Optimizer) Reachable(unit *tu.Unit) (*roaring.Bitmap, error) {
	g, err := o.Analyze(unit)
	if err != nil {
		return nil, err
	}
	return g.Reachable(), nil
}

// Optimize runs the full pipeline: graph, closure, declaration pruning,
// namespace cleanup, preprocessor finalization, edit application. Phases
// are strictly sequential; each consumes the completed output of the
// previous one.
func (o *Optimizer) Optimize(unit *tu.Unit) (*Result, error) {
	g, err := o.Analyze(unit)
	if err != nil {
		return nil, err
	}
	reach := g.Reachable()

	rw := rewriter.New(unit.Source)
	pr := newPruner(unit, reach, rw)
	pr.run()
	pr.cleanupNamespaces()

	pp := newPreprocPruner(unit, rw, o.keepMacros)
	if err := pp.finalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", unit.Path, err)
	}

	out, err := rw.Apply()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", unit.Path, err)
	}

	return &Result{
		Output:  out,
		Changed: !bytes.Equal(out, unit.Source),
		Stats: Stats{
			Symbols:           len(unit.Symbols),
			Reachable:         int(reach.GetCardinality()),
			RemovedDecls:      pr.removedDecls,
			RemovedDirectives: pp.removedDirectives,
			RemovedMacros:     pp.removedMacros,
			BytesIn:           len(unit.Source),
			BytesOut:          len(out),
		},
	}, nil
}
