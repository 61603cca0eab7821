package optimizer

import (
	"fmt"

	"github.com/rsalesc/scpd-cpp-optimizer/pkg/rewriter"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
)

// ppClause is one clause of a conditional section: the directive line that
// opens it, the extent of its body, and the sections nested in that body.
type ppClause struct {
	dir      tu.Directive
	bodyEnd  uint32
	sections []*ppSection
}

// ppSection is a whole #if...#endif span.
type ppSection struct {
	clauses []ppClause
	endif   tu.Directive
}

func (s *ppSection) open() tu.Directive { return s.clauses[0].dir }

// preprocPruner finalizes conditional sections and macro definitions once
// every code deletion is known. Each section ends up in one of three
// states: retained with live content, emptied by the pruning passes, or
// never compiled at all; only the first keeps its directive lines.
type preprocPruner struct {
	unit *tu.Unit
	rw   *rewriter.Rewriter
	keep map[string]bool

	removedDirectives int
	removedMacros     int
}

func newPreprocPruner(unit *tu.Unit, rw *rewriter.Rewriter, keep map[string]bool) *preprocPruner {
	return &preprocPruner{unit: unit, rw: rw, keep: keep}
}

func (pp *preprocPruner) finalize() error {
	sections, err := parseSections(pp.unit.Directives)
	if err != nil {
		return err
	}
	deleteInactive(pp.rw, sections)
	for _, s := range sections {
		if err := pp.process(s); err != nil {
			return err
		}
	}
	pp.pruneMacros()
	return nil
}

// parseSections folds the flat directive event stream into a section tree.
func parseSections(dirs []tu.Directive) ([]*ppSection, error) {
	var top []*ppSection
	var stack []*ppSection
	attach := func(s *ppSection) {
		if len(stack) == 0 {
			top = append(top, s)
			return
		}
		parent := stack[len(stack)-1]
		cl := &parent.clauses[len(parent.clauses)-1]
		cl.sections = append(cl.sections, s)
	}
	for _, d := range dirs {
		switch {
		case d.Kind.Opens():
			s := &ppSection{clauses: []ppClause{{dir: d}}}
			attach(s)
			stack = append(stack, s)
		case d.Kind == tu.DirectiveEndif:
			if len(stack) == 0 {
				return nil, fmt.Errorf("directive stream imbalance: stray #endif")
			}
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			s.clauses[len(s.clauses)-1].bodyEnd = d.Range.Start
			s.endif = d
		default:
			if len(stack) == 0 {
				return nil, fmt.Errorf("directive stream imbalance: %s outside a section", d.Kind)
			}
			s := stack[len(stack)-1]
			s.clauses[len(s.clauses)-1].bodyEnd = d.Range.Start
			s.clauses = append(s.clauses, ppClause{dir: d})
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("directive stream imbalance: %d unterminated section(s)", len(stack))
	}
	return top, nil
}

// deleteInactive removes the body of every clause that was not compiled.
// Those bodies never contributed declarations, so the deletion covers any
// text inside them wholesale.
func deleteInactive(rw *rewriter.Rewriter, sections []*ppSection) {
	for _, s := range sections {
		for _, cl := range s.clauses {
			if !cl.dir.Taken && cl.dir.Range.End < cl.bodyEnd {
				rw.Delete(cl.dir.Range.End, cl.bodyEnd)
			}
			deleteInactive(rw, cl.sections)
		}
	}
}

// process decides the fate of one section bottom-up. A section whose every
// clause body is blank loses all its directive lines; otherwise dead
// interior clauses lose their directive line along with the body, while the
// opening directive and the #endif stay to keep the span matched.
func (pp *preprocPruner) process(s *ppSection) error {
	for i := range s.clauses {
		for _, nested := range s.clauses[i].sections {
			if err := pp.process(nested); err != nil {
				return err
			}
		}
	}

	allBlank := true
	for _, cl := range s.clauses {
		if cl.dir.Range.End < cl.bodyEnd && !pp.rw.Blank(cl.dir.Range.End, cl.bodyEnd) {
			allBlank = false
			break
		}
	}
	if allBlank {
		pp.rw.Delete(s.open().Range.Start, s.endif.Range.End)
		pp.removedDirectives += len(s.clauses) + 1
		return nil
	}

	for _, cl := range s.clauses[1:] {
		if !cl.dir.Taken && pp.rw.Blank(cl.dir.Range.End, cl.bodyEnd) {
			pp.rw.Delete(cl.dir.Range.Start, cl.bodyEnd)
			pp.removedDirectives++
		}
	}

	openCovered := pp.rw.Covered(s.open().Range.Start, s.open().Range.End)
	endifCovered := pp.rw.Covered(s.endif.Range.Start, s.endif.Range.End)
	if openCovered != endifCovered {
		return fmt.Errorf("conditional at offset %d would lose one of its delimiters", s.open().Range.Start)
	}
	return nil
}

// pruneMacros deletes definitions whose every usage lies in deleted text.
// Iterated to a fixed point: deleting one definition can orphan a macro
// used only in its replacement text.
func (pp *preprocPruner) pruneMacros() {
	dropped := make([]bool, len(pp.unit.Macros))
	for changed := true; changed; {
		changed = false
		for i := range pp.unit.Macros {
			m := &pp.unit.Macros[i]
			if dropped[i] || pp.keep[m.Name] {
				continue
			}
			removable := true
			for _, off := range m.Usages {
				if !pp.rw.Covered(off, off+1) {
					removable = false
					break
				}
			}
			if !removable {
				continue
			}
			dropped[i] = true
			changed = true
			pp.removedMacros++
			if !pp.rw.Covered(m.Range.Start, m.Range.End) {
				pp.rw.Delete(m.Range.Start, m.Range.End)
			}
		}
	}
}
