package optimizer

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/rewriter"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
)

// pruner maps reachability decisions back onto source ranges. It works in
// three steps: mark occurrences of unreachable identities, mark redundant
// forward declarations of retained identities, then emit deletion edits for
// everything marked. The edit buffer's deleted-span view doubles as the
// removed-occurrence set the later phases consult.
type pruner struct {
	unit    *tu.Unit
	reach   *roaring.Bitmap
	rw      *rewriter.Rewriter
	removed map[*tu.Decl]bool

	removedDecls int
}

func newPruner(unit *tu.Unit, reach *roaring.Bitmap, rw *rewriter.Rewriter) *pruner {
	return &pruner{
		unit:    unit,
		reach:   reach,
		rw:      rw,
		removed: make(map[*tu.Decl]bool),
	}
}

func (p *pruner) run() {
	p.markUnreachable()
	p.markRedundantForwards()
	for _, d := range p.unit.Decls {
		p.emit(d)
	}
}

// isRemoved reports whether the occurrence or any enclosing occurrence was
// marked for deletion.
func (p *pruner) isRemoved(d *tu.Decl) bool {
	for ; d != nil; d = d.Parent {
		if p.removed[d] {
			return true
		}
	}
	return false
}

func (p *pruner) markUnreachable() {
	p.unit.Walk(func(d *tu.Decl) bool {
		if d.Group || d.ID == tu.NoDecl {
			return true
		}
		if !p.reach.Contains(uint32(d.ID)) {
			p.removed[d] = true
			return false
		}
		return true
	})
}

// markRedundantForwards deletes forward declarations of identities whose
// definition is also retained, provided no retained reference needs the
// name before the definition appears. Member prototypes inside a class body
// are exempt: an out-of-class definition is only valid with the in-class
// declaration present.
func (p *pruner) markRedundantForwards() {
	defStart := make(map[tu.DeclID]uint32)
	minRef := make(map[tu.DeclID]uint32)

	p.unit.Walk(func(d *tu.Decl) bool {
		if p.isRemoved(d) {
			return false
		}
		if d.IsDefinition && d.ID != tu.NoDecl && !d.Group {
			if s, ok := defStart[d.ID]; !ok || d.Range.Start < s {
				defStart[d.ID] = d.Range.Start
			}
		}
		for _, ref := range d.Refs {
			if ref.Target == tu.NoDecl {
				continue
			}
			if off, ok := minRef[ref.Target]; !ok || ref.Offset < off {
				minRef[ref.Target] = ref.Offset
			}
		}
		return true
	})

	p.unit.Walk(func(d *tu.Decl) bool {
		if p.isRemoved(d) {
			return false
		}
		if d.IsDefinition || d.Group || d.ID == tu.NoDecl {
			return true
		}
		switch d.Kind {
		case tu.KindClass, tu.KindEnum, tu.KindFunction, tu.KindMethod:
		default:
			return true
		}
		if insideClass(d) {
			return true
		}
		ds, ok := defStart[d.ID]
		if !ok {
			return true
		}
		if off, ok := minRef[d.ID]; ok && off < ds {
			return true
		}
		p.removed[d] = true
		return false
	})
}

func insideClass(d *tu.Decl) bool {
	for d = d.Parent; d != nil; d = d.Parent {
		if d.Kind == tu.KindClass {
			return true
		}
	}
	return false
}

func (p *pruner) emit(d *tu.Decl) {
	if d.Group {
		p.emitGroup(d)
		return
	}
	if p.removed[d] {
		p.deleteRange(d.Range)
		p.removedDecls++
		return
	}
	for _, c := range d.Children {
		p.emit(c)
	}
}

// emitGroup prunes a multi-declarator statement. Killing every declarator
// kills the statement; killing some deletes each dead declarator together
// with a separating comma.
func (p *pruner) emitGroup(g *tu.Decl) {
	dead := 0
	for _, c := range g.Children {
		if p.removed[c] {
			dead++
		}
	}
	if dead == len(g.Children) && dead > 0 {
		p.deleteRange(g.Range)
		p.removedDecls += dead
		return
	}
	for _, c := range g.Children {
		if p.removed[c] {
			p.deleteWithComma(c.Range)
			p.removedDecls++
		}
	}
}

// deleteRange deletes a range, widening it to whole lines when the
// surrounding line content is nothing but whitespace.
func (p *pruner) deleteRange(r tu.Range) {
	src := p.unit.Source
	start, end := r.Start, r.End
	s, e := start, end
	for int(e) < len(src) && (src[e] == ' ' || src[e] == '\t') {
		e++
	}
	for s > 0 && (src[s-1] == ' ' || src[s-1] == '\t') {
		s--
	}
	if (s == 0 || src[s-1] == '\n') && (int(e) == len(src) || src[e] == '\n') {
		if int(e) < len(src) {
			e++
		}
		start, end = s, e
	}
	p.rw.Delete(start, end)
}

// deleteWithComma removes a list element plus its separating comma, taking
// the following comma when one exists and the preceding one otherwise.
func (p *pruner) deleteWithComma(r tu.Range) {
	src := p.unit.Source
	e := r.End
	for int(e) < len(src) && isSpace(src[e]) {
		e++
	}
	if int(e) < len(src) && src[e] == ',' {
		e++
		for int(e) < len(src) && (src[e] == ' ' || src[e] == '\t') {
			e++
		}
		p.rw.Delete(r.Start, e)
		return
	}
	s := r.Start
	for s > 0 && isSpace(src[s-1]) {
		s--
	}
	if s > 0 && src[s-1] == ',' {
		s--
	}
	p.rw.Delete(s, r.End)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
