package optimizer

import (
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
)

// cleanupNamespaces removes namespace shells whose entire contents were
// deleted and merges same-name fragments separated only by now-deleted
// text. It runs after the pruning edits exist so emptiness can be judged
// against the edit buffer, and works bottom-up so an inner deletion can
// empty the enclosing block.
func (p *pruner) cleanupNamespaces() {
	p.cleanupList(p.unit.Decls)
}

func (p *pruner) cleanupList(decls []*tu.Decl) {
	for _, d := range decls {
		if d.Kind != tu.KindNamespace || p.isRemoved(d) || d.HeaderEnd == 0 {
			continue
		}
		p.cleanupList(d.Children)
		if p.rw.Blank(d.HeaderEnd, d.TrailerStart) {
			p.deleteRange(d.Range)
			p.removed[d] = true
		}
	}
	p.mergeFragments(decls)
}

// mergeFragments joins consecutive reopenings of the same namespace when
// the text between them is gone: the first block's closer and the second
// block's header are dropped, concatenating the bodies in order. Fragments
// separated by retained content stay separate.
func (p *pruner) mergeFragments(decls []*tu.Decl) {
	var prev *tu.Decl
	for _, d := range decls {
		if p.isRemoved(d) {
			continue
		}
		if d.Kind != tu.KindNamespace || d.HeaderEnd == 0 {
			prev = nil
			continue
		}
		if prev != nil && prev.Name == d.Name && d.Range.Start >= prev.Range.End &&
			p.rw.Blank(prev.Range.End, d.Range.Start) {
			p.deleteRange(tu.Range{Start: prev.TrailerStart, End: prev.Range.End})
			p.deleteRange(tu.Range{Start: d.Range.Start, End: d.HeaderEnd})
		}
		prev = d
	}
}
