package tu

import "testing"

func TestRange(t *testing.T) {
	r := Range{Start: 2, End: 6}
	if r.Len() != 4 {
		t.Errorf("Len = %d, want 4", r.Len())
	}
	if r.Empty() {
		t.Error("non-empty range reported empty")
	}
	if !r.Contains(2) || r.Contains(6) {
		t.Error("Contains must be half-open")
	}
	if !r.Covers(Range{Start: 3, End: 5}) || r.Covers(Range{Start: 1, End: 5}) {
		t.Error("Covers mismatch")
	}
	if !(Range{Start: 4, End: 4}).Empty() {
		t.Error("zero-length range must be empty")
	}
}

func TestUnitText(t *testing.T) {
	u := &Unit{Source: []byte("int main() {}")}
	if got := u.Text(Range{Start: 4, End: 8}); got != "main" {
		t.Errorf("Text = %q, want %q", got, "main")
	}
	if got := u.Text(Range{Start: 4, End: 99}); got != "" {
		t.Errorf("out-of-bounds Text = %q, want empty", got)
	}
}

func TestSymbolLookup(t *testing.T) {
	u := &Unit{Symbols: []Symbol{{Name: "main", Kind: KindFunction}}}
	if u.Symbol(0).Name != "main" {
		t.Error("Symbol(0) did not return the record")
	}
	if u.Symbol(NoDecl).Name != "" {
		t.Error("Symbol(NoDecl) must be zero")
	}
}

func TestWalkStopsDescent(t *testing.T) {
	leaf := &Decl{Name: "leaf"}
	mid := &Decl{Name: "mid", Children: []*Decl{leaf}}
	top := &Decl{Name: "top", Children: []*Decl{mid}}
	u := &Unit{Decls: []*Decl{top}}

	var seen []string
	u.Walk(func(d *Decl) bool {
		seen = append(seen, d.Name)
		return d.Name != "mid"
	})
	if len(seen) != 2 || seen[0] != "top" || seen[1] != "mid" {
		t.Errorf("Walk visited %v, want [top mid]", seen)
	}
}

func TestDirectiveKindPredicates(t *testing.T) {
	for _, k := range []DirectiveKind{DirectiveIf, DirectiveIfdef, DirectiveIfndef} {
		if !k.Opens() {
			t.Errorf("%s must open a section", k)
		}
	}
	if DirectiveElif.Opens() || DirectiveEndif.Opens() {
		t.Error("only #if family opens sections")
	}
	if DirectiveEndif.Clause() {
		t.Error("#endif is not a clause")
	}
	if !DirectiveElse.Clause() {
		t.Error("#else starts a clause")
	}
}
