package frontend

import (
	"strings"

	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
	sitter "github.com/smacker/go-tree-sitter"
)

// resolveAll runs the second pass: every recorded occurrence subtree is
// scanned for name references, using-declarations adopt the identity of
// their target, classes gain implicit references to their structors and
// operators, and pending macro usages are matched to definitions.
func (c *collector) resolveAll() {
	macroNames := make(map[string]bool, len(c.unit.Macros))
	for _, m := range c.unit.Macros {
		macroNames[m.Name] = true
	}

	for _, occ := range c.occs {
		if occ.usingTarget != "" {
			if ids := c.lookupScoped(occ.usingTarget, occ.scope); len(ids) > 0 {
				occ.decl.ID = ids[0]
			}
			continue
		}
		for _, n := range occ.nodes {
			c.scanRefs(n, occ, macroNames)
		}
	}

	c.implicitMemberRefs()
	c.matchMacroUses()
}

// scanRefs walks a subtree collecting references into the occurrence's
// declaration. Subtrees owned by child occurrences are skipped.
func (c *collector) scanRefs(n *sitter.Node, occ *occurrence, macroNames map[string]bool) {
	for _, s := range occ.skip {
		if n.Equal(s) {
			return
		}
	}
	switch n.Type() {
	case "comment":
		return
	case "qualified_identifier":
		c.resolveQualified(n, occ, macroNames)
		return
	case "template_type", "template_function":
		c.resolveTemplateName(n, occ, macroNames)
		return
	case "identifier", "type_identifier", "namespace_identifier":
		c.resolvePlain(n, occ, macroNames)
		return
	case "field_identifier":
		c.resolveField(n, occ, macroNames)
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.scanRefs(n.Child(i), occ, macroNames)
	}
}

func (c *collector) noteMacro(name string, off uint32, macroNames map[string]bool) {
	if macroNames[name] {
		c.pending = append(c.pending, macroUse{name: name, off: off})
	}
}

func (c *collector) addRefs(occ *occurrence, ids []tu.DeclID, off uint32) {
	for _, id := range ids {
		if id == occ.decl.ID {
			continue
		}
		occ.decl.Refs = append(occ.decl.Refs, tu.Ref{Target: id, Offset: off})
	}
}

// resolvePlain handles a bare identifier or type name.
func (c *collector) resolvePlain(n *sitter.Node, occ *occurrence, macroNames map[string]bool) {
	name := nodeText(n, c.src)
	c.noteMacro(name, n.StartByte(), macroNames)
	ids := c.lookupScoped(name, occ.scope)
	if argc, ok := callContext(n); ok {
		ids = c.filterArity(ids, argc)
	}
	c.addRefs(occ, ids, n.StartByte())
}

// resolveField handles member names. In a member-access expression the
// object type is unknown here, so the reference fans out to every member
// carrying that name. Elsewhere the name resolves like a plain identifier.
func (c *collector) resolveField(n *sitter.Node, occ *occurrence, macroNames map[string]bool) {
	name := nodeText(n, c.src)
	c.noteMacro(name, n.StartByte(), macroNames)

	p := n.Parent()
	if p != nil && p.Type() == "field_expression" {
		var ids []tu.DeclID
		for _, id := range c.byBase[name] {
			switch c.unit.Symbols[id].Kind {
			case tu.KindMethod, tu.KindField:
				ids = append(ids, id)
			}
		}
		if argc, ok := callContext(n); ok {
			ids = c.filterArity(ids, argc)
		}
		c.addRefs(occ, ids, n.StartByte())
		return
	}
	c.addRefs(occ, c.lookupScoped(name, occ.scope), n.StartByte())
}

// resolveQualified handles A::x style references. The full spelling is
// tried first, then the spelling with template arguments stripped; failing
// both, the scope part alone is resolved so the named container survives.
// Template argument lists are always descended into.
func (c *collector) resolveQualified(n *sitter.Node, occ *occurrence, macroNames map[string]bool) {
	full := normalizeWS(nodeText(n, c.src))
	ids := c.lookupScoped(full, occ.scope)
	if len(ids) == 0 {
		if stripped := stripTemplateArgs(full); stripped != full {
			ids = c.lookupScoped(stripped, occ.scope)
		}
	}
	if len(ids) > 0 {
		if argc, ok := callContext(n); ok {
			ids = c.filterArity(ids, argc)
		}
		c.addRefs(occ, ids, n.StartByte())
	} else if scopePart := n.ChildByFieldName("scope"); scopePart != nil {
		c.scanRefs(scopePart, occ, macroNames)
	}
	c.scanTemplateArgs(n, occ, macroNames)
}

// resolveTemplateName handles X<args> outside a qualified name: an explicit
// specialization spelling first, the primary template otherwise.
func (c *collector) resolveTemplateName(n *sitter.Node, occ *occurrence, macroNames map[string]bool) {
	base := nodeText(n.ChildByFieldName("name"), c.src)
	args := normalizeWS(nodeText(n.ChildByFieldName("arguments"), c.src))
	c.noteMacro(base, n.StartByte(), macroNames)

	ids := c.lookupScoped(base+args, occ.scope)
	if len(ids) == 0 {
		ids = c.lookupScoped(base, occ.scope)
	}
	if argc, ok := callContext(n); ok {
		ids = c.filterArity(ids, argc)
	}
	c.addRefs(occ, ids, n.StartByte())

	if argList := n.ChildByFieldName("arguments"); argList != nil {
		for i := 0; i < int(argList.ChildCount()); i++ {
			c.scanRefs(argList.Child(i), occ, macroNames)
		}
	}
}

// scanTemplateArgs descends into every template argument list below n
// without re-resolving the names that carry them.
func (c *collector) scanTemplateArgs(n *sitter.Node, occ *occurrence, macroNames map[string]bool) {
	if n.Type() == "template_argument_list" {
		for i := 0; i < int(n.ChildCount()); i++ {
			c.scanRefs(n.Child(i), occ, macroNames)
		}
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.scanTemplateArgs(n.Child(i), occ, macroNames)
	}
}

// lookupScoped resolves a possibly qualified name against the scope chain:
// the innermost enclosing scope first, the global scope last. All name
// classes and every function overload at the first matching level are
// returned.
func (c *collector) lookupScoped(name, scope string) []tu.DeclID {
	global := strings.HasPrefix(name, "::")
	name = strings.TrimPrefix(name, "::")
	if name == "" {
		return nil
	}
	prefixes := []string{""}
	if !global {
		prefixes = scopeChain(scope)
	}
	for _, p := range prefixes {
		q := joinScope(p, name)
		var ids []tu.DeclID
		for _, class := range []uint8{classType, classValue, classNS} {
			if id, ok := c.ids[symKey(q, class, "")]; ok {
				ids = append(ids, id)
			}
		}
		ids = append(ids, c.overloads[q]...)
		if len(ids) > 0 {
			return ids
		}
	}
	return nil
}

// scopeChain expands "a::b" into ["a::b", "a", ""].
func scopeChain(scope string) []string {
	chain := []string{scope}
	for scope != "" {
		if i := strings.LastIndex(scope, "::"); i >= 0 {
			scope = scope[:i]
		} else {
			scope = ""
		}
		chain = append(chain, scope)
	}
	return chain
}

func stripTemplateArgs(s string) string {
	if i := strings.IndexByte(s, '<'); i > 0 {
		return s[:i]
	}
	return s
}

// callContext reports the argument count when n names the callee of a call
// expression, directly or through a member access.
func callContext(n *sitter.Node) (int, bool) {
	p := n.Parent()
	if p == nil {
		return 0, false
	}
	if p.Type() == "field_expression" {
		if f := p.ChildByFieldName("field"); f == nil || !f.Equal(n) {
			return 0, false
		}
		n, p = p, p.Parent()
		if p == nil {
			return 0, false
		}
	}
	if p.Type() != "call_expression" {
		return 0, false
	}
	if f := p.ChildByFieldName("function"); f == nil || !f.Equal(n) {
		return 0, false
	}
	args := p.ChildByFieldName("arguments")
	if args == nil {
		return 0, true
	}
	argc := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if args.NamedChild(i).Type() != "comment" {
			argc++
		}
	}
	return argc, true
}

// filterArity narrows overload candidates to those accepting the given
// argument count. When no overload matches the original set is kept.
func (c *collector) filterArity(ids []tu.DeclID, argc int) []tu.DeclID {
	var out []tu.DeclID
	matched := false
	for _, id := range ids {
		switch c.unit.Symbols[id].Kind {
		case tu.KindFunction, tu.KindMethod:
			ar, ok := c.arity[id]
			if !ok {
				out = append(out, id)
				matched = true
				continue
			}
			if argc >= ar.min && (ar.max < 0 || argc <= ar.max) {
				out = append(out, id)
				matched = true
			}
		default:
			out = append(out, id)
		}
	}
	if !matched {
		return ids
	}
	return out
}

// implicitMemberRefs makes every class definition reference its
// constructors, destructor and operator members. Those are reached through
// syntax the reference scan cannot attribute, so keeping the class keeps
// them.
func (c *collector) implicitMemberRefs() {
	for _, occ := range c.occs {
		d := occ.decl
		if d.Kind != tu.KindClass || !d.IsDefinition || d.ID == tu.NoDecl {
			continue
		}
		q := c.unit.Symbols[d.ID].Name
		base := q
		if i := strings.LastIndex(base, "::"); i >= 0 {
			base = base[i+2:]
		}
		c.addRefs(occ, c.overloads[q+"::"+base], d.Range.Start)
		c.addRefs(occ, c.overloads[q+"::~"+base], d.Range.Start)
		opPrefix := q + "::operator"
		for name, ids := range c.overloads {
			if strings.HasPrefix(name, opPrefix) {
				c.addRefs(occ, ids, d.Range.Start)
			}
		}
	}
}

// matchMacroUses attaches each pending usage to the closest preceding
// definition of that name. A name inside its own definition line is not a
// usage.
func (c *collector) matchMacroUses() {
	for _, use := range c.pending {
		best := -1
		for i := range c.unit.Macros {
			m := &c.unit.Macros[i]
			if m.Name != use.name || m.Range.Start > use.off {
				continue
			}
			if m.Range.Contains(use.off) {
				continue
			}
			if best < 0 || m.Range.Start > c.unit.Macros[best].Range.Start {
				best = i
			}
		}
		if best >= 0 {
			c.unit.Macros[best].Usages = append(c.unit.Macros[best].Usages, use.off)
		}
	}
}
