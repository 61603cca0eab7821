package frontend

import (
	"fmt"
	"strings"

	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
	sitter "github.com/smacker/go-tree-sitter"
)

// symbol name-class. Types, values, functions and namespaces live in
// separate lookup spaces so "struct stat" and "int stat" do not collide.
const (
	classType uint8 = iota
	classValue
	classFunc
	classNS
)

func classOf(kind tu.Kind) uint8 {
	switch kind {
	case tu.KindClass, tu.KindEnum, tu.KindTypedef:
		return classType
	case tu.KindFunction, tu.KindMethod:
		return classFunc
	case tu.KindNamespace:
		return classNS
	default:
		return classValue
	}
}

// arityRange bounds the argument counts a function overload accepts.
// max < 0 means variadic.
type arityRange struct {
	min, max int
}

// macroUse is a candidate macro expansion site, filtered against the
// collected definitions once the whole unit has been walked.
type macroUse struct {
	name string
	off  uint32
}

// occurrence pairs a collected tu.Decl with the syntax subtrees that must be
// scanned for references on the second pass. Subtrees in skip belong to
// child occurrences and are scanned by those instead.
type occurrence struct {
	decl  *tu.Decl
	nodes []*sitter.Node
	skip  []*sitter.Node
	scope string

	// usingTarget, when set, carries the name a using-declaration or
	// namespace alias introduces; its identity is resolved on pass two.
	usingTarget string
}

type collector struct {
	src  []byte
	unit *tu.Unit

	ids       map[string]tu.DeclID
	overloads map[string][]tu.DeclID
	byBase    map[string][]tu.DeclID
	arity     map[tu.DeclID]arityRange

	occs    []*occurrence
	pending []macroUse

	// defines is the live definition table driving conditional
	// evaluation. It starts from command-line defines and mutates as
	// #define and #undef lines are walked in source order.
	defines map[string]string
}

func newCollector(source []byte, path string, defines map[string]string) *collector {
	c := &collector{
		src:       source,
		unit:      &tu.Unit{Path: path, Source: source},
		ids:       make(map[string]tu.DeclID),
		overloads: make(map[string][]tu.DeclID),
		byBase:    make(map[string][]tu.DeclID),
		arity:     make(map[tu.DeclID]arityRange),
		defines:   make(map[string]string, len(defines)),
	}
	for k, v := range defines {
		c.defines[k] = v
	}
	return c
}

func symKey(qname string, class uint8, sig string) string {
	var b strings.Builder
	b.Grow(len(qname) + len(sig) + 4)
	b.WriteString(qname)
	b.WriteByte(0)
	b.WriteByte('0' + class)
	if class == classFunc {
		b.WriteByte(0)
		b.WriteString(sig)
	}
	return b.String()
}

// declare returns the canonical identity for a qualified name, creating it
// on first sight. Function identities additionally key on the normalized
// parameter list so overloads stay distinct.
func (c *collector) declare(qname string, kind tu.Kind, sig string) tu.DeclID {
	class := classOf(kind)
	key := symKey(qname, class, sig)
	if id, ok := c.ids[key]; ok {
		return id
	}
	id := tu.DeclID(len(c.unit.Symbols))
	c.unit.Symbols = append(c.unit.Symbols, tu.Symbol{Name: qname, Kind: kind})
	c.ids[key] = id
	if class == classFunc {
		c.overloads[qname] = append(c.overloads[qname], id)
	}
	base := qname
	if i := strings.LastIndex(base, "::"); i >= 0 {
		base = base[i+2:]
	}
	c.byBase[base] = append(c.byBase[base], id)
	return id
}

// declareUnique creates an identity that is never found by name lookup,
// used for anonymous namespaces and enums.
func (c *collector) declareUnique(display string, kind tu.Kind) tu.DeclID {
	id := tu.DeclID(len(c.unit.Symbols))
	c.unit.Symbols = append(c.unit.Symbols, tu.Symbol{Name: display, Kind: kind})
	return id
}

// alias registers an extra lookup key for an existing identity, e.g. the
// EnumName::Value spelling of an unscoped enumerator.
func (c *collector) alias(qname string, class uint8, id tu.DeclID) {
	key := symKey(qname, class, "")
	if _, ok := c.ids[key]; !ok {
		c.ids[key] = id
	}
}

func (c *collector) widenArity(id tu.DeclID, min, max int) {
	cur, ok := c.arity[id]
	if !ok {
		c.arity[id] = arityRange{min, max}
		return
	}
	if min < cur.min {
		cur.min = min
	}
	if max < 0 || (cur.max >= 0 && max > cur.max) {
		cur.max = max
	}
	c.arity[id] = cur
}

func (c *collector) attach(parent *tu.Decl, d *tu.Decl) {
	if parent == nil {
		c.unit.Decls = append(c.unit.Decls, d)
	} else {
		d.Parent = parent
		parent.Children = append(parent.Children, d)
	}
}

func (c *collector) record(o *occurrence) { c.occs = append(c.occs, o) }

// collectChildren walks the direct children of a container body (or the
// translation unit root) and collects every declaration item.
func (c *collector) collectChildren(n *sitter.Node, parent *tu.Decl) {
	scope := ""
	inClass := false
	if parent != nil {
		scope = parent.Name
		inClass = parent.Kind == tu.KindClass
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.collectItem(n.Child(i), parent, scope, inClass)
	}
}

func (c *collector) collectItem(n *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	switch n.Type() {
	case "function_definition":
		c.collectFunction(n, n, parent, scope, inClass, true)
	case "declaration", "field_declaration":
		c.collectDeclaration(n, parent, scope, inClass)
	case "class_specifier", "struct_specifier", "union_specifier":
		c.collectClass(n, n, parent, scope, "", true)
	case "enum_specifier":
		c.collectEnum(n, n, parent, scope)
	case "namespace_definition":
		c.collectNamespace(n, parent, scope)
	case "template_declaration":
		c.collectTemplate(n, parent, scope, inClass)
	case "alias_declaration":
		c.collectAlias(n, n, parent, scope)
	case "type_definition":
		c.collectTypedef(n, parent, scope, inClass)
	case "using_declaration", "namespace_alias_definition":
		c.collectUsing(n, parent, scope)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			if body.Type() == "declaration_list" {
				for i := 0; i < int(body.ChildCount()); i++ {
					c.collectItem(body.Child(i), parent, scope, inClass)
				}
			} else {
				c.collectItem(body, parent, scope, inClass)
			}
		}
	case "friend_declaration":
		if parent != nil {
			c.record(&occurrence{decl: parent, nodes: []*sitter.Node{n}, scope: scope})
		}
	case "preproc_def", "preproc_function_def":
		c.collectMacro(n)
	case "preproc_call":
		c.collectPreprocCall(n)
	case "preproc_if", "preproc_ifdef":
		c.collectConditional(n, parent, scope, inClass)
	case "static_assert_declaration", "explicit_template_instantiation", "template_instantiation":
		// Kept verbatim; whatever these mention must survive with them.
		d := &tu.Decl{ID: tu.NoDecl, Kind: tu.KindVariable, Range: c.nodeRange(n)}
		c.attach(parent, d)
		c.record(&occurrence{decl: d, nodes: []*sitter.Node{n}, scope: scope})
	}
}

// collectFunction handles function and method definitions and prototypes.
// extent is the node whose byte range the occurrence owns (the enclosing
// template_declaration for templates), declNode the node carrying the
// declarator.
func (c *collector) collectFunction(extent, declNode *sitter.Node, parent *tu.Decl, scope string, inClass, isDef bool) {
	fd := findFunctionDeclarator(declNode.ChildByFieldName("declarator"))
	if fd == nil {
		d := &tu.Decl{ID: tu.NoDecl, Kind: tu.KindFunction, Range: c.nodeRange(extent)}
		c.attach(parent, d)
		c.record(&occurrence{decl: d, nodes: []*sitter.Node{declNode}, scope: scope})
		return
	}
	name := declaratorName(fd.ChildByFieldName("declarator"), c.src)
	if name == "" {
		name = fmt.Sprintf("(unnamed@%d)", extent.StartByte())
	}
	qname := joinScope(scope, name)

	sig := ""
	min, max := 0, 0
	if params := fd.ChildByFieldName("parameters"); params != nil {
		sig = normalizeWS(nodeText(params, c.src))
		min, max = countParams(params, c.src)
	}

	kind := tu.KindFunction
	if inClass || strings.Contains(name, "::") {
		kind = tu.KindMethod
	}
	id := c.declare(qname, kind, sig)
	c.widenArity(id, min, max)

	d := &tu.Decl{
		ID:           id,
		Kind:         kind,
		Name:         qname,
		Range:        c.nodeRange(extent),
		IsDefinition: isDef,
	}
	c.attach(parent, d)

	// Bodies of out-of-class definitions resolve names in the scope the
	// qualified name points into, not the lexical one.
	occScope := scope
	if i := strings.LastIndex(qname, "::"); i >= 0 {
		occScope = qname[:i]
	}
	occ := &occurrence{decl: d, nodes: []*sitter.Node{declNode}, scope: occScope}
	// The declared name is not a reference; resolving it would tie every
	// overload of the name together.
	if nameNode := fd.ChildByFieldName("declarator"); nameNode != nil {
		occ.skip = append(occ.skip, nameNode)
	}
	c.record(occ)
}

// collectDeclaration handles "declaration" and "field_declaration" nodes:
// variables, fields, function prototypes, forward class declarations and
// multi-declarator groups of any of those.
func (c *collector) collectDeclaration(n *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	typeNode := n.ChildByFieldName("type")
	declarators := fieldChildren(n, "declarator")

	if typeNode != nil && len(declarators) == 0 {
		switch typeNode.Type() {
		case "class_specifier", "struct_specifier", "union_specifier":
			c.collectClass(typeNode, n, parent, scope, "", false)
			return
		case "enum_specifier":
			c.collectEnum(typeNode, n, parent, scope)
			return
		}
	}

	// "struct X { ... } x;" declares both the type and a variable.
	if typeNode != nil && len(declarators) > 0 {
		switch typeNode.Type() {
		case "class_specifier", "struct_specifier", "union_specifier":
			if typeNode.ChildByFieldName("body") != nil {
				c.collectClass(typeNode, typeNode, parent, scope, "", false)
			}
		case "enum_specifier":
			if typeNode.ChildByFieldName("body") != nil {
				c.collectEnum(typeNode, typeNode, parent, scope)
			}
		}
	}

	if len(declarators) == 0 {
		return
	}
	if len(declarators) == 1 {
		c.collectDeclarator(n, declarators[0], typeNode, parent, scope, inClass)
		return
	}

	group := &tu.Decl{
		ID:        tu.NoDecl,
		Kind:      tu.KindVariable,
		Group:     true,
		Range:     c.nodeRange(n),
		HeaderEnd: declarators[0].StartByte(),
	}
	c.attach(parent, group)
	for _, d := range declarators {
		c.collectDeclarator(d, d, typeNode, group, scope, inClass)
	}
}

// collectDeclarator collects one declarator of a declaration statement.
// extent is the node owning the lexical range (the whole statement for a
// lone declarator, the declarator itself inside a group).
func (c *collector) collectDeclarator(extent, declarator, typeNode *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	if fd := findFunctionDeclarator(declarator); fd != nil {
		c.collectFunctionProto(extent, fd, typeNode, parent, scope, inClass)
		return
	}

	name := declaratorName(declarator, c.src)
	kind := tu.KindVariable
	if inClass {
		kind = tu.KindField
	}
	var id tu.DeclID
	var qname string
	if name == "" {
		id = tu.NoDecl
	} else {
		qname = joinScope(scope, name)
		id = c.declare(qname, kind, "")
	}
	d := &tu.Decl{
		ID:           id,
		Kind:         kind,
		Name:         qname,
		Range:        c.nodeRange(extent),
		IsDefinition: true,
	}
	c.attach(parent, d)

	nodes := []*sitter.Node{declarator}
	if typeNode != nil {
		nodes = append(nodes, typeNode)
	}
	occScope := scope
	if i := strings.LastIndex(qname, "::"); i >= 0 {
		occScope = qname[:i]
	}
	c.record(&occurrence{decl: d, nodes: nodes, scope: occScope})
}

// collectFunctionProto collects a prototype declarator (no body).
func (c *collector) collectFunctionProto(extent, fd, typeNode *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	name := declaratorName(fd.ChildByFieldName("declarator"), c.src)
	if name == "" {
		name = fmt.Sprintf("(unnamed@%d)", extent.StartByte())
	}
	qname := joinScope(scope, name)

	sig := ""
	min, max := 0, 0
	if params := fd.ChildByFieldName("parameters"); params != nil {
		sig = normalizeWS(nodeText(params, c.src))
		min, max = countParams(params, c.src)
	}
	kind := tu.KindFunction
	if inClass || strings.Contains(name, "::") {
		kind = tu.KindMethod
	}
	id := c.declare(qname, kind, sig)
	c.widenArity(id, min, max)

	d := &tu.Decl{ID: id, Kind: kind, Name: qname, Range: c.nodeRange(extent)}
	c.attach(parent, d)

	nodes := []*sitter.Node{fd}
	if typeNode != nil {
		nodes = append(nodes, typeNode)
	}
	occScope := scope
	if i := strings.LastIndex(qname, "::"); i >= 0 {
		occScope = qname[:i]
	}
	occ := &occurrence{decl: d, nodes: nodes, scope: occScope}
	if nameNode := fd.ChildByFieldName("declarator"); nameNode != nil {
		occ.skip = append(occ.skip, nameNode)
	}
	c.record(occ)
}

// collectClass handles class, struct and union specifiers, both definitions
// and forward declarations. specArgs carries normalized template arguments
// for explicit and partial specializations.
func (c *collector) collectClass(spec, extent *sitter.Node, parent *tu.Decl, scope, specArgs string, wantSemi bool) {
	nameNode := spec.ChildByFieldName("name")
	body := spec.ChildByFieldName("body")

	var qname string
	var id tu.DeclID
	if nameNode == nil {
		id = c.declareUnique(fmt.Sprintf("(anonymous@%d)", spec.StartByte()), tu.KindClass)
		qname = joinScope(scope, fmt.Sprintf("(anonymous@%d)", spec.StartByte()))
	} else {
		name := nodeText(nameNode, c.src)
		if nameNode.Type() == "template_type" {
			base := nodeText(nameNode.ChildByFieldName("name"), c.src)
			args := normalizeWS(nodeText(nameNode.ChildByFieldName("arguments"), c.src))
			name = base + args
		}
		qname = joinScope(scope, name) + specArgs
		id = c.declare(qname, tu.KindClass, "")
	}

	r := c.nodeRange(extent)
	if wantSemi {
		r.End = c.extendSemi(r.End)
	}
	d := &tu.Decl{
		ID:           id,
		Kind:         tu.KindClass,
		Name:         qname,
		Range:        r,
		IsDefinition: body != nil,
	}
	c.attach(parent, d)

	occ := &occurrence{decl: d, nodes: []*sitter.Node{spec}, scope: scope}
	if body != nil {
		d.HeaderEnd = body.StartByte() + 1
		d.TrailerStart = body.EndByte() - 1
		occ.skip = append(occ.skip, body)
	}
	c.record(occ)

	if body != nil {
		c.collectChildren(body, d)
	}
}

// collectEnum handles enum specifiers and their enumerators. Unscoped
// enumerators land in the enclosing scope and get an EnumName::Value alias.
func (c *collector) collectEnum(spec, extent *sitter.Node, parent *tu.Decl, scope string) {
	nameNode := spec.ChildByFieldName("name")
	body := spec.ChildByFieldName("body")

	scoped := false
	for i := 0; i < int(spec.ChildCount()); i++ {
		t := spec.Child(i).Type()
		if t == "class" || t == "struct" {
			scoped = true
		}
	}

	var qname string
	var id tu.DeclID
	if nameNode == nil {
		qname = joinScope(scope, fmt.Sprintf("(anonymous enum@%d)", spec.StartByte()))
		id = c.declareUnique(qname, tu.KindEnum)
	} else {
		qname = joinScope(scope, nodeText(nameNode, c.src))
		id = c.declare(qname, tu.KindEnum, "")
	}

	r := c.nodeRange(extent)
	if extent == spec {
		r.End = c.extendSemi(r.End)
	}
	d := &tu.Decl{
		ID:           id,
		Kind:         tu.KindEnum,
		Name:         qname,
		Range:        r,
		IsDefinition: body != nil,
	}
	c.attach(parent, d)

	occ := &occurrence{decl: d, nodes: []*sitter.Node{spec}, scope: scope}
	if body != nil {
		d.HeaderEnd = body.StartByte() + 1
		d.TrailerStart = body.EndByte() - 1
		occ.skip = append(occ.skip, body)
	}
	c.record(occ)

	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		en := body.Child(i)
		if en.Type() != "enumerator" {
			continue
		}
		ename := nodeText(en.ChildByFieldName("name"), c.src)
		var eq string
		if scoped {
			eq = qname + "::" + ename
		} else {
			eq = joinScope(scope, ename)
		}
		eid := c.declare(eq, tu.KindEnumerator, "")
		if !scoped {
			c.alias(qname+"::"+ename, classValue, eid)
		}

		er := c.nodeRange(en)
		if next := en.NextSibling(); next != nil && next.Type() == "," {
			er.End = next.EndByte()
		} else if prev := en.PrevSibling(); prev != nil && prev.Type() == "," {
			er.Start = prev.StartByte()
		}
		ed := &tu.Decl{
			ID:           eid,
			Kind:         tu.KindEnumerator,
			Name:         eq,
			Range:        er,
			IsDefinition: true,
		}
		c.attach(d, ed)
		c.record(&occurrence{decl: ed, nodes: []*sitter.Node{en}, scope: scope})
	}
}

func (c *collector) collectNamespace(n *sitter.Node, parent *tu.Decl, scope string) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")

	var qname string
	var id tu.DeclID
	if nameNode == nil {
		// Members of an anonymous namespace are visible unqualified, so
		// children keep the enclosing scope as their prefix.
		qname = scope
		id = c.declareUnique("(anonymous namespace)", tu.KindNamespace)
	} else {
		qname = joinScope(scope, nodeText(nameNode, c.src))
		id = c.declare(qname, tu.KindNamespace, "")
	}

	d := &tu.Decl{
		ID:           id,
		Kind:         tu.KindNamespace,
		Name:         qname,
		Range:        c.nodeRange(n),
		IsDefinition: true,
	}
	c.attach(parent, d)
	if body != nil {
		d.HeaderEnd = body.StartByte() + 1
		d.TrailerStart = body.EndByte() - 1
		c.collectChildren(body, d)
	}
}

// collectTemplate locates the templated entity and collects it with the
// template header folded into its lexical extent.
func (c *collector) collectTemplate(n *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		inner := n.Child(i)
		switch inner.Type() {
		case "function_definition":
			c.collectFunction(n, inner, parent, scope, inClass, true)
			return
		case "declaration", "field_declaration":
			if fd := findFunctionDeclarator(inner.ChildByFieldName("declarator")); fd != nil {
				c.collectFunctionProto(n, fd, inner.ChildByFieldName("type"), parent, scope, inClass)
			} else {
				c.collectDeclaration(inner, parent, scope, inClass)
			}
			return
		case "class_specifier", "struct_specifier", "union_specifier":
			c.collectClass(inner, n, parent, scope, "", true)
			return
		case "enum_specifier":
			c.collectEnum(inner, n, parent, scope)
			return
		case "alias_declaration":
			c.collectAlias(n, inner, parent, scope)
			return
		case "template_declaration":
			c.collectTemplate(inner, parent, scope, inClass)
			return
		}
	}
}

func (c *collector) collectAlias(extent, n *sitter.Node, parent *tu.Decl, scope string) {
	name := nodeText(n.ChildByFieldName("name"), c.src)
	qname := joinScope(scope, name)
	id := c.declare(qname, tu.KindTypedef, "")
	d := &tu.Decl{
		ID:           id,
		Kind:         tu.KindTypedef,
		Name:         qname,
		Range:        c.nodeRange(extent),
		IsDefinition: true,
	}
	c.attach(parent, d)
	c.record(&occurrence{decl: d, nodes: []*sitter.Node{n}, scope: scope})
}

func (c *collector) collectTypedef(n *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	typeNode := n.ChildByFieldName("type")
	declarators := fieldChildren(n, "declarator")
	if len(declarators) == 0 {
		return
	}

	var group *tu.Decl
	attachTo := parent
	if len(declarators) > 1 {
		group = &tu.Decl{
			ID:        tu.NoDecl,
			Kind:      tu.KindTypedef,
			Group:     true,
			Range:     c.nodeRange(n),
			HeaderEnd: declarators[0].StartByte(),
		}
		c.attach(parent, group)
		attachTo = group
	}

	for _, decl := range declarators {
		name := declaratorName(decl, c.src)
		if name == "" {
			continue
		}
		qname := joinScope(scope, name)
		id := c.declare(qname, tu.KindTypedef, "")
		extent := n
		if group != nil {
			extent = decl
		}
		d := &tu.Decl{
			ID:           id,
			Kind:         tu.KindTypedef,
			Name:         qname,
			Range:        c.nodeRange(extent),
			IsDefinition: true,
		}
		c.attach(attachTo, d)
		nodes := []*sitter.Node{decl}
		if typeNode != nil {
			nodes = append(nodes, typeNode)
		}
		c.record(&occurrence{decl: d, nodes: nodes, scope: scope})
	}
}

// collectUsing handles using-declarations, using-directives and namespace
// aliases. The occurrence adopts the identity of the named entity on pass
// two: if the target dies, so does the directive.
func (c *collector) collectUsing(n *sitter.Node, parent *tu.Decl, scope string) {
	var target string
	switch n.Type() {
	case "namespace_alias_definition":
		target = nodeText(n.ChildByFieldName("value"), c.src)
	default:
		for i := 0; i < int(n.ChildCount()); i++ {
			ch := n.Child(i)
			switch ch.Type() {
			case "identifier", "qualified_identifier", "namespace_identifier", "nested_namespace_specifier":
				target = nodeText(ch, c.src)
			}
		}
	}
	d := &tu.Decl{
		ID:    tu.NoDecl,
		Kind:  tu.KindUsing,
		Name:  target,
		Range: c.nodeRange(n),
	}
	c.attach(parent, d)
	c.record(&occurrence{decl: d, scope: scope, usingTarget: strings.TrimPrefix(target, "::")})
}

func (c *collector) collectMacro(n *sitter.Node) {
	name := nodeText(n.ChildByFieldName("name"), c.src)
	if name == "" {
		return
	}
	r := c.nodeRange(n)
	// preproc_def nodes usually include the trailing newline already; only
	// extend when the grammar stopped short of it (end of file, trailing
	// comment after the value).
	if r.End > r.Start && c.src[r.End-1] != '\n' {
		r.End = c.extendLine(r.End)
	}
	def := tu.MacroDef{Name: name, Range: r}
	c.unit.Macros = append(c.unit.Macros, def)

	value := ""
	if v := n.ChildByFieldName("value"); v != nil {
		value = nodeText(v, c.src)
		// Words in the replacement text count as usages of other macros.
		c.scanWords(value, v.StartByte())
	}
	if n.Type() == "preproc_function_def" {
		// Function-like macros cannot be substituted into conditionals.
		value = "\x00fn"
	}
	c.defines[name] = value
}

func (c *collector) collectPreprocCall(n *sitter.Node) {
	dir := nodeText(n.ChildByFieldName("directive"), c.src)
	if dir != "#undef" {
		return
	}
	arg := strings.TrimSpace(nodeText(n.ChildByFieldName("argument"), c.src))
	if i := strings.IndexAny(arg, " \t"); i >= 0 {
		arg = arg[:i]
	}
	delete(c.defines, arg)
}

// collectConditional records the directive event stream for one conditional
// section and collects declarations from its single active clause. Inactive
// clause bodies produce neither declarations nor nested events; their whole
// text is dead.
func (c *collector) collectConditional(n *sitter.Node, parent *tu.Decl, scope string, inClass bool) {
	taken := false
	var kind tu.DirectiveKind
	switch n.Type() {
	case "preproc_ifdef":
		name := nodeText(n.ChildByFieldName("name"), c.src)
		_, defined := c.defines[name]
		if tok := n.Child(0); tok != nil && tok.Type() == "#ifndef" {
			kind = tu.DirectiveIfndef
			taken = !defined
		} else {
			kind = tu.DirectiveIfdef
			taken = defined
		}
		if nm := n.ChildByFieldName("name"); nm != nil {
			c.pending = append(c.pending, macroUse{name: name, off: nm.StartByte()})
		}
	default:
		kind = tu.DirectiveIf
		cond := n.ChildByFieldName("condition")
		taken = c.evalCondition(nodeText(cond, c.src))
		c.scanCondition(cond)
	}

	c.unit.Directives = append(c.unit.Directives, tu.Directive{
		Kind:  kind,
		Range: c.lineRangeAt(n.StartByte()),
		Taken: taken,
	})

	activeSeen := false
	collectClause := func(clause *sitter.Node, active bool) {
		for i := 0; i < int(clause.ChildCount()); i++ {
			ch := clause.Child(i)
			switch ch.Type() {
			case "#if", "#ifdef", "#ifndef", "#elif", "#else", "#endif", "\n",
				"preproc_elif", "preproc_else", "identifier":
				continue
			}
			if cond := clause.ChildByFieldName("condition"); cond != nil && ch.Equal(cond) {
				continue
			}
			if nm := clause.ChildByFieldName("name"); nm != nil && ch.Equal(nm) {
				continue
			}
			if active {
				c.collectItem(ch, parent, scope, inClass)
			}
		}
	}

	if taken {
		activeSeen = true
	}
	collectClause(n, taken)

	alt := n.ChildByFieldName("alternative")
	for alt != nil {
		switch alt.Type() {
		case "preproc_elif":
			cond := alt.ChildByFieldName("condition")
			t := !activeSeen && c.evalCondition(nodeText(cond, c.src))
			c.scanCondition(cond)
			c.unit.Directives = append(c.unit.Directives, tu.Directive{
				Kind:  tu.DirectiveElif,
				Range: c.lineRangeAt(alt.StartByte()),
				Taken: t,
			})
			if t {
				activeSeen = true
			}
			collectClause(alt, t)
			alt = alt.ChildByFieldName("alternative")
		case "preproc_else":
			t := !activeSeen
			c.unit.Directives = append(c.unit.Directives, tu.Directive{
				Kind:  tu.DirectiveElse,
				Range: c.lineRangeAt(alt.StartByte()),
				Taken: t,
			})
			if t {
				activeSeen = true
			}
			collectClause(alt, t)
			alt = nil
		default:
			alt = nil
		}
	}

	for i := int(n.ChildCount()) - 1; i >= 0; i-- {
		if tok := n.Child(i); tok.Type() == "#endif" {
			c.unit.Directives = append(c.unit.Directives, tu.Directive{
				Kind:  tu.DirectiveEndif,
				Range: c.lineRangeAt(tok.StartByte()),
			})
			break
		}
	}
}

// scanCondition records every identifier in a conditional expression as a
// candidate macro usage.
func (c *collector) scanCondition(n *sitter.Node) {
	if n == nil {
		return
	}
	if n.Type() == "identifier" {
		c.pending = append(c.pending, macroUse{name: nodeText(n, c.src), off: n.StartByte()})
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.scanCondition(n.Child(i))
	}
}

// scanWords records identifier-shaped words in raw preprocessor text.
func (c *collector) scanWords(text string, base uint32) {
	i := 0
	for i < len(text) {
		ch := text[i]
		if isIdentStart(ch) {
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			c.pending = append(c.pending, macroUse{name: text[i:j], off: base + uint32(i)})
			i = j
			continue
		}
		i++
	}
}

// checkBalance verifies the collected directive stream opens and closes
// sections consistently.
func (c *collector) checkBalance() error {
	depth := 0
	for _, d := range c.unit.Directives {
		switch {
		case d.Kind.Opens():
			depth++
		case d.Kind == tu.DirectiveEndif:
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced preprocessor conditionals: stray #endif")
			}
		default:
			if depth == 0 {
				return fmt.Errorf("unbalanced preprocessor conditionals: %s outside a section", d.Kind)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced preprocessor conditionals: %d unterminated section(s)", depth)
	}
	return nil
}

func (c *collector) nodeRange(n *sitter.Node) tu.Range {
	return tu.Range{Start: n.StartByte(), End: n.EndByte()}
}

// extendSemi pushes end past an immediately following semicolon, skipping
// horizontal whitespace.
func (c *collector) extendSemi(end uint32) uint32 {
	i := end
	for int(i) < len(c.src) && (c.src[i] == ' ' || c.src[i] == '\t') {
		i++
	}
	if int(i) < len(c.src) && c.src[i] == ';' {
		return i + 1
	}
	return end
}

// extendLine pushes end through the trailing newline of the current line.
func (c *collector) extendLine(end uint32) uint32 {
	i := end
	for int(i) < len(c.src) && c.src[i] != '\n' {
		i++
	}
	if int(i) < len(c.src) {
		i++
	}
	return i
}

// lineRangeAt returns the full source line containing off, newline included.
func (c *collector) lineRangeAt(off uint32) tu.Range {
	start := off
	for start > 0 && c.src[start-1] != '\n' {
		start--
	}
	end := off
	for int(end) < len(c.src) && c.src[end] != '\n' {
		// Directive lines may continue with a backslash.
		if c.src[end] == '\\' && int(end)+1 < len(c.src) && c.src[end+1] == '\n' {
			end += 2
			continue
		}
		end++
	}
	if int(end) < len(c.src) {
		end++
	}
	return tu.Range{Start: start, End: end}
}

func joinScope(scope, name string) string {
	name = strings.TrimPrefix(name, "::")
	if scope == "" || strings.HasPrefix(name, scope+"::") {
		return name
	}
	return scope + "::" + name
}

// normalizeWS collapses whitespace runs so signatures compare structurally.
func normalizeWS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			space = true
			continue
		}
		if space {
			if b.Len() > 0 && isIdentPart(ch) && isIdentPart(b.String()[b.Len()-1]) {
				b.WriteByte(' ')
			}
			space = false
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

// findFunctionDeclarator unwraps pointer and reference declarators looking
// for a function declarator. A function declarator whose inner declarator is
// parenthesized declares a function pointer variable, not a function.
func findFunctionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			inner := n.ChildByFieldName("declarator")
			if inner != nil && inner.Type() == "parenthesized_declarator" {
				return nil
			}
			return n
		case "pointer_declarator", "reference_declarator", "init_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

// declaratorName digs the declared name out of a declarator chain.
func declaratorName(n *sitter.Node, src []byte) string {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier",
			"qualified_identifier", "operator_name", "destructor_name":
			return nodeText(n, src)
		case "template_function", "template_type":
			base := nodeText(n.ChildByFieldName("name"), src)
			args := normalizeWS(nodeText(n.ChildByFieldName("arguments"), src))
			return base + args
		case "pointer_declarator", "reference_declarator", "init_declarator",
			"function_declarator", "array_declarator":
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			var next *sitter.Node
			for i := 0; i < int(n.NamedChildCount()); i++ {
				next = n.NamedChild(i)
				break
			}
			n = next
		case "structured_binding_declarator":
			return ""
		default:
			return ""
		}
	}
	return ""
}

// countParams computes the arity range of a parameter list.
func countParams(params *sitter.Node, src []byte) (min, max int) {
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "parameter_declaration":
			if nodeText(p, src) == "void" {
				continue
			}
			min++
			max++
		case "optional_parameter_declaration":
			max++
		case "variadic_parameter_declaration":
			max = -1
		case "comment":
		default:
			if strings.Contains(nodeText(p, src), "...") {
				max = -1
			}
		}
	}
	if max >= 0 && max < min {
		max = min
	}
	return min, max
}

// fieldChildren returns every child of n attached under the given field
// name, in source order.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}
