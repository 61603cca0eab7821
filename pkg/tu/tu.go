// Package tu defines the translation-unit model shared between the front end
// and the optimizer: declaration occurrences, canonical identities, directive
// events and macro records, all positioned by byte offsets into one immutable
// source buffer.
package tu

// DeclID is a canonical identity index. All lexical occurrences of one
// semantic declaration share the same DeclID.
type DeclID uint32

// NoDecl marks an occurrence whose canonical identity could not be resolved.
const NoDecl DeclID = ^DeclID(0)

// Kind classifies a declaration.
type Kind uint8

const (
	KindFunction Kind = iota
	KindMethod
	KindClass // class, struct or union
	KindEnum
	KindEnumerator
	KindVariable
	KindField
	KindTypedef // typedef and alias-declarations
	KindNamespace
	KindUsing // using-declarations and using-directives
	KindFriend
)

var kindNames = [...]string{
	KindFunction:   "function",
	KindMethod:     "method",
	KindClass:      "class",
	KindEnum:       "enum",
	KindEnumerator: "enumerator",
	KindVariable:   "variable",
	KindField:      "field",
	KindTypedef:    "typedef",
	KindNamespace:  "namespace",
	KindUsing:      "using",
	KindFriend:     "friend",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Range is a half-open byte range [Start, End) in the unit source.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Len returns the number of bytes covered.
func (r Range) Len() int { return int(r.End) - int(r.Start) }

// Empty reports whether the range covers nothing.
func (r Range) Empty() bool { return r.End <= r.Start }

// Contains reports whether the byte offset falls inside the range.
func (r Range) Contains(off uint32) bool { return off >= r.Start && off < r.End }

// Covers reports whether other lies entirely inside r.
func (r Range) Covers(other Range) bool { return other.Start >= r.Start && other.End <= r.End }

// Ref records one reference from a declaration occurrence to a canonical
// identity, with the byte offset of the referencing token.
type Ref struct {
	Target DeclID
	Offset uint32
}

// Decl is one lexical occurrence of a declaration. Multiple Decls may carry
// the same ID; exactly one of them is usually the definition.
type Decl struct {
	ID           DeclID
	Kind         Kind
	Name         string // qualified name, e.g. "ns::A::f"
	Range        Range  // full lexical extent, including a trailing ';' or ','
	IsDefinition bool

	// Group marks a declaration statement carrying several declarators
	// (e.g. "int a, b;"). A group has no identity of its own: it is deleted
	// when all of its children are deleted, and rewritten when only some
	// are.
	Group bool

	// HeaderEnd and TrailerStart delimit the braced body of container
	// declarations (namespaces, classes, enums): the header is
	// [Range.Start, HeaderEnd) and the closer is [TrailerStart, Range.End).
	// Zero for declarations without a braced child list.
	HeaderEnd    uint32
	TrailerStart uint32

	Parent   *Decl
	Children []*Decl
	Refs     []Ref
}

// Symbol is the canonical identity record for one semantic declaration.
type Symbol struct {
	Name string `json:"name"`
	Kind Kind   `json:"-"`
}

// DirectiveKind identifies a preprocessor conditional directive.
type DirectiveKind uint8

const (
	DirectiveIf DirectiveKind = iota
	DirectiveIfdef
	DirectiveIfndef
	DirectiveElif
	DirectiveElse
	DirectiveEndif
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveIf:
		return "#if"
	case DirectiveIfdef:
		return "#ifdef"
	case DirectiveIfndef:
		return "#ifndef"
	case DirectiveElif:
		return "#elif"
	case DirectiveElse:
		return "#else"
	default:
		return "#endif"
	}
}

// Opens reports whether the directive opens a new conditional section.
func (k DirectiveKind) Opens() bool {
	return k == DirectiveIf || k == DirectiveIfdef || k == DirectiveIfndef
}

// Clause reports whether the directive starts a clause body (any kind
// except #endif).
func (k DirectiveKind) Clause() bool { return k != DirectiveEndif }

// Directive is one event from the directive stream collected during parsing.
// Taken is meaningful for clause-starting kinds only.
type Directive struct {
	Kind  DirectiveKind
	Range Range // the directive line, including the trailing newline
	Taken bool
}

// MacroDef records an object-like or function-like macro definition located
// in the unit, together with every offset where the macro name is expanded.
type MacroDef struct {
	Name   string
	Range  Range // the whole #define line, including the trailing newline
	Usages []uint32
}

// Unit is a fully collected translation unit, ready for analysis. It is
// immutable once the front end hands it over.
type Unit struct {
	Path   string
	Source []byte

	Decls      []*Decl  // top-level occurrences in source order
	Symbols    []Symbol // indexed by DeclID
	Directives []Directive
	Macros     []MacroDef
}

// Text returns the source text covered by r.
func (u *Unit) Text(r Range) string {
	if r.Empty() || int(r.End) > len(u.Source) {
		return ""
	}
	return string(u.Source[r.Start:r.End])
}

// Symbol returns the canonical record for id, or a zero Symbol for NoDecl.
func (u *Unit) Symbol(id DeclID) Symbol {
	if id == NoDecl || int(id) >= len(u.Symbols) {
		return Symbol{}
	}
	return u.Symbols[id]
}

// Walk visits every declaration occurrence in preorder. Returning false from
// fn stops descent into that occurrence's children.
func (u *Unit) Walk(fn func(d *Decl) bool) {
	var walk func(d *Decl)
	walk = func(d *Decl) {
		if !fn(d) {
			return
		}
		for _, c := range d.Children {
			walk(c)
		}
	}
	for _, d := range u.Decls {
		walk(d)
	}
}
