package frontend

import (
	"testing"

	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string, opts ...Option) *tu.Unit {
	t.Helper()
	f := New(opts...)
	defer f.Close()
	unit, err := f.Parse([]byte(src), "test.cpp")
	require.NoError(t, err)
	return unit
}

func symbolID(t *testing.T, unit *tu.Unit, name string) tu.DeclID {
	t.Helper()
	for id, sym := range unit.Symbols {
		if sym.Name == name {
			return tu.DeclID(id)
		}
	}
	t.Fatalf("symbol %q not found", name)
	return tu.NoDecl
}

func symbolNames(unit *tu.Unit) map[string]bool {
	names := make(map[string]bool, len(unit.Symbols))
	for _, sym := range unit.Symbols {
		names[sym.Name] = true
	}
	return names
}

func findDecl(unit *tu.Unit, name string) *tu.Decl {
	var found *tu.Decl
	unit.Walk(func(d *tu.Decl) bool {
		if found == nil && d.Name == name {
			found = d
		}
		return found == nil
	})
	return found
}

func refersTo(d *tu.Decl, id tu.DeclID) bool {
	for _, ref := range d.Refs {
		if ref.Target == id {
			return true
		}
	}
	return false
}

func TestCollectFunctions(t *testing.T) {
	unit := parse(t, `
int helper() { return 1; }
int other() { return 2; }
int main() { return helper(); }
`)

	names := symbolNames(unit)
	assert.True(t, names["helper"])
	assert.True(t, names["other"])
	assert.True(t, names["main"])

	mainDecl := findDecl(unit, "main")
	require.NotNil(t, mainDecl)
	assert.True(t, mainDecl.IsDefinition)
	assert.True(t, refersTo(mainDecl, symbolID(t, unit, "helper")))
	assert.False(t, refersTo(mainDecl, symbolID(t, unit, "other")))
}

func TestPrototypeSharesIdentityWithDefinition(t *testing.T) {
	unit := parse(t, `
int compute(int v);
int compute(int v) { return v * 2; }
`)

	var occs []*tu.Decl
	unit.Walk(func(d *tu.Decl) bool {
		if d.Name == "compute" {
			occs = append(occs, d)
		}
		return true
	})
	require.Len(t, occs, 2)
	assert.Equal(t, occs[0].ID, occs[1].ID)
	assert.False(t, occs[0].IsDefinition)
	assert.True(t, occs[1].IsDefinition)
}

func TestOverloadsGetDistinctIdentities(t *testing.T) {
	unit := parse(t, `
int pick(int a) { return a; }
int pick(int a, int b) { return a + b; }
`)

	ids := make(map[tu.DeclID]bool)
	unit.Walk(func(d *tu.Decl) bool {
		if d.Name == "pick" {
			ids[d.ID] = true
		}
		return true
	})
	assert.Len(t, ids, 2)
}

func TestOverloadDefinitionsDoNotCrossReference(t *testing.T) {
	unit := parse(t, `
int pick(int a) { return a; }
int pick(int a, int b) { return a + b; }
`)

	// The declared name is not a reference; neither definition depends on
	// the other overload.
	unit.Walk(func(d *tu.Decl) bool {
		if d.Name == "pick" {
			assert.Empty(t, d.Refs)
		}
		return true
	})
}

func TestClassMembers(t *testing.T) {
	unit := parse(t, `
struct Point {
  int x;
  int y;
  int sum() const { return x + y; }
};

int main() {
  Point p;
  return p.sum();
}
`)

	names := symbolNames(unit)
	assert.True(t, names["Point"])
	assert.True(t, names["Point::x"])
	assert.True(t, names["Point::sum"])

	point := findDecl(unit, "Point")
	require.NotNil(t, point)
	assert.True(t, point.IsDefinition)
	assert.NotZero(t, point.HeaderEnd)
	assert.Len(t, point.Children, 3)

	mainDecl := findDecl(unit, "main")
	require.NotNil(t, mainDecl)
	assert.True(t, refersTo(mainDecl, symbolID(t, unit, "Point")))
	assert.True(t, refersTo(mainDecl, symbolID(t, unit, "Point::sum")))
}

func TestClassDefinitionRefsStructors(t *testing.T) {
	unit := parse(t, `
struct Box {
  Box() {}
  ~Box() {}
  bool operator==(const Box&) const { return true; }
  void normal() {}
};
`)

	box := findDecl(unit, "Box")
	require.NotNil(t, box)
	assert.True(t, refersTo(box, symbolID(t, unit, "Box::Box")))
	assert.True(t, refersTo(box, symbolID(t, unit, "Box::~Box")))
	assert.True(t, refersTo(box, symbolID(t, unit, "Box::operator==")))
	assert.False(t, refersTo(box, symbolID(t, unit, "Box::normal")))
}

func TestOutOfClassMethodDefinition(t *testing.T) {
	unit := parse(t, `
struct Calc {
  int run();
  int base;
};

int Calc::run() { return base; }
`)

	var occs []*tu.Decl
	unit.Walk(func(d *tu.Decl) bool {
		if d.Name == "Calc::run" {
			occs = append(occs, d)
		}
		return true
	})
	require.Len(t, occs, 2)
	assert.Equal(t, occs[0].ID, occs[1].ID)

	def := occs[1]
	assert.True(t, def.IsDefinition)
	// The body resolves unqualified member names against the class scope.
	assert.True(t, refersTo(def, symbolID(t, unit, "Calc::base")))
}

func TestNamespaceScoping(t *testing.T) {
	unit := parse(t, `
namespace util {
int helper() { return 1; }
}

int main() { return util::helper(); }
`)

	names := symbolNames(unit)
	assert.True(t, names["util"])
	assert.True(t, names["util::helper"])

	mainDecl := findDecl(unit, "main")
	require.NotNil(t, mainDecl)
	assert.True(t, refersTo(mainDecl, symbolID(t, unit, "util::helper")))

	helper := findDecl(unit, "util::helper")
	require.NotNil(t, helper)
	require.NotNil(t, helper.Parent)
	assert.Equal(t, tu.KindNamespace, helper.Parent.Kind)
}

func TestGroupDeclaration(t *testing.T) {
	unit := parse(t, "int a = 1, b = 2;\n")

	require.Len(t, unit.Decls, 1)
	g := unit.Decls[0]
	assert.True(t, g.Group)
	assert.Equal(t, tu.NoDecl, g.ID)
	require.Len(t, g.Children, 2)
	assert.Equal(t, "a", g.Children[0].Name)
	assert.Equal(t, "b", g.Children[1].Name)
}

func TestEnumerators(t *testing.T) {
	unit := parse(t, `
enum Color { Red, Green, Blue };

int main() { return Red; }
`)

	names := symbolNames(unit)
	assert.True(t, names["Color"])
	assert.True(t, names["Red"])

	mainDecl := findDecl(unit, "main")
	require.NotNil(t, mainDecl)
	assert.True(t, refersTo(mainDecl, symbolID(t, unit, "Red")))

	// Enumerator extents take a separating comma with them.
	red := findDecl(unit, "Red")
	require.NotNil(t, red)
	assert.Equal(t, "Red,", unit.Text(red.Range))
}

func TestScopedEnum(t *testing.T) {
	unit := parse(t, `
enum class Mode { Fast, Safe };

int main() { return static_cast<int>(Mode::Fast); }
`)

	names := symbolNames(unit)
	assert.True(t, names["Mode"])
	assert.True(t, names["Mode::Fast"])

	mainDecl := findDecl(unit, "main")
	require.NotNil(t, mainDecl)
	assert.True(t, refersTo(mainDecl, symbolID(t, unit, "Mode::Fast")))
}

func TestForwardClassDeclaration(t *testing.T) {
	unit := parse(t, `
class A;

class A { public: int v; };
`)

	var occs []*tu.Decl
	unit.Walk(func(d *tu.Decl) bool {
		if d.Name == "A" {
			occs = append(occs, d)
		}
		return true
	})
	require.Len(t, occs, 2)
	assert.Equal(t, occs[0].ID, occs[1].ID)
	assert.False(t, occs[0].IsDefinition)
	assert.True(t, occs[1].IsDefinition)
	// The forward declaration's extent includes the semicolon.
	assert.Equal(t, "class A;", unit.Text(occs[0].Range))
}

func TestDirectiveEvents(t *testing.T) {
	unit := parse(t, `#if 1
int a;
#elif 0
int b;
#else
int c;
#endif
`)

	require.Len(t, unit.Directives, 4)
	assert.Equal(t, tu.DirectiveIf, unit.Directives[0].Kind)
	assert.True(t, unit.Directives[0].Taken)
	assert.Equal(t, tu.DirectiveElif, unit.Directives[1].Kind)
	assert.False(t, unit.Directives[1].Taken)
	assert.Equal(t, tu.DirectiveElse, unit.Directives[2].Kind)
	assert.False(t, unit.Directives[2].Taken)
	assert.Equal(t, tu.DirectiveEndif, unit.Directives[3].Kind)

	names := symbolNames(unit)
	assert.True(t, names["a"])
	assert.False(t, names["b"])
	assert.False(t, names["c"])
}

func TestIfdefHonorsDefines(t *testing.T) {
	src := `#ifdef DEBUG
int dbg;
#endif
int main() { return 0; }
`

	unit := parse(t, src)
	assert.False(t, unit.Directives[0].Taken)
	assert.False(t, symbolNames(unit)["dbg"])

	unit = parse(t, src, WithDefines(map[string]string{"DEBUG": ""}))
	assert.True(t, unit.Directives[0].Taken)
	assert.True(t, symbolNames(unit)["dbg"])
}

func TestDefineDrivesConditionals(t *testing.T) {
	unit := parse(t, `#define LEVEL 2
#if LEVEL >= 2
int high;
#else
int low;
#endif
`)

	names := symbolNames(unit)
	assert.True(t, names["high"])
	assert.False(t, names["low"])
}

func TestUndefDropsDefinition(t *testing.T) {
	unit := parse(t, `#define FLAG 1
#undef FLAG
#ifdef FLAG
int present;
#endif
`)

	assert.False(t, symbolNames(unit)["present"])
}

func TestMacroUsageMatching(t *testing.T) {
	unit := parse(t, `#define LIMIT 100
#define UNUSED 1

int main() { return LIMIT; }
`)

	require.Len(t, unit.Macros, 2)
	limit := unit.Macros[0]
	assert.Equal(t, "LIMIT", limit.Name)
	require.Len(t, limit.Usages, 1)
	assert.Equal(t, "UNUSED", unit.Macros[1].Name)
	assert.Empty(t, unit.Macros[1].Usages)
}

func TestMacroUsageInsideOtherDefine(t *testing.T) {
	unit := parse(t, `#define BASE 10
#define DERIVED (BASE * 2)

int main() { return DERIVED; }
`)

	require.Len(t, unit.Macros, 2)
	base := unit.Macros[0]
	require.Len(t, base.Usages, 1)
	// The usage sits on the DERIVED definition line, not in main.
	assert.True(t, unit.Macros[1].Range.Contains(base.Usages[0]))
}

func TestMacroRangeEndsAtItsOwnLine(t *testing.T) {
	src := `#define UNUSED 1
#define LIVE 2

int main() { return LIVE; }
`
	unit := parse(t, src)

	require.Len(t, unit.Macros, 2)
	unused, live := unit.Macros[0], unit.Macros[1]
	assert.Equal(t, "#define UNUSED 1\n", src[unused.Range.Start:unused.Range.End])
	assert.False(t, unused.Range.Contains(live.Range.Start))
	require.Len(t, live.Usages, 1)
}

func TestUsingDeclarationAdoptsTarget(t *testing.T) {
	unit := parse(t, `
namespace util {
int helper() { return 1; }
}

using util::helper;
`)

	var using *tu.Decl
	unit.Walk(func(d *tu.Decl) bool {
		if d.Kind == tu.KindUsing {
			using = d
		}
		return true
	})
	require.NotNil(t, using)
	assert.Equal(t, symbolID(t, unit, "util::helper"), using.ID)
}

func TestUnresolvableUsingStaysAnonymous(t *testing.T) {
	unit := parse(t, "using std::vector;\n")

	var using *tu.Decl
	unit.Walk(func(d *tu.Decl) bool {
		if d.Kind == tu.KindUsing {
			using = d
		}
		return true
	})
	require.NotNil(t, using)
	assert.Equal(t, tu.NoDecl, using.ID)
}

func TestSyntaxErrorIsFatal(t *testing.T) {
	f := New()
	defer f.Close()
	_, err := f.Parse([]byte("int main( {\n"), "bad.cpp")
	assert.Error(t, err)
}

func TestSyntaxErrorInsideTemplateIsTolerated(t *testing.T) {
	f := New()
	defer f.Close()
	_, err := f.Parse([]byte(`
template <typename T>
void generic() { T::unparseable<>::: ; }

int main() { return 0; }
`), "tpl.cpp")
	assert.NoError(t, err)
}

func TestTypedefIdentity(t *testing.T) {
	unit := parse(t, `
typedef unsigned long size_type;
using index_type = int;

size_type n;
`)

	names := symbolNames(unit)
	assert.True(t, names["size_type"])
	assert.True(t, names["index_type"])

	n := findDecl(unit, "n")
	require.NotNil(t, n)
	assert.True(t, refersTo(n, symbolID(t, unit, "size_type")))
}
