package optimizer

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
)

// Graph is the dependency graph over canonical identities: a user -> used
// adjacency relation plus the root set. It is built once per unit and
// read-only afterward.
type Graph struct {
	unit  *tu.Unit
	adj   map[tu.DeclID]*roaring.Bitmap
	roots *roaring.Bitmap
}

// buildGraph walks the unit once and materializes edges from every
// occurrence's reference list. Members point at their enclosing container
// so a reachable member keeps its class and namespace shells alive.
// References held by occurrences without an identity are attributed to the
// nearest identified ancestor, or promoted to roots at the top level: their
// text always survives, so whatever they mention must too.
func buildGraph(unit *tu.Unit, entries, keep map[string]bool) *Graph {
	g := &Graph{
		unit:  unit,
		adj:   make(map[tu.DeclID]*roaring.Bitmap),
		roots: roaring.New(),
	}

	for id, sym := range unit.Symbols {
		if matchSymbol(sym.Name, entries) || matchSymbol(sym.Name, keep) {
			g.roots.Add(uint32(id))
		}
	}

	unit.Walk(func(d *tu.Decl) bool {
		owner := ownerID(d)
		for _, ref := range d.Refs {
			if ref.Target == tu.NoDecl {
				continue
			}
			if owner == tu.NoDecl {
				g.roots.Add(uint32(ref.Target))
				continue
			}
			g.addEdge(owner, ref.Target)
		}
		if d.ID != tu.NoDecl && d.Parent != nil {
			if p := ownerID(d.Parent); p != tu.NoDecl {
				g.addEdge(d.ID, p)
			}
		}
		return true
	})
	return g
}

func ownerID(d *tu.Decl) tu.DeclID {
	for d != nil {
		if d.ID != tu.NoDecl && !d.Group {
			return d.ID
		}
		d = d.Parent
	}
	return tu.NoDecl
}

func matchSymbol(qname string, names map[string]bool) bool {
	if len(names) == 0 {
		return false
	}
	if names[qname] {
		return true
	}
	if i := lastSep(qname); i >= 0 {
		return names[qname[i+2:]]
	}
	return false
}

func lastSep(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] == ':' && s[i+1] == ':' {
			return i
		}
	}
	return -1
}

func (g *Graph) addEdge(user, used tu.DeclID) {
	if user == used {
		return
	}
	b, ok := g.adj[user]
	if !ok {
		b = roaring.New()
		g.adj[user] = b
	}
	b.Add(uint32(used))
}

// Roots returns the root identities in ascending order.
func (g *Graph) Roots() []tu.DeclID {
	out := make([]tu.DeclID, 0, g.roots.GetCardinality())
	it := g.roots.Iterator()
	for it.HasNext() {
		out = append(out, tu.DeclID(it.Next()))
	}
	return out
}

// Edges calls fn for every edge in a deterministic order.
func (g *Graph) Edges(fn func(user, used tu.DeclID)) {
	users := make([]tu.DeclID, 0, len(g.adj))
	for id := range g.adj {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	for _, user := range users {
		it := g.adj[user].Iterator()
		for it.HasNext() {
			fn(user, tu.DeclID(it.Next()))
		}
	}
}

// Reachable computes the closure over the edge relation starting at the
// root set. Plain worklist traversal; the visited set doubles as the
// result.
func (g *Graph) Reachable() *roaring.Bitmap {
	visited := g.roots.Clone()
	queue := make([]uint32, 0, visited.GetCardinality())
	it := g.roots.Iterator()
	for it.HasNext() {
		queue = append(queue, it.Next())
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		next, ok := g.adj[tu.DeclID(id)]
		if !ok {
			continue
		}
		nit := next.Iterator()
		for nit.HasNext() {
			n := nit.Next()
			if !visited.Contains(n) {
				visited.Add(n)
				queue = append(queue, n)
			}
		}
	}
	return visited
}
