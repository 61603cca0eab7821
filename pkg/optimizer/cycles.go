package optimizer

import (
	"sort"

	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Cycles reports groups of mutually recursive declarations: the strongly
// connected components of the dependency graph with more than one member.
// Useful as a diagnostic for why a seemingly unused declaration survives.
func (g *Graph) Cycles() [][]tu.DeclID {
	dg := simple.NewDirectedGraph()
	for id := range g.unit.Symbols {
		dg.AddNode(simple.Node(id))
	}
	g.Edges(func(user, used tu.DeclID) {
		if int(used) >= len(g.unit.Symbols) {
			return
		}
		dg.SetEdge(dg.NewEdge(simple.Node(user), simple.Node(used)))
	})

	var out [][]tu.DeclID
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		group := make([]tu.DeclID, 0, len(scc))
		for _, n := range scc {
			group = append(group, tu.DeclID(n.ID()))
		}
		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
