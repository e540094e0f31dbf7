// Liveness on the CFG.
// Backward dataflow to a fixpoint: a variable is live-out at a node when any
// successor needs it, live-in when the node uses it or passes a live-out
// value through untouched. A variable's death node is where it is live-in
// but no longer live-out, which places frees per path instead of at the
// linear last use.

package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// ComputeLiveness fills LiveIn and LiveOut on every node of the graph.
// Iterates to a fixpoint; sets only grow, so termination is bounded by
// variables times nodes.
func ComputeLiveness(g *CFG) {
	for _, n := range g.Nodes {
		n.LiveIn = make(map[string]bool)
		n.LiveOut = make(map[string]bool)
	}

	for changed := true; changed; {
		changed = false
		// Reverse arena order converges fast on mostly-forward graphs.
		for i := len(g.Nodes) - 1; i >= 0; i-- {
			n := g.Nodes[i]

			for _, s := range n.Succs {
				for v := range g.Nodes[s].LiveIn {
					if !n.LiveOut[v] {
						n.LiveOut[v] = true
						changed = true
					}
				}
			}

			defs := make(map[string]bool, len(n.Defs))
			for _, v := range n.Defs {
				defs[v] = true
			}
			for _, v := range n.Uses {
				if !n.LiveIn[v] {
					n.LiveIn[v] = true
					changed = true
				}
			}
			for v := range n.LiveOut {
				if !defs[v] && !n.LiveIn[v] {
					n.LiveIn[v] = true
					changed = true
				}
			}
		}
	}
}

// CFGFreePoint places one variable's free at one CFG node.
type CFGFreePoint struct {
	Var  string
	Node int
	Free FreeStrategy
}

// ComputeCFGFreePoints runs liveness over the graph and returns a free point
// for every must-free variable at each node where it dies: live into the
// node but not out of it, or defined there and never live afterward. When a
// variable dies on both arms of a conditional, each arm gets its own free
// point; the points are used instead of the linear table, never alongside
// it.
func (ctx *AnalysisContext) ComputeCFGFreePoints(g *CFG) []CFGFreePoint {
	ComputeLiveness(g)

	var points []CFGFreePoint
	for _, n := range g.Nodes {
		dead := make(map[string]bool)
		for v := range n.LiveIn {
			if !n.LiveOut[v] {
				dead[v] = true
			}
		}
		for _, v := range n.Defs {
			if !n.LiveOut[v] && !n.LiveIn[v] {
				dead[v] = true
			}
		}
		for _, v := range sortedSet(dead) {
			rec := ctx.ownership[v]
			if rec == nil || !rec.MustFree || rec.Free == FreeNone {
				continue
			}
			points = append(points, CFGFreePoint{Var: v, Node: n.ID, Free: rec.Free})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Node != points[j].Node {
			return points[i].Node < points[j].Node
		}
		return points[i].Var < points[j].Var
	})
	ctx.cfgFreePoints = points
	return points
}

// FreePointsCFG returns the table from the last ComputeCFGFreePoints run.
// When non-empty it supersedes FreePointsLinear; the two are never combined.
func (ctx *AnalysisContext) FreePointsCFG() []CFGFreePoint {
	return ctx.cfgFreePoints
}

// DumpFreePoints renders a CFG free point table.
func DumpFreePoints(points []CFGFreePoint) string {
	var sb strings.Builder
	sb.WriteString("=== CFG Free Points ===\n")
	for _, p := range points {
		fmt.Fprintf(&sb, "free(%s) @ node %d via %s\n", p.Var, p.Node, p.Free)
	}
	return sb.String()
}
