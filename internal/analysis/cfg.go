// Control flow graph construction.
// The CFG refines the linear position model: a conditional splits control
// into two arms that rejoin, and a loop adds a back edge, so a variable's
// real death point can differ per path. Nodes live in one arena slice and
// are addressed by index; edges are index lists, so a graph is trivially
// copyable and bounds-checked.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

type CFGNodeKind int

const (
	CFGEntry CFGNodeKind = iota
	CFGExit
	CFGBasic
	CFGBranch
	CFGJoin
	CFGLoopHead
	CFGLoopExit
)

func (k CFGNodeKind) String() string {
	switch k {
	case CFGEntry:
		return "Entry"
	case CFGExit:
		return "Exit"
	case CFGBasic:
		return "Basic"
	case CFGBranch:
		return "Branch"
	case CFGJoin:
		return "Join"
	case CFGLoopHead:
		return "LoopHead"
	case CFGLoopExit:
		return "LoopExit"
	default:
		return fmt.Sprintf("CFGNodeKind(%d)", int(k))
	}
}

// CFGNode is one node in the arena. Uses and Defs hold variable names in
// first-occurrence order; LiveIn and LiveOut are filled by ComputeLiveness.
type CFGNode struct {
	ID    int
	Kind  CFGNodeKind
	Uses  []string
	Defs  []string
	Succs []int
	Preds []int

	LiveIn  map[string]bool
	LiveOut map[string]bool
}

// CFG is a node arena with designated entry and exit indices.
type CFG struct {
	Nodes []*CFGNode
	Entry int
	Exit  int
}

// Node returns the node at index id, nil when out of range.
func (g *CFG) Node(id int) *CFGNode {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

func (g *CFG) String() string {
	var sb strings.Builder
	sb.WriteString("=== CFG ===\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(&sb, "#%d %s succs=%v", n.ID, n.Kind, n.Succs)
		if len(n.Uses) > 0 {
			fmt.Fprintf(&sb, " uses=%v", n.Uses)
		}
		if len(n.Defs) > 0 {
			fmt.Fprintf(&sb, " defs=%v", n.Defs)
		}
		if n.LiveIn != nil {
			fmt.Fprintf(&sb, " in=%v out=%v", sortedSet(n.LiveIn), sortedSet(n.LiveOut))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func sortedSet(s map[string]bool) []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ====== Builder ======

type cfgBuilder struct {
	g   *CFG
	cur int // node currently collecting straight-line uses/defs
}

func (b *cfgBuilder) newNode(kind CFGNodeKind) int {
	n := &CFGNode{ID: len(b.g.Nodes), Kind: kind}
	b.g.Nodes = append(b.g.Nodes, n)
	return n.ID
}

func (b *cfgBuilder) edge(from, to int) {
	b.g.Nodes[from].Succs = append(b.g.Nodes[from].Succs, to)
	b.g.Nodes[to].Preds = append(b.g.Nodes[to].Preds, from)
}

// block returns the current basic node, opening one after a control node.
func (b *cfgBuilder) block() *CFGNode {
	if n := b.g.Nodes[b.cur]; n.Kind == CFGBasic {
		return n
	}
	id := b.newNode(CFGBasic)
	b.edge(b.cur, id)
	b.cur = id
	return b.g.Nodes[id]
}

func appendName(list []string, name string) []string {
	for _, have := range list {
		if have == name {
			return list
		}
	}
	return append(list, name)
}

// BuildCFG builds the control flow graph for one expression sequence.
func BuildCFG(exprs []ast.Expr) *CFG {
	b := &cfgBuilder{g: &CFG{}}
	b.g.Entry = b.newNode(CFGEntry)
	b.cur = b.g.Entry

	for _, expr := range exprs {
		b.build(expr)
	}

	b.g.Exit = b.newNode(CFGExit)
	b.edge(b.cur, b.g.Exit)
	return b.g
}

func (b *cfgBuilder) build(expr ast.Expr) {
	list, ok := expr.(*ast.List)
	if !ok {
		b.flatten(expr)
		return
	}
	args := ast.Args(list)

	switch ast.HeadSymbol(list) {
	case ast.FormQuote:
		return
	case ast.FormIf:
		b.buildIf(args)
	case ast.FormForEach:
		b.buildForEach(args)
	case ast.FormDefine:
		b.buildDefine(args)
	case ast.FormLet, ast.FormLetStar, ast.FormLetrec:
		b.buildLet(args)
	case ast.FormSet:
		if len(args) >= 2 {
			b.build(args[1])
			if name := ast.SymbolName(args[0]); name != "" {
				n := b.block()
				n.Defs = appendName(n.Defs, name)
			}
		}
	case ast.FormDo, ast.FormBegin:
		for _, expr := range args {
			b.build(expr)
		}
	default:
		b.flatten(expr)
	}
}

// buildIf lowers a conditional to Branch -> (then | else) -> Join. A branch
// node always has exactly two successors; a missing else arm becomes an
// empty basic node.
func (b *cfgBuilder) buildIf(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	b.flatten(args[0])

	branch := b.newNode(CFGBranch)
	b.edge(b.cur, branch)

	thenEntry := b.newNode(CFGBasic)
	b.edge(branch, thenEntry)
	b.cur = thenEntry
	b.build(args[1])
	thenExit := b.cur

	elseEntry := b.newNode(CFGBasic)
	b.edge(branch, elseEntry)
	b.cur = elseEntry
	if len(args) >= 3 {
		b.build(args[2])
	}
	elseExit := b.cur

	join := b.newNode(CFGJoin)
	b.edge(thenExit, join)
	b.edge(elseExit, join)
	b.cur = join
}

// buildForEach lowers a loop to LoopHead -> body -> LoopHead (back edge),
// with LoopHead -> LoopExit as the loop's second successor.
func (b *cfgBuilder) buildForEach(args []ast.Expr) {
	if len(args) < 3 {
		return
	}
	loopVar := ast.SymbolName(args[0])
	if loopVar == "" {
		return
	}
	b.flatten(args[1])

	head := b.newNode(CFGLoopHead)
	b.edge(b.cur, head)
	hn := b.g.Nodes[head]
	hn.Defs = appendName(hn.Defs, loopVar)
	if coll := ast.SymbolName(args[1]); coll != "" {
		hn.Uses = appendName(hn.Uses, coll)
	}

	bodyEntry := b.newNode(CFGBasic)
	b.edge(head, bodyEntry)
	b.cur = bodyEntry
	for _, expr := range args[2:] {
		b.build(expr)
	}
	b.edge(b.cur, head)

	exit := b.newNode(CFGLoopExit)
	b.edge(head, exit)
	b.cur = exit
}

func (b *cfgBuilder) buildDefine(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	if _, ok := args[0].(*ast.List); ok {
		// Function bodies get their own graph via BuildCFG; the define
		// itself is straight-line.
		return
	}
	name := ast.SymbolName(args[0])
	if name == "" {
		return
	}
	b.build(args[1])
	n := b.block()
	n.Defs = appendName(n.Defs, name)
}

func (b *cfgBuilder) buildLet(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	bindings, ok := args[0].(*ast.List)
	if !ok || len(bindings.Items) == 0 {
		return
	}
	for _, bind := range bindings.Items {
		pair, ok := bind.(*ast.List)
		if !ok || len(pair.Items) < 2 {
			continue
		}
		name := ast.SymbolName(pair.Items[0])
		if name == "" {
			continue
		}
		b.build(pair.Items[1])
		n := b.block()
		n.Defs = appendName(n.Defs, name)
	}
	for _, expr := range args[1:] {
		b.build(expr)
	}
}

// flatten records every symbol of a straight-line expression as a use in the
// current basic node.
func (b *cfgBuilder) flatten(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.Symbol:
		n := b.block()
		n.Uses = appendName(n.Uses, e.Name)
	case *ast.List:
		if ast.HeadSymbol(e) == ast.FormQuote {
			return
		}
		for i, item := range e.Items {
			if i == 0 && ast.SymbolName(item) != "" {
				continue // callee names are not tracked values
			}
			b.flatten(item)
		}
	case *ast.ArrayLit:
		for _, item := range e.Items {
			b.flatten(item)
		}
	case *ast.MapLit:
		for _, item := range e.Items {
			b.flatten(item)
		}
	}
}
