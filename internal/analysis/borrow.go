// Borrow tracking.
// A borrow is a non-owning reference valid over a static position bracket.
// Loop borrows additionally need a tether: the collection being iterated
// must be pinned for the whole loop so no free point lands inside the
// bracket. The borrow pass replays the traversal with the same position
// numbering as the usage pass, so brackets and usage positions share one
// coordinate system.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

type BorrowKind int

const (
	BorrowNone BorrowKind = iota
	BorrowShared
	BorrowExclusive
	BorrowLoop
)

func (k BorrowKind) String() string {
	switch k {
	case BorrowNone:
		return "None"
	case BorrowShared:
		return "Shared"
	case BorrowExclusive:
		return "Exclusive"
	case BorrowLoop:
		return "Loop"
	default:
		return fmt.Sprintf("BorrowKind(%d)", int(k))
	}
}

// BorrowInfo is one borrow of Var held by Holder over [StartPos, EndPos].
// EndPos is -1 while the borrow is still open.
type BorrowInfo struct {
	Var         string
	Holder      string
	Kind        BorrowKind
	StartPos    int
	EndPos      int
	NeedsTether bool
}

// ====== Tracker ======

// BorrowTracker records every borrow opened during analysis, keyed by the
// borrowed variable.
type BorrowTracker struct {
	borrows map[string][]*BorrowInfo
}

func NewBorrowTracker() *BorrowTracker {
	return &BorrowTracker{borrows: make(map[string][]*BorrowInfo)}
}

// BorrowStart opens a borrow of varName held by holder at pos.
func (t *BorrowTracker) BorrowStart(varName, holder string, kind BorrowKind, pos int) *BorrowInfo {
	b := &BorrowInfo{
		Var:         varName,
		Holder:      holder,
		Kind:        kind,
		StartPos:    pos,
		EndPos:      -1,
		NeedsTether: kind == BorrowLoop,
	}
	t.borrows[varName] = append(t.borrows[varName], b)
	return b
}

// BorrowEnd closes the most recently opened still-open borrow of varName at
// pos.
func (t *BorrowTracker) BorrowEnd(varName string, pos int) {
	list := t.borrows[varName]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].EndPos < 0 {
			list[i].EndPos = pos
			return
		}
	}
}

// BorrowsOf returns every borrow of varName.
func (t *BorrowTracker) BorrowsOf(varName string) []*BorrowInfo {
	return t.borrows[varName]
}

// NeedsTether reports whether varName must be pinned at pos: some loop
// borrow's bracket strictly contains the position. The bracket endpoints
// themselves are the loop header and exit, where the collection is handled
// by the loop machinery rather than a tether.
func (t *BorrowTracker) NeedsTether(varName string, pos int) bool {
	for _, b := range t.borrows[varName] {
		if b.Kind != BorrowLoop {
			continue
		}
		if pos > b.StartPos && (b.EndPos < 0 || pos < b.EndPos) {
			return true
		}
	}
	return false
}

func (t *BorrowTracker) String() string {
	names := make([]string, 0, len(t.borrows))
	for name := range t.borrows {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("=== Borrows ===\n")
	for _, name := range names {
		for _, b := range t.borrows[name] {
			fmt.Fprintf(&sb, "%s: holder=%s kind=%s [%d,%d] tether=%v\n",
				b.Var, b.Holder, b.Kind, b.StartPos, b.EndPos, b.NeedsTether)
		}
	}
	return sb.String()
}

// ====== Borrow pass ======

// AnalyzeBorrows replays the traversal over one expression and opens loop
// borrows for the iteration idioms: (for-each v coll body...) borrows coll
// for the loop's extent, (map f coll) borrows coll for the call's extent.
// Must run after Analyze so the position counters line up.
func (ctx *AnalysisContext) AnalyzeBorrows(expr ast.Expr) {
	ctx.walkBorrows(expr)
}

// NeedsTether reports whether name must be pinned at pos.
func (ctx *AnalysisContext) NeedsTether(name string, pos int) bool {
	return ctx.borrows.NeedsTether(name, pos)
}

// walkBorrows mirrors Analyze's position numbering exactly: one increment
// per visited form, quoted subtrees skipped, children visited in the same
// order.
func (ctx *AnalysisContext) walkBorrows(expr ast.Expr) {
	if expr == nil {
		return
	}
	ctx.borrowPos++

	switch e := expr.(type) {
	case *ast.List:
		ctx.walkBorrowsList(e)
	case *ast.ArrayLit:
		for _, item := range e.Items {
			ctx.walkBorrows(item)
		}
	case *ast.MapLit:
		for _, item := range e.Items {
			ctx.walkBorrows(item)
		}
	}
}

func (ctx *AnalysisContext) walkBorrowsList(list *ast.List) {
	if len(list.Items) == 0 {
		return
	}
	args := ast.Args(list)

	switch ast.HeadSymbol(list) {
	case ast.FormQuote:
		return
	case ast.FormDefine:
		ctx.walkBorrowsDefine(args)
	case ast.FormLet, ast.FormLetStar, ast.FormLetrec:
		ctx.walkBorrowsLet(args)
	case ast.FormLambda, ast.FormFn:
		if len(args) < 2 {
			return
		}
		if _, ok := args[0].(*ast.List); !ok {
			return
		}
		for _, expr := range args[1:] {
			ctx.walkBorrows(expr)
		}
	case ast.FormIf:
		if len(args) < 2 {
			return
		}
		ctx.walkBorrows(args[0])
		ctx.walkBorrows(args[1])
		if len(args) >= 3 {
			ctx.walkBorrows(args[2])
		}
	case ast.FormSet:
		if len(args) >= 2 && ast.SymbolName(args[0]) != "" {
			ctx.walkBorrows(args[1])
		}
	case ast.FormDo, ast.FormBegin, ast.FormSpawn:
		for _, expr := range args {
			ctx.walkBorrows(expr)
		}
	case ast.FormForEach:
		ctx.walkBorrowsForEach(args)
	case ast.FormMap:
		ctx.walkBorrowsMapCall(list)
	default:
		for _, item := range list.Items {
			ctx.walkBorrows(item)
		}
	}
}

func (ctx *AnalysisContext) walkBorrowsDefine(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	if head, ok := args[0].(*ast.List); ok {
		if len(head.Items) == 0 || ast.SymbolName(head.Items[0]) == "" {
			return
		}
		for _, expr := range args[1:] {
			ctx.walkBorrows(expr)
		}
		return
	}
	if ast.SymbolName(args[0]) == "" {
		return
	}
	ctx.walkBorrows(args[1])
}

func (ctx *AnalysisContext) walkBorrowsLet(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	bindings, ok := args[0].(*ast.List)
	if !ok || len(bindings.Items) == 0 {
		return
	}
	for _, b := range bindings.Items {
		pair, ok := b.(*ast.List)
		if !ok || len(pair.Items) < 2 {
			continue
		}
		if ast.SymbolName(pair.Items[0]) == "" {
			continue
		}
		ctx.walkBorrows(pair.Items[1])
	}
	for _, expr := range args[1:] {
		ctx.walkBorrows(expr)
	}
}

func (ctx *AnalysisContext) walkBorrowsForEach(args []ast.Expr) {
	if len(args) < 3 {
		return
	}
	loopVar := ast.SymbolName(args[0])
	if loopVar == "" {
		return
	}
	start := ctx.borrowPos
	ctx.walkBorrows(args[1])

	coll := ast.SymbolName(args[1])
	borrowed := coll != ""
	if borrowed {
		ctx.borrows.BorrowStart(coll, loopVar, BorrowLoop, start)
	}
	for _, expr := range args[2:] {
		ctx.walkBorrows(expr)
	}
	if borrowed {
		ctx.borrows.BorrowEnd(coll, ctx.borrowPos+1)
	}
}

// walkBorrowsMapCall handles (map f coll ...): the call iterates coll, so
// coll is loop-borrowed for the call's extent.
func (ctx *AnalysisContext) walkBorrowsMapCall(list *ast.List) {
	args := ast.Args(list)
	if len(args) < 2 {
		for _, item := range list.Items {
			ctx.walkBorrows(item)
		}
		return
	}
	start := ctx.borrowPos

	ctx.walkBorrows(list.Items[0])
	ctx.walkBorrows(args[0])

	coll := ast.SymbolName(args[1])
	borrowed := coll != ""
	if borrowed {
		ctx.borrows.BorrowStart(coll, ast.FormMap, BorrowLoop, start)
	}
	for _, expr := range args[1:] {
		ctx.walkBorrows(expr)
	}
	if borrowed {
		ctx.borrows.BorrowEnd(coll, ctx.borrowPos+1)
	}
}
