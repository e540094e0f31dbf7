// Reference count elision.
// Values whose free strategy involves counting still avoid most count
// traffic: a borrow never changes ownership so its increment is dead weight,
// a stack or provably unique value never needs counting at all, and
// pool or arena members are released with their region so the decrement is
// dead weight. This pass classifies every tracked variable into one of the
// four elision classes.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

type RCElision int

const (
	RCRequired RCElision = iota
	RCElideInc
	RCElideDec
	RCElideBoth
)

func (e RCElision) String() string {
	switch e {
	case RCRequired:
		return "Required"
	case RCElideInc:
		return "ElideInc"
	case RCElideDec:
		return "ElideDec"
	case RCElideBoth:
		return "ElideBoth"
	default:
		return fmt.Sprintf("RCElision(%d)", int(e))
	}
}

// AnalyzeRCElision classifies every variable referenced in the expression.
// Must run after DeriveOwnership.
func (ctx *AnalysisContext) AnalyzeRCElision(expr ast.Expr) {
	ctx.walkSymbols(expr, func(name string) {
		if _, done := ctx.rcElision[name]; done {
			return
		}
		if ctx.ownership[name] == nil {
			return
		}
		e := ctx.classifyElision(name)
		ctx.rcElision[name] = e
		switch e {
		case RCElideInc:
			ctx.Stats.RCIncsElided++
		case RCElideDec:
			ctx.Stats.RCDecsElided++
		case RCElideBoth:
			ctx.Stats.RCIncsElided++
			ctx.Stats.RCDecsElided++
		}
	})
}

func (ctx *AnalysisContext) classifyElision(name string) RCElision {
	rec := ctx.ownership[name]
	switch {
	case rec.Kind == OwnerBorrowed:
		return RCElideInc
	case rec.Alloc == AllocPool || rec.Alloc == AllocArena:
		// Region members are released with their region; their own
		// decrement is dead weight even when the value is unique.
		return RCElideDec
	case rec.Alloc == AllocStack || ctx.IsUnique(name):
		return RCElideBoth
	default:
		return RCRequired
	}
}

// RCElisionOf returns the elision class for name. Variables the pass never
// classified keep full count traffic.
func (ctx *AnalysisContext) RCElisionOf(name string) RCElision {
	if e, ok := ctx.rcElision[name]; ok {
		return e
	}
	return RCRequired
}

// CanElideIncRef reports whether the increment on a new reference to name
// can be dropped.
func (ctx *AnalysisContext) CanElideIncRef(name string) bool {
	e := ctx.RCElisionOf(name)
	return e == RCElideInc || e == RCElideBoth
}

// CanElideDecRef reports whether the decrement at end of scope can be
// dropped.
func (ctx *AnalysisContext) CanElideDecRef(name string) bool {
	e := ctx.RCElisionOf(name)
	return e == RCElideDec || e == RCElideBoth
}

// walkSymbols visits every symbol in an expression tree, skipping quoted
// data.
func (ctx *AnalysisContext) walkSymbols(expr ast.Expr, visit func(string)) {
	switch e := expr.(type) {
	case *ast.Symbol:
		visit(e.Name)
	case *ast.List:
		if ast.HeadSymbol(e) == ast.FormQuote {
			return
		}
		for _, item := range e.Items {
			ctx.walkSymbols(item, visit)
		}
	case *ast.ArrayLit:
		for _, item := range e.Items {
			ctx.walkSymbols(item, visit)
		}
	case *ast.MapLit:
		for _, item := range e.Items {
			ctx.walkSymbols(item, visit)
		}
	}
}

// DumpRCElision renders the elision table sorted by name.
func (ctx *AnalysisContext) DumpRCElision() string {
	names := make([]string, 0, len(ctx.rcElision))
	for name := range ctx.rcElision {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("=== RC Elision ===\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\n", name, ctx.rcElision[name])
	}
	return sb.String()
}
