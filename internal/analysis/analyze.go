// Usage and escape traversal.
// This file implements the first pass over the expression tree: it walks the
// program in evaluation order, assigns each visited form a monotonically
// increasing position, and populates the usage and escape tables every later
// pass depends on. Malformed forms are skipped with no effect; the affected
// names simply receive no record and downstream queries fall back to their
// conservative defaults.

package analysis

import (
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

// Analyze traverses one expression in evaluation order, recording variable
// definitions, uses, captures, and escapes. No result is returned; callers
// query the context by name afterward.
func (ctx *AnalysisContext) Analyze(expr ast.Expr) {
	if expr == nil {
		return
	}
	ctx.pos++

	switch e := expr.(type) {
	case *ast.Symbol:
		ctx.analyzeSymbolRef(e)
	case *ast.IntLit, *ast.FloatLit, *ast.CharLit:
		// Scalar literals bind nothing and escape nowhere.
	case *ast.List:
		ctx.analyzeList(e)
	case *ast.ArrayLit:
		ctx.analyzeAggregate(e.Items)
	case *ast.MapLit:
		ctx.analyzeAggregate(e.Items)
	}
}

// analyzeSymbolRef records a read of a local variable. References to names
// with no record (globals, primitives) are ignored.
func (ctx *AnalysisContext) analyzeSymbolRef(sym *ast.Symbol) {
	u := ctx.FindVar(sym.Name)
	if u == nil {
		return
	}
	ctx.RecordUse(sym.Name)
	if ctx.lambdaDepth > u.defLambdaDepth {
		u.Captured = true
		ctx.RaiseEscape(sym.Name, EscapeClosure)
	}
	if ctx.inReturnPos {
		u.Escaped = true
		ctx.RaiseEscape(sym.Name, EscapeReturn)
	}
}

// analyzeAggregate handles collection literal elements. Storing a value into
// an aggregate lets it outlive the storing expression, so element symbols
// escape at least as arguments.
func (ctx *AnalysisContext) analyzeAggregate(items []ast.Expr) {
	saved := ctx.inReturnPos
	ctx.inReturnPos = false
	for _, item := range items {
		ctx.Analyze(item)
		if name := ast.SymbolName(item); name != "" {
			ctx.RaiseEscape(name, EscapeArg)
		}
	}
	ctx.inReturnPos = saved
}

func (ctx *AnalysisContext) analyzeList(list *ast.List) {
	if len(list.Items) == 0 {
		return
	}

	switch ast.HeadSymbol(list) {
	case ast.FormQuote:
		// Quoted literal data is never analyzed.
	case ast.FormDefine:
		ctx.analyzeDefine(ast.Args(list))
	case ast.FormLet, ast.FormLetStar, ast.FormLetrec:
		ctx.analyzeLet(ast.Args(list))
	case ast.FormLambda, ast.FormFn:
		ctx.analyzeLambda(ast.Args(list))
	case ast.FormIf:
		ctx.analyzeIf(ast.Args(list))
	case ast.FormSet:
		ctx.analyzeSet(ast.Args(list))
	case ast.FormDo, ast.FormBegin:
		ctx.analyzeBody(ast.Args(list))
	case ast.FormForEach:
		ctx.analyzeForEach(ast.Args(list))
	case ast.FormSpawn:
		ctx.analyzeSpawn(ast.Args(list))
	default:
		ctx.analyzeApplication(list)
	}
}

// analyzeDefine handles (define name value) and (define (name params...) body...).
func (ctx *AnalysisContext) analyzeDefine(args []ast.Expr) {
	if len(args) < 2 {
		return
	}

	// Function definition: the body is a lambda body in all but syntax.
	if head, ok := args[0].(*ast.List); ok {
		if len(head.Items) == 0 {
			return
		}
		name := ast.SymbolName(head.Items[0])
		if name == "" {
			return
		}
		ctx.analyzeFunctionBody(head.Items[1:], args[1:])
		return
	}

	name := ast.SymbolName(args[0])
	if name == "" {
		return
	}
	saved := ctx.inReturnPos
	ctx.inReturnPos = false
	ctx.Analyze(args[1])
	ctx.inReturnPos = saved

	ctx.DefineVar(name)
	ctx.RecordVarType(name, constructedType(args[1]))
}

// analyzeLet handles the let family. let in tail position passes tail-ness
// through to the final body expression; binding values are never in tail
// position.
func (ctx *AnalysisContext) analyzeLet(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	bindings, ok := args[0].(*ast.List)
	if !ok || len(bindings.Items) == 0 {
		return
	}

	saved := ctx.inReturnPos
	for _, b := range bindings.Items {
		pair, ok := b.(*ast.List)
		if !ok || len(pair.Items) < 2 {
			continue
		}
		name := ast.SymbolName(pair.Items[0])
		if name == "" {
			continue
		}
		ctx.inReturnPos = false
		ctx.Analyze(pair.Items[1])
		// A binding whose value is another local aliases it.
		if alias := ast.SymbolName(pair.Items[1]); alias != "" {
			ctx.MarkShared(alias)
		}
		ctx.DefineVar(name)
		ctx.RecordVarType(name, constructedType(pair.Items[1]))
	}
	ctx.inReturnPos = saved

	ctx.scopeDepth++
	ctx.analyzeBody(args[1:])
	ctx.scopeDepth--
}

// analyzeLambda handles (lambda (params...) body...).
func (ctx *AnalysisContext) analyzeLambda(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	params, ok := args[0].(*ast.List)
	if !ok {
		return
	}
	ctx.analyzeFunctionBody(params.Items, args[1:])
}

// analyzeFunctionBody analyzes a parameter list and body under a fresh
// lambda scope. The final body expression is in return position.
func (ctx *AnalysisContext) analyzeFunctionBody(params []ast.Expr, body []ast.Expr) {
	savedReturn := ctx.inReturnPos
	ctx.lambdaDepth++
	ctx.scopeDepth++

	for _, p := range params {
		if name := ast.SymbolName(p); name != "" {
			ctx.DefineParam(name)
		}
	}
	for i, expr := range body {
		ctx.inReturnPos = i == len(body)-1
		ctx.Analyze(expr)
	}

	ctx.scopeDepth--
	ctx.lambdaDepth--
	ctx.inReturnPos = savedReturn
}

// analyzeIf analyzes a conditional: the condition is never in tail position,
// both branches inherit it.
func (ctx *AnalysisContext) analyzeIf(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	saved := ctx.inReturnPos
	ctx.inReturnPos = false
	ctx.Analyze(args[0])
	ctx.inReturnPos = saved

	ctx.Analyze(args[1])
	if len(args) >= 3 {
		ctx.Analyze(args[2])
	}
}

// analyzeSet handles (set! target value). Assigning a local value to a
// target the context does not track (a global) makes the value escape
// globally; assignment to a tracked target aliases the value either way.
func (ctx *AnalysisContext) analyzeSet(args []ast.Expr) {
	if len(args) < 2 {
		return
	}
	target := ast.SymbolName(args[0])
	if target == "" {
		return
	}

	saved := ctx.inReturnPos
	ctx.inReturnPos = false
	ctx.Analyze(args[1])
	ctx.inReturnPos = saved

	if valueName := ast.SymbolName(args[1]); valueName != "" {
		if ctx.FindVar(target) == nil {
			ctx.RaiseEscape(valueName, EscapeGlobal)
		}
		ctx.MarkShared(valueName)
	}
	ctx.RecordWrite(target)
}

// analyzeBody analyzes a sequence where only the final expression inherits
// the current tail-ness.
func (ctx *AnalysisContext) analyzeBody(body []ast.Expr) {
	saved := ctx.inReturnPos
	for i, expr := range body {
		ctx.inReturnPos = saved && i == len(body)-1
		ctx.Analyze(expr)
	}
	ctx.inReturnPos = saved
}

// analyzeForEach handles (for-each var collection body...). Uses inside the
// body are extended to the loop's end position: a value live on any
// iteration must survive all of them.
func (ctx *AnalysisContext) analyzeForEach(args []ast.Expr) {
	if len(args) < 3 {
		return
	}
	loopVar := ast.SymbolName(args[0])
	if loopVar == "" {
		return
	}

	saved := ctx.inReturnPos
	ctx.inReturnPos = false
	ctx.Analyze(args[1])

	frame := &loopFrame{used: make(map[string]bool)}
	ctx.loops = append(ctx.loops, frame)
	ctx.scopeDepth++
	ctx.DefineVar(loopVar)
	for _, expr := range args[2:] {
		ctx.Analyze(expr)
	}
	ctx.scopeDepth--
	ctx.loops = ctx.loops[:len(ctx.loops)-1]
	ctx.inReturnPos = saved

	// The iterated collection is live for the whole loop even if its last
	// syntactic use was the header.
	if name := ast.SymbolName(args[1]); name != "" {
		frame.used[name] = true
	}
	for name := range frame.used {
		if u := ctx.FindVar(name); u != nil && ctx.pos > u.LastUse {
			u.LastUse = ctx.pos
		}
	}
}

// analyzeSpawn handles (spawn body...): the body runs on another thread, so
// it captures like a lambda body.
func (ctx *AnalysisContext) analyzeSpawn(args []ast.Expr) {
	if len(args) == 0 {
		return
	}
	saved := ctx.inReturnPos
	ctx.lambdaDepth++
	ctx.inReturnPos = false
	for _, expr := range args {
		ctx.Analyze(expr)
	}
	ctx.lambdaDepth--
	ctx.inReturnPos = saved
}

// analyzeApplication handles a function application: head then arguments in
// order. Every symbol in argument position escapes at least as an argument.
func (ctx *AnalysisContext) analyzeApplication(list *ast.List) {
	saved := ctx.inReturnPos
	ctx.inReturnPos = false

	ctx.Analyze(list.Items[0])
	for _, arg := range list.Items[1:] {
		ctx.Analyze(arg)
		if name := ast.SymbolName(arg); name != "" {
			ctx.RaiseEscape(name, EscapeArg)
		}
	}
	ctx.inReturnPos = saved

	if head := ast.SymbolName(list.Items[0]); head != "" && allocatingPrimitives[head] {
		ctx.allocs = append(ctx.allocs, AllocSite{
			Pos:      ctx.pos,
			TypeName: constructedType(list),
		})
	}
}

// allocatingPrimitives are the builtin calls that produce a fresh heap
// value. Constructor calls for deftype'd aggregates follow the make-<type>
// naming convention.
var allocatingPrimitives = map[string]bool{
	"cons":      true,
	"list":      true,
	"box":       true,
	"append":    true,
	"reverse":   true,
	"make-chan": true,
}

// constructedType returns the type name a binding value constructs, when the
// value is a recognizable constructor call: (make-node ...) constructs
// "node", the list primitives construct "pair", (box ...) constructs "box".
// Anything else yields "".
func constructedType(value ast.Expr) string {
	head := ast.HeadSymbol(value)
	switch {
	case head == "":
		return ""
	case strings.HasPrefix(head, "make-") && head != "make-chan":
		return strings.TrimPrefix(head, "make-")
	case head == "cons" || head == "list" || head == "append" || head == "reverse":
		return "pair"
	case head == "box":
		return "box"
	default:
		return ""
	}
}
