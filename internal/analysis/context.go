// Ownership/lifetime analysis for the Loam compiler.
// This file defines the per-unit analysis context and the variable usage and
// escape tables populated by the first traversal pass. It provides:
// 1. The evaluation-order position model and scope flags
// 2. Variable usage tracking (first/last use, read/write, parameter-ness)
// 3. Escape classification under a monotone join lattice
// 4. The shared mutable state the later passes refine

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

// ====== Escape Classes ======

// EscapeClass is the most severe way a value is known to outlive its
// defining scope. Classes form a total order and only ever increase.
type EscapeClass int

const (
	EscapeNone    EscapeClass = iota // Value never leaves its scope
	EscapeArg                        // Value passed as a call argument
	EscapeReturn                     // Value returned out of its scope
	EscapeClosure                    // Value captured by a lambda
	EscapeGlobal                     // Value stored into a global
)

func (ec EscapeClass) String() string {
	switch ec {
	case EscapeNone:
		return "none"
	case EscapeArg:
		return "arg"
	case EscapeReturn:
		return "return"
	case EscapeClosure:
		return "closure"
	case EscapeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// ====== Usage Records ======

// VariableUsage tracks how one local variable is used within the analyzed
// unit. At most one record exists per name per context; LastUse is updated
// monotonically to the maximum position seen.
type VariableUsage struct {
	Name     string
	Read     bool
	Written  bool
	Captured bool
	Escaped  bool
	FirstUse int
	LastUse  int
	DefPos   int
	IsParam  bool

	defLambdaDepth int // Lambda nesting at definition, for capture detection
	defScopeDepth  int
}

// EscapeRecord holds the joined escape class for one variable.
type EscapeRecord struct {
	Class    EscapeClass
	IsUnique bool
}

// ====== Analysis Context ======

// AnalysisContext owns every record produced while analyzing one unit (a
// function body or a top-level program). It is created fresh per unit,
// traversed and queried sequentially, and discarded afterwards; no component
// retains a reference past that lifetime.
//
// The position counter, scope depth, and lambda/return flags are explicit
// fields saved and restored around recursive calls, so independent units can
// be analyzed re-entrantly with no shared mutable state.
type AnalysisContext struct {
	usage     map[string]*VariableUsage
	escapes   map[string]*EscapeRecord
	ownership map[string]*OwnershipRecord

	shapes    *ShapeRegistry
	regions   *RegionTracker
	borrows   *BorrowTracker
	summaries *SummaryRegistry
	locality  map[string]*ThreadLocalityRecord

	varType       map[string]string // Variable -> constructed type name, when known
	allocs        []AllocSite
	reuse         []ReuseCandidate
	rcElision     map[string]RCElision
	cfgFreePoints []CFGFreePoint

	pos         int
	borrowPos   int
	scopeDepth  int
	lambdaDepth int
	inReturnPos bool
	loops       []*loopFrame

	Stats  *OptimizationStats
	errors []error
}

// loopFrame collects the names used inside one iteration form so their last
// use can be extended past the loop body: a value used on any iteration must
// survive all of them.
type loopFrame struct {
	used map[string]bool
}

// NewAnalysisContext creates an empty context sharing the given shape
// registry. A nil registry gets a fresh empty one, under which every type
// query degrades to the conservative ShapeUnknown.
func NewAnalysisContext(shapes *ShapeRegistry) *AnalysisContext {
	if shapes == nil {
		shapes = NewShapeRegistry()
	}
	return &AnalysisContext{
		usage:     make(map[string]*VariableUsage),
		escapes:   make(map[string]*EscapeRecord),
		ownership: make(map[string]*OwnershipRecord),
		shapes:    shapes,
		regions:   NewRegionTracker(),
		borrows:   NewBorrowTracker(),
		summaries: NewSummaryRegistry(),
		locality:  make(map[string]*ThreadLocalityRecord),
		varType:   make(map[string]string),
		rcElision: make(map[string]RCElision),
		Stats:     NewOptimizationStats(),
	}
}

// Shapes returns the shape registry consulted by this context.
func (ctx *AnalysisContext) Shapes() *ShapeRegistry { return ctx.shapes }

// Regions returns the region tracker for this context.
func (ctx *AnalysisContext) Regions() *RegionTracker { return ctx.regions }

// Borrows returns the borrow tracker for this context.
func (ctx *AnalysisContext) Borrows() *BorrowTracker { return ctx.borrows }

// Summaries returns the function summary registry for this context.
func (ctx *AnalysisContext) Summaries() *SummaryRegistry { return ctx.summaries }

// Pos returns the current traversal position.
func (ctx *AnalysisContext) Pos() int { return ctx.pos }

// ====== Variable Definition and Lookup ======

// DefineVar registers a new local variable at the current position. Calling
// it again for the same name resets the record: rebinding starts a new
// lifetime within the unit.
func (ctx *AnalysisContext) DefineVar(name string) *VariableUsage {
	u := &VariableUsage{
		Name:           name,
		FirstUse:       -1,
		LastUse:        ctx.pos,
		DefPos:         ctx.pos,
		defLambdaDepth: ctx.lambdaDepth,
		defScopeDepth:  ctx.scopeDepth,
	}
	ctx.usage[name] = u
	ctx.escapes[name] = &EscapeRecord{Class: EscapeNone, IsUnique: true}
	return u
}

// DefineParam registers a function parameter.
func (ctx *AnalysisContext) DefineParam(name string) *VariableUsage {
	u := ctx.DefineVar(name)
	u.IsParam = true
	return u
}

// FindVar returns the usage record for a name, or nil when the name never
// received one (e.g. a global).
func (ctx *AnalysisContext) FindVar(name string) *VariableUsage {
	return ctx.usage[name]
}

// EscapeOf returns the joined escape class for a name. Unknown names report
// EscapeNone.
func (ctx *AnalysisContext) EscapeOf(name string) EscapeClass {
	if rec, ok := ctx.escapes[name]; ok {
		return rec.Class
	}
	return EscapeNone
}

// RaiseEscape joins the variable's escape class with the given one. The
// class never decreases.
func (ctx *AnalysisContext) RaiseEscape(name string, class EscapeClass) {
	rec, ok := ctx.escapes[name]
	if !ok {
		return
	}
	if class > rec.Class {
		rec.Class = class
	}
	if class >= EscapeClosure {
		rec.IsUnique = false
	}
}

// MarkShared clears the uniqueness of a variable without raising its escape
// class (e.g. an alias created by set!).
func (ctx *AnalysisContext) MarkShared(name string) {
	if rec, ok := ctx.escapes[name]; ok {
		rec.IsUnique = false
	}
}

// RecordUse marks a read of the named variable at the current position.
func (ctx *AnalysisContext) RecordUse(name string) {
	u, ok := ctx.usage[name]
	if !ok {
		return
	}
	u.Read = true
	if u.FirstUse < 0 {
		u.FirstUse = ctx.pos
	}
	if ctx.pos > u.LastUse {
		u.LastUse = ctx.pos
	}
	for _, frame := range ctx.loops {
		frame.used[name] = true
	}
}

// RecordWrite marks a write of the named variable at the current position.
func (ctx *AnalysisContext) RecordWrite(name string) {
	u, ok := ctx.usage[name]
	if !ok {
		return
	}
	u.Written = true
	if ctx.pos > u.LastUse {
		u.LastUse = ctx.pos
	}
	for _, frame := range ctx.loops {
		frame.used[name] = true
	}
}

// RecordVarType remembers the type name a variable was constructed with,
// which shape queries consult later. Unknown construction leaves no entry
// and shape queries fall back to ShapeUnknown.
func (ctx *AnalysisContext) RecordVarType(name, typeName string) {
	if typeName != "" {
		ctx.varType[name] = typeName
	}
}

// TypeOfVar returns the recorded type name for a variable, or "".
func (ctx *AnalysisContext) TypeOfVar(name string) string {
	return ctx.varType[name]
}

// ====== Query Surface Shortcuts ======

// ShapeOf returns the shape of the named variable's constructed type,
// ShapeUnknown when the type was never recorded or analyzed.
func (ctx *AnalysisContext) ShapeOf(name string) Shape {
	return ctx.shapes.ShapeOf(ctx.varType[name])
}

// BackEdgeFields returns the back-edge field names of the named variable's
// type.
func (ctx *AnalysisContext) BackEdgeFields(name string) []string {
	return ctx.shapes.BackEdgeFields(ctx.varType[name])
}

// RegionOf returns the region the variable is bound to, nil when it is not
// region-bound.
func (ctx *AnalysisContext) RegionOf(name string) *RegionInfo {
	return ctx.regions.RegionOf(name)
}

// RegionCanBulkFree reports whether the region can be released in one
// operation. Unknown ids cannot.
func (ctx *AnalysisContext) RegionCanBulkFree(id int) bool {
	r := ctx.regions.Region(id)
	return r != nil && r.CanBulkFree()
}

// SummaryFor returns the boundary contract of a callee, defaulting to a
// fresh caller-owned result for unknown names.
func (ctx *AnalysisContext) SummaryFor(name string) *FunctionSummary {
	return ctx.summaries.SummaryFor(name)
}

// ====== Error Management ======

// Errors returns all accumulated errors.
func (ctx *AnalysisContext) Errors() []error { return ctx.errors }

// ClearErrors clears all accumulated errors.
func (ctx *AnalysisContext) ClearErrors() { ctx.errors = nil }

func (ctx *AnalysisContext) addError(err error) {
	ctx.errors = append(ctx.errors, err)
}

// ====== Driver Entry Point ======

// AnalyzeProgram runs the full pipeline over a top-level expression sequence:
// usage/escape traversal, followed by the derived passes in their required
// order. CFG construction is independent and run separately per unit via
// BuildCFG.
func (ctx *AnalysisContext) AnalyzeProgram(exprs []ast.Expr) {
	for _, expr := range exprs {
		if ast.IsForm(expr, ast.FormDefine) {
			ctx.summaries.AnalyzeFunctionSummary(expr)
		}
		ctx.Analyze(expr)
	}
	ctx.DeriveOwnership()
	for _, expr := range exprs {
		ctx.AnalyzeBorrows(expr)
		ctx.AnalyzeConcurrency(expr)
	}
	for _, expr := range exprs {
		ctx.AnalyzeRCElision(expr)
	}
	ctx.FindReuseCandidates()
}

// ====== Debug and Reporting ======

// String returns a string representation of the usage and escape tables.
func (ctx *AnalysisContext) String() string {
	names := make([]string, 0, len(ctx.usage))
	for name := range ctx.usage {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("AnalysisContext {\n")
	b.WriteString("  Usage:\n")
	for _, name := range names {
		u := ctx.usage[name]
		esc := ctx.escapes[name]
		b.WriteString(fmt.Sprintf("    %s: def=%d first=%d last=%d param=%v captured=%v escape=%s unique=%v\n",
			name, u.DefPos, u.FirstUse, u.LastUse, u.IsParam, u.Captured, esc.Class, esc.IsUnique))
	}
	b.WriteString("}\n")
	return b.String()
}
