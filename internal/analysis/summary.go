// Function summaries.
// A summary captures the ownership contract of one function at its boundary:
// what happens to each argument, what the return value is, and whether the
// call is observable. Call sites consult summaries instead of the callee's
// body, so unknown callees need a safe default: assume a fresh, caller-owned
// result and no transfer of the arguments.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

// ====== Parameter and return contracts ======

type ParamOwnership int

const (
	ParamBorrowed ParamOwnership = iota
	ParamConsumed
	ParamPassthrough
	ParamCaptured
)

func (p ParamOwnership) String() string {
	switch p {
	case ParamBorrowed:
		return "Borrowed"
	case ParamConsumed:
		return "Consumed"
	case ParamPassthrough:
		return "Passthrough"
	case ParamCaptured:
		return "Captured"
	default:
		return fmt.Sprintf("ParamOwnership(%d)", int(p))
	}
}

type ReturnOwnership int

const (
	ReturnFresh ReturnOwnership = iota
	ReturnPassthrough
	ReturnBorrowed
	ReturnNone
)

func (r ReturnOwnership) String() string {
	switch r {
	case ReturnFresh:
		return "Fresh"
	case ReturnPassthrough:
		return "Passthrough"
	case ReturnBorrowed:
		return "Borrowed"
	case ReturnNone:
		return "None"
	default:
		return fmt.Sprintf("ReturnOwnership(%d)", int(r))
	}
}

// FunctionSummary is the boundary contract of one function.
type FunctionSummary struct {
	Name             string
	Params           []ParamOwnership
	Return           ReturnOwnership
	ReturnParamIndex int // parameter index for ReturnPassthrough, else -1
	Allocates        bool
	HasSideEffects   bool
}

// ====== Registry ======

// SummaryRegistry maps function names to summaries. A fresh registry comes
// pre-seeded with the runtime primitives so their call sites resolve without
// any source to analyze.
type SummaryRegistry struct {
	summaries map[string]*FunctionSummary
}

// freshDefault is the contract assumed for a callee nobody summarized.
var freshDefault = &FunctionSummary{
	Name:             "<unknown>",
	Return:           ReturnFresh,
	ReturnParamIndex: -1,
	Allocates:        true,
}

func NewSummaryRegistry() *SummaryRegistry {
	r := &SummaryRegistry{summaries: make(map[string]*FunctionSummary)}
	r.seedPrimitives()
	return r
}

func (r *SummaryRegistry) seedPrimitives() {
	alloc := func(name string, nparams int) {
		params := make([]ParamOwnership, nparams)
		for i := range params {
			params[i] = ParamConsumed
		}
		r.summaries[name] = &FunctionSummary{
			Name: name, Params: params,
			Return: ReturnFresh, ReturnParamIndex: -1, Allocates: true,
		}
	}
	alloc("cons", 2)
	alloc("list", 1)
	alloc("box", 1)

	effect := func(name string, nparams int) {
		params := make([]ParamOwnership, nparams)
		for i := range params {
			params[i] = ParamBorrowed
		}
		r.summaries[name] = &FunctionSummary{
			Name: name, Params: params,
			Return: ReturnNone, ReturnParamIndex: -1, HasSideEffects: true,
		}
	}
	effect("display", 1)
	effect("print", 1)
	effect("newline", 0)

	accessor := func(name string) {
		r.summaries[name] = &FunctionSummary{
			Name: name, Params: []ParamOwnership{ParamBorrowed},
			Return: ReturnBorrowed, ReturnParamIndex: -1,
		}
	}
	accessor("car")
	accessor("cdr")

	// Arithmetic borrows its operands and yields a fresh scalar.
	for _, name := range []string{"+", "-", "*", "/", "mod"} {
		r.summaries[name] = &FunctionSummary{
			Name: name, Params: []ParamOwnership{ParamBorrowed, ParamBorrowed},
			Return: ReturnFresh, ReturnParamIndex: -1,
		}
	}
}

// Register installs or replaces a summary.
func (r *SummaryRegistry) Register(s *FunctionSummary) {
	r.summaries[s.Name] = s
}

// SummaryFor returns the summary for a callee. Unknown callees get the
// conservative fresh-result default.
func (r *SummaryRegistry) SummaryFor(name string) *FunctionSummary {
	if s, ok := r.summaries[name]; ok {
		return s
	}
	return freshDefault
}

// Known reports whether a real summary (not the default) exists for name.
func (r *SummaryRegistry) Known(name string) bool {
	_, ok := r.summaries[name]
	return ok
}

// CallerShouldFreeArg reports whether the caller keeps the duty to free the
// i-th argument after the call. Only a borrowed parameter leaves the duty
// with the caller; a consumed or captured argument is the callee's, and a
// passthrough argument comes back as the return value and is freed there.
func (r *SummaryRegistry) CallerShouldFreeArg(fnName string, i int) bool {
	s := r.SummaryFor(fnName)
	if i < 0 || i >= len(s.Params) {
		return true
	}
	return s.Params[i] == ParamBorrowed
}

// ====== Summary derivation ======

// AnalyzeFunctionSummary derives and registers a summary from a function
// definition form (define (name params...) body...). Non-function defines
// and malformed forms register nothing.
func (r *SummaryRegistry) AnalyzeFunctionSummary(expr ast.Expr) *FunctionSummary {
	if !ast.IsForm(expr, ast.FormDefine) {
		return nil
	}
	args := ast.Args(expr)
	if len(args) < 2 {
		return nil
	}
	head, ok := args[0].(*ast.List)
	if !ok || len(head.Items) == 0 {
		return nil
	}
	name := ast.SymbolName(head.Items[0])
	if name == "" {
		return nil
	}

	params := make([]string, 0, len(head.Items)-1)
	for _, p := range head.Items[1:] {
		params = append(params, ast.SymbolName(p))
	}
	body := args[1:]
	tail := body[len(body)-1]

	s := &FunctionSummary{
		Name:             name,
		Params:           make([]ParamOwnership, len(params)),
		ReturnParamIndex: -1,
	}
	for i, p := range params {
		s.Params[i] = classifyParam(p, body, r)
	}

	switch {
	case isParamSymbol(tail, params):
		s.Return = ReturnPassthrough
		s.ReturnParamIndex = paramIndex(ast.SymbolName(tail), params)
		s.Params[s.ReturnParamIndex] = ParamPassthrough
	case r.isAllocatingTail(tail):
		s.Return = ReturnFresh
		s.Allocates = true
	case r.SummaryFor(ast.HeadSymbol(tail)).Return == ReturnBorrowed && r.Known(ast.HeadSymbol(tail)):
		s.Return = ReturnBorrowed
	case isScalarLiteral(tail):
		s.Return = ReturnNone
	default:
		s.Return = ReturnFresh
	}

	for _, expr := range body {
		if hasSideEffects(expr, r) {
			s.HasSideEffects = true
			break
		}
	}

	r.summaries[name] = s
	return s
}

// classifyParam decides one parameter's fate from the body. Capture by a
// nested lambda dominates consumption, and both dominate the borrowed
// default.
func classifyParam(param string, body []ast.Expr, r *SummaryRegistry) ParamOwnership {
	if param == "" {
		return ParamBorrowed
	}
	result := ParamBorrowed
	for _, expr := range body {
		switch classifyParamIn(param, expr, r, false) {
		case ParamCaptured:
			return ParamCaptured
		case ParamConsumed:
			result = ParamConsumed
		}
	}
	return result
}

func classifyParamIn(param string, expr ast.Expr, r *SummaryRegistry, inLambda bool) ParamOwnership {
	list, ok := expr.(*ast.List)
	if !ok {
		if inLambda && ast.SymbolName(expr) == param {
			return ParamCaptured
		}
		return ParamBorrowed
	}

	head := ast.HeadSymbol(list)
	if head == ast.FormQuote {
		return ParamBorrowed
	}
	childLambda := inLambda || head == ast.FormLambda || head == ast.FormFn || head == ast.FormSpawn

	result := ParamBorrowed
	for i, item := range list.Items {
		if name := ast.SymbolName(item); name == param && i > 0 {
			if childLambda {
				return ParamCaptured
			}
			if head == ast.FormChanSend && i == 2 {
				result = ParamConsumed
			}
			if r.Known(head) && i-1 < len(r.SummaryFor(head).Params) &&
				r.SummaryFor(head).Params[i-1] == ParamConsumed {
				result = ParamConsumed
			}
		}
		switch classifyParamIn(param, item, r, childLambda) {
		case ParamCaptured:
			return ParamCaptured
		case ParamConsumed:
			result = ParamConsumed
		}
	}
	return result
}

func (r *SummaryRegistry) isAllocatingTail(tail ast.Expr) bool {
	head := ast.HeadSymbol(tail)
	if head == "" {
		return false
	}
	if strings.HasPrefix(head, "make-") {
		return true
	}
	if allocatingPrimitives[head] {
		return true
	}
	return r.Known(head) && r.SummaryFor(head).Allocates
}

func isParamSymbol(expr ast.Expr, params []string) bool {
	return paramIndex(ast.SymbolName(expr), params) >= 0
}

func paramIndex(name string, params []string) int {
	if name == "" {
		return -1
	}
	for i, p := range params {
		if p == name {
			return i
		}
	}
	return -1
}

func isScalarLiteral(expr ast.Expr) bool {
	switch expr.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.CharLit:
		return true
	}
	return false
}

func hasSideEffects(expr ast.Expr, r *SummaryRegistry) bool {
	list, ok := expr.(*ast.List)
	if !ok {
		return false
	}
	head := ast.HeadSymbol(list)
	if head == ast.FormQuote {
		return false
	}
	if head == ast.FormSet || head == ast.FormChanSend {
		return true
	}
	if r.Known(head) && r.SummaryFor(head).HasSideEffects {
		return true
	}
	for _, item := range list.Items {
		if hasSideEffects(item, r) {
			return true
		}
	}
	return false
}

func (r *SummaryRegistry) String() string {
	names := make([]string, 0, len(r.summaries))
	for name := range r.summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("=== Summaries ===\n")
	for _, name := range names {
		s := r.summaries[name]
		fmt.Fprintf(&sb, "%s: params=%v return=%s", name, s.Params, s.Return)
		if s.Return == ReturnPassthrough {
			fmt.Fprintf(&sb, "(%d)", s.ReturnParamIndex)
		}
		fmt.Fprintf(&sb, " allocates=%v effects=%v\n", s.Allocates, s.HasSideEffects)
	}
	return sb.String()
}
