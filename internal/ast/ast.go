// Package ast defines the expression-tree input model consumed by the Loam
// ownership/lifetime analysis. The parser produces this tree; the analysis
// treats it as read-only input and never mutates it.
//
// Loam is an expression-oriented, dynamically-scoped language. Every program
// is a sequence of expressions; scoping forms (define, let, lambda) and
// control forms (if, do) are lists headed by a special-form symbol.
package ast

import (
	"fmt"
	"strings"
)

// Expr is the closed sum of expression node kinds. Every pass dispatches on
// the concrete type; adding a new kind requires updating each pass, which is
// the point: an unhandled kind is a compile-visible hole, not a silent skip.
type Expr interface {
	// String returns the surface syntax of the node.
	String() string
	exprNode() // Marker method sealing the sum
}

// ===== Atoms =====

// Symbol is a variable reference or a special-form head.
type Symbol struct {
	Name string
}

func (s *Symbol) exprNode()      {}
func (s *Symbol) String() string { return s.Name }

// IntLit is an integer literal.
type IntLit struct {
	Value int64
}

func (l *IntLit) exprNode()      {}
func (l *IntLit) String() string { return fmt.Sprintf("%d", l.Value) }

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
}

func (l *FloatLit) exprNode()      {}
func (l *FloatLit) String() string { return fmt.Sprintf("%g", l.Value) }

// CharLit is a character literal.
type CharLit struct {
	Value rune
}

func (l *CharLit) exprNode()      {}
func (l *CharLit) String() string { return fmt.Sprintf("#\\%c", l.Value) }

// ===== Compound forms =====

// List is an application or special form: head followed by arguments in
// evaluation order. An empty list is the nil literal.
type List struct {
	Items []Expr
}

func (l *List) exprNode() {}
func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		parts[i] = item.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// ArrayLit is an array literal: [e1 e2 ...].
type ArrayLit struct {
	Items []Expr
}

func (a *ArrayLit) exprNode() {}
func (a *ArrayLit) String() string {
	parts := make([]string, len(a.Items))
	for i, item := range a.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MapLit is a keyed-mapping literal: {k1 v1 k2 v2 ...}. Keys and values
// alternate in evaluation order.
type MapLit struct {
	Items []Expr
}

func (m *MapLit) exprNode() {}
func (m *MapLit) String() string {
	parts := make([]string, len(m.Items))
	for i, item := range m.Items {
		parts[i] = item.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ===== Constructors =====

// NewSymbol creates a symbol node.
func NewSymbol(name string) *Symbol { return &Symbol{Name: name} }

// NewInt creates an integer literal node.
func NewInt(v int64) *IntLit { return &IntLit{Value: v} }

// NewFloat creates a float literal node.
func NewFloat(v float64) *FloatLit { return &FloatLit{Value: v} }

// NewChar creates a character literal node.
func NewChar(r rune) *CharLit { return &CharLit{Value: r} }

// NewList creates a list node from items in evaluation order.
func NewList(items ...Expr) *List { return &List{Items: items} }

// NewArray creates an array literal node.
func NewArray(items ...Expr) *ArrayLit { return &ArrayLit{Items: items} }

// NewMap creates a keyed-mapping literal node.
func NewMap(items ...Expr) *MapLit { return &MapLit{Items: items} }

// ===== Form inspection =====

// Special-form head symbols recognized by the analysis passes.
const (
	FormDefine   = "define"
	FormLet      = "let"
	FormLetStar  = "let*"
	FormLetrec   = "letrec"
	FormLambda   = "lambda"
	FormFn       = "fn"
	FormIf       = "if"
	FormQuote    = "quote"
	FormSet      = "set!"
	FormDo       = "do"
	FormBegin    = "begin"
	FormForEach  = "for-each"
	FormMap      = "map"
	FormSpawn    = "spawn"
	FormChanSend = "chan-send!"
	FormChanRecv = "chan-recv!"
	FormAtom     = "atom"
)

// HeadSymbol returns the head symbol name of a list form, or "" when the
// expression is not a list or its head is not a symbol.
func HeadSymbol(e Expr) string {
	list, ok := e.(*List)
	if !ok || len(list.Items) == 0 {
		return ""
	}
	sym, ok := list.Items[0].(*Symbol)
	if !ok {
		return ""
	}
	return sym.Name
}

// IsForm reports whether e is a list headed by the given special-form symbol.
func IsForm(e Expr, head string) bool {
	return HeadSymbol(e) == head
}

var specialForms = map[string]bool{
	FormDefine: true, FormLet: true, FormLetStar: true, FormLetrec: true,
	FormLambda: true, FormFn: true, FormIf: true, FormQuote: true,
	FormSet: true, FormDo: true, FormBegin: true, FormForEach: true,
	FormMap: true, FormSpawn: true, FormChanSend: true, FormChanRecv: true,
	FormAtom: true,
}

// IsSpecialForm reports whether e is a list headed by any recognized special
// form. Everything else headed by a symbol is a plain application.
func IsSpecialForm(e Expr) bool {
	return specialForms[HeadSymbol(e)]
}

// Args returns the argument expressions of a list form (everything after the
// head). Returns nil for non-lists and empty lists.
func Args(e Expr) []Expr {
	list, ok := e.(*List)
	if !ok || len(list.Items) == 0 {
		return nil
	}
	return list.Items[1:]
}

// SymbolName returns the name of a symbol expression, or "" when e is not a
// symbol.
func SymbolName(e Expr) string {
	sym, ok := e.(*Symbol)
	if !ok {
		return ""
	}
	return sym.Name
}
