// Thread locality inference.
// A value confined to its creating thread needs no synchronization. Spawning
// a thread over a body promotes every captured variable to shared (its
// reference counts must become atomic), sending a value down a channel
// transfers it (the sender must stop freeing it), and a value received from
// a channel starts local again on the receiving side.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

type ThreadLocality int

const (
	LocalityLocal ThreadLocality = iota
	LocalityShared
	LocalityTransfer
	LocalityImmutable
)

func (l ThreadLocality) String() string {
	switch l {
	case LocalityLocal:
		return "Local"
	case LocalityShared:
		return "Shared"
	case LocalityTransfer:
		return "Transfer"
	case LocalityImmutable:
		return "Immutable"
	default:
		return fmt.Sprintf("ThreadLocality(%d)", int(l))
	}
}

// ThreadLocalityRecord holds one variable's thread verdict.
type ThreadLocalityRecord struct {
	Locality      ThreadLocality
	NeedsAtomicRC bool
}

// ====== Marking primitives ======

func (ctx *AnalysisContext) localityRecord(name string) *ThreadLocalityRecord {
	rec, ok := ctx.locality[name]
	if !ok {
		rec = &ThreadLocalityRecord{Locality: LocalityLocal}
		ctx.locality[name] = rec
	}
	return rec
}

// MarkThreadLocal resets a variable to thread-local. Used for values freshly
// bound on the receiving side of a channel.
func (ctx *AnalysisContext) MarkThreadLocal(name string) {
	rec := ctx.localityRecord(name)
	rec.Locality = LocalityLocal
	rec.NeedsAtomicRC = false
}

// MarkThreadShared promotes a variable to shared across threads. Shared
// values need atomic reference counting and shared ownership.
func (ctx *AnalysisContext) MarkThreadShared(name string) {
	rec := ctx.localityRecord(name)
	rec.Locality = LocalityShared
	rec.NeedsAtomicRC = true
	if own := ctx.ownership[name]; own != nil {
		own.Kind = OwnerShared
	}
	ctx.Stats.SharedPromotions++
}

// MarkThreadImmutable marks a variable as deeply immutable; immutable data
// crosses threads without synchronization.
func (ctx *AnalysisContext) MarkThreadImmutable(name string) {
	rec := ctx.localityRecord(name)
	rec.Locality = LocalityImmutable
	rec.NeedsAtomicRC = false
}

// RecordThreadSpawn promotes every variable captured by a spawned body.
func (ctx *AnalysisContext) RecordThreadSpawn(captured []string) {
	for _, name := range captured {
		ctx.MarkThreadShared(name)
	}
}

// RecordChannelSend records a value sent down a channel. When the send
// transfers ownership the receiver becomes responsible for the value and
// the sender must not free it.
func (ctx *AnalysisContext) RecordChannelSend(name string, transfers bool) {
	if !transfers {
		return
	}
	rec := ctx.localityRecord(name)
	if rec.Locality != LocalityShared {
		rec.Locality = LocalityTransfer
	}
	if own := ctx.ownership[name]; own != nil {
		own.Kind = OwnerTransferred
		own.MustFree = false
		own.Free = FreeNone
	}
}

// RecordChannelRecv marks a variable bound to a received value as local to
// the receiving thread.
func (ctx *AnalysisContext) RecordChannelRecv(name string) {
	ctx.MarkThreadLocal(name)
}

// ====== Queries ======

// ThreadLocalityOf returns a variable's locality. Variables never seen by a
// concurrency form are thread-local.
func (ctx *AnalysisContext) ThreadLocalityOf(name string) ThreadLocality {
	if rec, ok := ctx.locality[name]; ok {
		return rec.Locality
	}
	return LocalityLocal
}

// NeedsAtomicRC reports whether a variable's reference counts must be
// atomic.
func (ctx *AnalysisContext) NeedsAtomicRC(name string) bool {
	if rec, ok := ctx.locality[name]; ok {
		return rec.NeedsAtomicRC
	}
	return false
}

// ShouldFreeAfterSend reports whether the sender still owns name after
// sending it down a channel.
func (ctx *AnalysisContext) ShouldFreeAfterSend(name string) bool {
	if rec, ok := ctx.locality[name]; ok && rec.Locality == LocalityTransfer {
		return false
	}
	return true
}

// ====== Concurrency pass ======

// AnalyzeConcurrency walks one expression for the concurrency forms and
// applies their locality effects. Must run after DeriveOwnership so
// ownership promotions land on real records.
func (ctx *AnalysisContext) AnalyzeConcurrency(expr ast.Expr) {
	list, ok := expr.(*ast.List)
	if !ok {
		return
	}
	args := ast.Args(list)

	switch ast.HeadSymbol(list) {
	case ast.FormQuote:
		return
	case ast.FormSpawn:
		ctx.RecordThreadSpawn(ctx.capturedIn(args))
	case ast.FormAtom:
		// An atomic cell is shared storage; whatever goes in is visible to
		// every thread holding the cell.
		if len(args) >= 1 {
			if name := ast.SymbolName(args[0]); name != "" && ctx.FindVar(name) != nil {
				ctx.MarkThreadShared(name)
			}
		}
	case ast.FormChanSend:
		if len(args) >= 2 {
			if name := ast.SymbolName(args[1]); name != "" && ctx.FindVar(name) != nil {
				ctx.RecordChannelSend(name, true)
			}
		}
	case ast.FormDefine:
		if len(args) >= 2 && ast.HeadSymbol(args[1]) == ast.FormChanRecv {
			if name := ast.SymbolName(args[0]); name != "" {
				ctx.RecordChannelRecv(name)
			}
		}
	case ast.FormLet, ast.FormLetStar, ast.FormLetrec:
		if len(args) < 2 {
			return
		}
		if bindings, ok := args[0].(*ast.List); ok {
			for _, b := range bindings.Items {
				pair, ok := b.(*ast.List)
				if !ok || len(pair.Items) < 2 {
					continue
				}
				if ast.HeadSymbol(pair.Items[1]) == ast.FormChanRecv {
					if name := ast.SymbolName(pair.Items[0]); name != "" {
						ctx.RecordChannelRecv(name)
					}
				}
			}
		}
	}

	for _, item := range args {
		ctx.AnalyzeConcurrency(item)
	}
}

// capturedIn lists the outer variables a spawned body references: every
// symbol with a usage record defined outside the body itself.
func (ctx *AnalysisContext) capturedIn(body []ast.Expr) []string {
	seen := make(map[string]bool)
	bound := make(map[string]bool)
	var captured []string

	var walk func(ast.Expr)
	walk = func(expr ast.Expr) {
		switch e := expr.(type) {
		case *ast.Symbol:
			if bound[e.Name] || seen[e.Name] {
				return
			}
			if ctx.FindVar(e.Name) != nil {
				seen[e.Name] = true
				captured = append(captured, e.Name)
			}
		case *ast.List:
			head := ast.HeadSymbol(e)
			if head == ast.FormQuote {
				return
			}
			// Local bindings inside the body are not captures.
			if head == ast.FormLet || head == ast.FormLetStar || head == ast.FormLetrec {
				args := ast.Args(e)
				if len(args) == 0 {
					return
				}
				if bindings, ok := args[0].(*ast.List); ok {
					for _, b := range bindings.Items {
						if pair, ok := b.(*ast.List); ok && len(pair.Items) >= 2 {
							walk(pair.Items[1])
							if name := ast.SymbolName(pair.Items[0]); name != "" {
								bound[name] = true
							}
						}
					}
					for _, expr := range args[1:] {
						walk(expr)
					}
					return
				}
			}
			for _, item := range e.Items {
				walk(item)
			}
		case *ast.ArrayLit:
			for _, item := range e.Items {
				walk(item)
			}
		case *ast.MapLit:
			for _, item := range e.Items {
				walk(item)
			}
		}
	}
	for _, expr := range body {
		walk(expr)
	}
	sort.Strings(captured)
	return captured
}

// DumpLocality renders the locality table sorted by name.
func (ctx *AnalysisContext) DumpLocality() string {
	names := make([]string, 0, len(ctx.locality))
	for name := range ctx.locality {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("=== Thread Locality ===\n")
	for _, name := range names {
		rec := ctx.locality[name]
		fmt.Fprintf(&sb, "%s: %s atomicRC=%v\n", name, rec.Locality, rec.NeedsAtomicRC)
	}
	return sb.String()
}
