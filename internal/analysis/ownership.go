// Ownership derivation.
// After the usage pass runs, DeriveOwnership folds the usage and escape
// tables into one OwnershipRecord per variable: who owns the value, where it
// is allocated, how it is freed, and where. Queries for names with no record
// return conservative defaults rather than failing.

package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ====== Ownership kinds ======

type OwnershipKind int

const (
	OwnerLocal OwnershipKind = iota
	OwnerBorrowed
	OwnerTransferred
	OwnerShared
)

func (k OwnershipKind) String() string {
	switch k {
	case OwnerLocal:
		return "Local"
	case OwnerBorrowed:
		return "Borrowed"
	case OwnerTransferred:
		return "Transferred"
	case OwnerShared:
		return "Shared"
	default:
		return fmt.Sprintf("OwnershipKind(%d)", int(k))
	}
}

// ====== Allocation strategies ======

type AllocStrategy int

const (
	AllocStack AllocStrategy = iota
	AllocHeap
	AllocPool
	AllocArena
)

func (s AllocStrategy) String() string {
	switch s {
	case AllocStack:
		return "Stack"
	case AllocHeap:
		return "Heap"
	case AllocPool:
		return "Pool"
	case AllocArena:
		return "Arena"
	default:
		return fmt.Sprintf("AllocStrategy(%d)", int(s))
	}
}

// ====== Free strategies ======

type FreeStrategy int

const (
	FreeNone FreeStrategy = iota
	FreeUnique
	FreeTree
	FreeRC
	FreeRCTree
)

func (s FreeStrategy) String() string {
	switch s {
	case FreeNone:
		return "None"
	case FreeUnique:
		return "Unique"
	case FreeTree:
		return "Tree"
	case FreeRC:
		return "RC"
	case FreeRCTree:
		return "RCTree"
	default:
		return fmt.Sprintf("FreeStrategy(%d)", int(s))
	}
}

// ====== Records ======

// OwnershipRecord is the derived lifetime verdict for one variable.
type OwnershipRecord struct {
	Name     string
	Kind     OwnershipKind
	Alloc    AllocStrategy
	Free     FreeStrategy
	MustFree bool
	FreePos  int
	Region   int // region id, or -1 when the variable is not region-bound
}

// FreePoint names a position in the linear program order where a variable's
// owned value can be released.
type FreePoint struct {
	Var  string
	Pos  int
	Free FreeStrategy
}

// ErrInvalidLifetime is the sentinel wrapped by Validate when derived
// lifetimes contradict each other.
var ErrInvalidLifetime = errors.New("invalid lifetime")

// ====== Derivation ======

// DeriveOwnership computes an OwnershipRecord for every variable seen by the
// usage pass. Must run after Analyze has visited the whole program.
func (ctx *AnalysisContext) DeriveOwnership() {
	for name, u := range ctx.usage {
		rec := &OwnershipRecord{
			Name:    name,
			FreePos: -1,
			Region:  -1,
		}
		esc := ctx.EscapeOf(name)

		switch {
		case u.Captured:
			rec.Kind = OwnerTransferred
		case esc >= EscapeReturn:
			rec.Kind = OwnerTransferred
		case u.IsParam:
			rec.Kind = OwnerBorrowed
		default:
			rec.Kind = OwnerLocal
			rec.MustFree = true
			rec.FreePos = u.LastUse
		}

		rec.Alloc = deriveAlloc(u, esc)
		if rec.Alloc == AllocStack {
			ctx.Stats.StackAllocations++
		}
		rec.Free = ctx.deriveFree(rec, name)
		if r := ctx.regions.RegionOf(name); r != nil {
			rec.Region = r.ID
		}
		ctx.ownership[name] = rec
	}
	ctx.regions.ApplyRegionStrategies(ctx)
}

func deriveAlloc(u *VariableUsage, esc EscapeClass) AllocStrategy {
	switch {
	case u.IsParam, esc >= EscapeReturn:
		return AllocHeap
	case esc == EscapeNone && !u.Captured:
		return AllocStack
	default:
		return AllocHeap
	}
}

// deriveFree maps a variable's record onto a destruction strategy using its
// type's shape. The mapping is total over ownership state and shape.
func (ctx *AnalysisContext) deriveFree(rec *OwnershipRecord, name string) FreeStrategy {
	if !rec.MustFree {
		return FreeNone
	}
	shape := ctx.shapes.ShapeOf(ctx.TypeOfVar(name))
	unique := ctx.IsUnique(name)

	switch {
	case shape == ShapeCyclic:
		return FreeRC
	case unique:
		return FreeUnique
	case shape == ShapeUnknown:
		return FreeRCTree
	default:
		// Scalar, Tree, DAG with possible aliases.
		return FreeTree
	}
}

// IsUnique reports whether the variable is still known to be the sole
// reference to its value.
func (ctx *AnalysisContext) IsUnique(name string) bool {
	if e, ok := ctx.escapes[name]; ok {
		return e.IsUnique
	}
	return false
}

// ====== Queries ======

// OwnershipOf returns the derived record for name, or nil when the usage
// pass never saw it.
func (ctx *AnalysisContext) OwnershipOf(name string) *OwnershipRecord {
	return ctx.ownership[name]
}

// GetFreeStrategy returns the free strategy for name. Unknown names need no
// compiler-inserted free.
func (ctx *AnalysisContext) GetFreeStrategy(name string) FreeStrategy {
	if rec := ctx.ownership[name]; rec != nil {
		return rec.Free
	}
	return FreeNone
}

// GetAllocStrategy returns the allocation strategy for name. Unknown names
// allocate on the heap.
func (ctx *AnalysisContext) GetAllocStrategy(name string) AllocStrategy {
	if rec := ctx.ownership[name]; rec != nil {
		return rec.Alloc
	}
	return AllocHeap
}

// FreePointsLinear returns one free point per must-free variable, placed at
// its last use in linear program order. CFG free points, when computed, are
// strictly better and replace these; the two are never mixed.
func (ctx *AnalysisContext) FreePointsLinear() []FreePoint {
	var points []FreePoint
	for name, rec := range ctx.ownership {
		if !rec.MustFree || rec.Free == FreeNone {
			continue
		}
		points = append(points, FreePoint{Var: name, Pos: rec.FreePos, Free: rec.Free})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Pos != points[j].Pos {
			return points[i].Pos < points[j].Pos
		}
		return points[i].Var < points[j].Var
	})
	return points
}

// Validate checks the derived records for structural contradictions. The
// only hard failure is a must-free variable bound to a region that was
// already released in bulk; everything else degrades to a conservative
// default earlier in the pipeline.
func (ctx *AnalysisContext) Validate() error {
	names := make([]string, 0, len(ctx.ownership))
	for name := range ctx.ownership {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rec := ctx.ownership[name]
		if !rec.MustFree || rec.Region < 0 {
			continue
		}
		r := ctx.regions.Region(rec.Region)
		if r != nil && r.Released {
			err := fmt.Errorf("%w: variable %s must free at %d but region %s(#%d) was bulk-released",
				ErrInvalidLifetime, name, rec.FreePos, r.Name, r.ID)
			ctx.addError(err)
			return err
		}
	}
	return nil
}

// ====== Debug dump ======

// DumpOwnership renders the ownership table sorted by name.
func (ctx *AnalysisContext) DumpOwnership() string {
	names := make([]string, 0, len(ctx.ownership))
	for name := range ctx.ownership {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("=== Ownership ===\n")
	for _, name := range names {
		rec := ctx.ownership[name]
		fmt.Fprintf(&sb, "%s: kind=%s alloc=%s free=%s mustFree=%v freePos=%d region=%d\n",
			name, rec.Kind, rec.Alloc, rec.Free, rec.MustFree, rec.FreePos, rec.Region)
	}
	return sb.String()
}
