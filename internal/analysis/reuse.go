// Allocation reuse.
// When a value dies right before a new value of the same type is made, the
// allocation can recycle the dead storage instead of hitting the allocator.
// The pass pairs each recorded allocation site with a compatible variable
// whose owned value is already dead at that position.

package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// AllocSite is one allocation recorded during the usage pass.
type AllocSite struct {
	Pos      int
	TypeName string
}

// ReuseCandidate pairs an allocation with the dead variable whose storage it
// can recycle.
type ReuseCandidate struct {
	DeadVar  string
	AllocPos int
	TypeName string
}

// FindReuseCandidates matches allocation sites against variables that are
// dead by the allocation's position. Only uniquely owned, locally freed
// values of the same constructed type qualify; each dead variable feeds at
// most one site.
func (ctx *AnalysisContext) FindReuseCandidates() []ReuseCandidate {
	var candidates []ReuseCandidate
	claimed := make(map[string]bool)

	sites := append([]AllocSite(nil), ctx.allocs...)
	sort.Slice(sites, func(i, j int) bool { return sites[i].Pos < sites[j].Pos })

	for _, site := range sites {
		if site.TypeName == "" {
			continue
		}
		best := ""
		bestPos := -1
		for name, rec := range ctx.ownership {
			if claimed[name] || !rec.MustFree || rec.Free != FreeUnique {
				continue
			}
			if rec.FreePos >= site.Pos || ctx.TypeOfVar(name) != site.TypeName {
				continue
			}
			// Prefer the most recently dead value; ties break by name for
			// determinism.
			if rec.FreePos > bestPos || (rec.FreePos == bestPos && name < best) {
				best = name
				bestPos = rec.FreePos
			}
		}
		if best == "" {
			continue
		}
		claimed[best] = true
		candidates = append(candidates, ReuseCandidate{
			DeadVar:  best,
			AllocPos: site.Pos,
			TypeName: site.TypeName,
		})
		ctx.Stats.AllocationsReused++
	}

	ctx.reuse = candidates
	return candidates
}

// ReuseCandidates returns the pairs found by the last FindReuseCandidates
// run.
func (ctx *AnalysisContext) ReuseCandidates() []ReuseCandidate {
	return ctx.reuse
}

// DumpReuse renders the reuse table.
func (ctx *AnalysisContext) DumpReuse() string {
	var sb strings.Builder
	sb.WriteString("=== Allocation Reuse ===\n")
	for _, c := range ctx.reuse {
		fmt.Fprintf(&sb, "reuse %s for %s alloc @ %d\n", c.DeadVar, c.TypeName, c.AllocPos)
	}
	return sb.String()
}
