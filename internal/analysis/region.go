// Region tracking.
// A region is a lexical arena: values bound to it live until the region ends
// and can then be freed in one bulk release, provided nothing outside still
// points in. Regions nest; each one knows its parent, its member variables,
// and how many references cross its boundary from outside.

package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// RegionInfo is the state of one region.
type RegionInfo struct {
	ID              int
	Parent          int // parent region id, -1 for a root region
	Name            string
	Vars            []string
	ExternalRefs    int
	HasEscapingRefs bool
	Released        bool
}

// CanBulkFree reports whether the whole region can be released in one
// operation. Any external reference or escaping member forbids it.
func (r *RegionInfo) CanBulkFree() bool {
	return r.ExternalRefs == 0 && !r.HasEscapingRefs
}

// ====== Tracker ======

// RegionTracker manages the region stack during analysis and keeps every
// region it ever opened for later queries.
type RegionTracker struct {
	regions []*RegionInfo
	stack   []int
	varHome map[string]int
	nextID  int
}

func NewRegionTracker() *RegionTracker {
	return &RegionTracker{varHome: make(map[string]int)}
}

// RegionNew opens a region nested in the current one and returns its id.
func (t *RegionTracker) RegionNew(name string) int {
	parent := -1
	if len(t.stack) > 0 {
		parent = t.stack[len(t.stack)-1]
	}
	r := &RegionInfo{ID: t.nextID, Parent: parent, Name: name}
	t.nextID++
	t.regions = append(t.regions, r)
	t.stack = append(t.stack, r.ID)
	return r.ID
}

// RegionEnd closes the innermost open region and returns it, nil when no
// region is open.
func (t *RegionTracker) RegionEnd() *RegionInfo {
	if len(t.stack) == 0 {
		return nil
	}
	id := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return t.regions[id]
}

// AddVar binds a variable to the innermost open region.
func (t *RegionTracker) AddVar(name string) {
	if len(t.stack) == 0 {
		return
	}
	id := t.stack[len(t.stack)-1]
	t.regions[id].Vars = append(t.regions[id].Vars, name)
	t.varHome[name] = id
}

// Region returns a region by id, nil for ids never issued.
func (t *RegionTracker) Region(id int) *RegionInfo {
	if id < 0 || id >= len(t.regions) {
		return nil
	}
	return t.regions[id]
}

// RegionOf returns the region a variable is bound to, nil for free-floating
// variables.
func (t *RegionTracker) RegionOf(name string) *RegionInfo {
	if id, ok := t.varHome[name]; ok {
		return t.regions[id]
	}
	return nil
}

// IncExternal records one reference into the region from outside it.
func (t *RegionTracker) IncExternal(id int) {
	if r := t.Region(id); r != nil {
		r.ExternalRefs++
	}
}

// DecExternal drops one external reference. The count never goes negative.
func (t *RegionTracker) DecExternal(id int) {
	if r := t.Region(id); r != nil && r.ExternalRefs > 0 {
		r.ExternalRefs--
	}
}

// MarkEscaping records that some member of the region outlives it.
func (t *RegionTracker) MarkEscaping(id int) {
	if r := t.Region(id); r != nil {
		r.HasEscapingRefs = true
	}
}

// MarkReleased records that the region's storage was bulk-freed.
func (t *RegionTracker) MarkReleased(id int) {
	if r := t.Region(id); r != nil {
		r.Released = true
	}
}

// IsCrossRegionRef reports whether the two variables belong to different
// regions. Variables outside any region never cross.
func (t *RegionTracker) IsCrossRegionRef(a, b string) bool {
	ra, aOK := t.varHome[a]
	rb, bOK := t.varHome[b]
	return aOK && bOK && ra != rb
}

// ApplyRegionStrategies overrides the allocation strategy of region-bound
// variables. Cyclic values get an arena, since bulk release is the only
// strategy that survives internal cycles; everything else gets a pool.
func (t *RegionTracker) ApplyRegionStrategies(ctx *AnalysisContext) {
	for name, id := range t.varHome {
		rec := ctx.ownership[name]
		if rec == nil {
			continue
		}
		rec.Region = id
		if ctx.shapes.ShapeOf(ctx.TypeOfVar(name)) == ShapeCyclic {
			rec.Alloc = AllocArena
		} else {
			rec.Alloc = AllocPool
		}
		// Region members are released with their region, not one by one.
		if t.regions[id].CanBulkFree() {
			rec.MustFree = false
			rec.Free = FreeNone
		}
	}
	for _, r := range t.regions {
		if len(r.Vars) > 0 && r.CanBulkFree() {
			ctx.Stats.RegionsBulkFreed++
		}
	}
}

func (t *RegionTracker) String() string {
	var sb strings.Builder
	sb.WriteString("=== Regions ===\n")
	for _, r := range t.regions {
		vars := append([]string(nil), r.Vars...)
		sort.Strings(vars)
		fmt.Fprintf(&sb, "#%d %s parent=%d extRefs=%d escaping=%v released=%v vars=%v\n",
			r.ID, r.Name, r.Parent, r.ExternalRefs, r.HasEscapingRefs, r.Released, vars)
	}
	return sb.String()
}
