package analysis

import (
	"testing"
)

func TestRegionBulkFreeRefcount(t *testing.T) {
	rt := NewRegionTracker()
	id := rt.RegionNew("r")
	rt.AddVar("a")

	rt.IncExternal(id)
	rt.DecExternal(id)
	if !rt.Region(id).CanBulkFree() {
		t.Error("balanced external refs should allow bulk free")
	}

	rt.IncExternal(id)
	if rt.Region(id).CanBulkFree() {
		t.Error("an outstanding external ref forbids bulk free")
	}
}

func TestRegionEscapingMarkForbidsBulkFree(t *testing.T) {
	rt := NewRegionTracker()
	id := rt.RegionNew("r")
	rt.MarkEscaping(id)

	if rt.Region(id).CanBulkFree() {
		t.Error("an escaping member forbids bulk free")
	}
}

func TestRegionNesting(t *testing.T) {
	rt := NewRegionTracker()
	outer := rt.RegionNew("outer")
	inner := rt.RegionNew("inner")

	if outer >= inner {
		t.Errorf("ids must increase: outer=%d inner=%d", outer, inner)
	}
	if got := rt.Region(inner).Parent; got != outer {
		t.Errorf("inner parent = %d, want %d", got, outer)
	}
	if got := rt.Region(outer).Parent; got != -1 {
		t.Errorf("outer parent = %d, want -1 for a root", got)
	}

	rt.AddVar("x") // lands in inner
	if ended := rt.RegionEnd(); ended.ID != inner {
		t.Errorf("RegionEnd popped #%d, want inner #%d", ended.ID, inner)
	}
	rt.AddVar("y") // lands in outer
	if got := rt.RegionOf("y").ID; got != outer {
		t.Errorf("y in region %d, want outer %d", got, outer)
	}
}

func TestCrossRegionRef(t *testing.T) {
	rt := NewRegionTracker()
	rt.RegionNew("a")
	rt.AddVar("x")
	rt.RegionEnd()
	rt.RegionNew("b")
	rt.AddVar("y")
	rt.AddVar("z")

	if !rt.IsCrossRegionRef("x", "y") {
		t.Error("x and y are in different regions")
	}
	if rt.IsCrossRegionRef("y", "z") {
		t.Error("y and z share a region")
	}
	if rt.IsCrossRegionRef("x", "free") {
		t.Error("a variable outside any region never crosses")
	}
}

func TestRegionStrategyOverride(t *testing.T) {
	shapes := NewShapeRegistry()
	shapes.records["ring"] = &ShapeRecord{Name: "ring", Shape: ShapeCyclic}

	ctx := NewAnalysisContext(shapes)
	id := ctx.regions.RegionNew("r")
	ctx.regions.AddVar("cycles")
	ctx.regions.AddVar("plain")
	ctx.varType["cycles"] = "ring"
	ctx.varType["plain"] = "pair"
	ctx.ownership["cycles"] = &OwnershipRecord{Name: "cycles", MustFree: true, Free: FreeRC, Alloc: AllocHeap}
	ctx.ownership["plain"] = &OwnershipRecord{Name: "plain", MustFree: true, Free: FreeTree, Alloc: AllocHeap}

	ctx.regions.ApplyRegionStrategies(ctx)

	if got := ctx.ownership["cycles"].Alloc; got != AllocArena {
		t.Errorf("cyclic member alloc = %s, want Arena", got)
	}
	if got := ctx.ownership["plain"].Alloc; got != AllocPool {
		t.Errorf("acyclic member alloc = %s, want Pool", got)
	}
	for _, name := range []string{"cycles", "plain"} {
		rec := ctx.ownership[name]
		if rec.MustFree || rec.Free != FreeNone {
			t.Errorf("%s: bulk-freeable region member should not free individually", name)
		}
		if rec.Region != id {
			t.Errorf("%s: region = %d, want %d", name, rec.Region, id)
		}
	}
	if ctx.Stats.RegionsBulkFreed != 1 {
		t.Errorf("RegionsBulkFreed = %d, want 1", ctx.Stats.RegionsBulkFreed)
	}
}
