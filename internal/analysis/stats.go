// Optimization statistics.
// Each pass bumps its counters as it decides; the totals make regressions
// visible in tests and give the compiler driver something to report under
// a verbose flag.

package analysis

import (
	"fmt"
	"strings"
)

// OptimizationStats counts the savings the analysis proved.
type OptimizationStats struct {
	StackAllocations  int
	RCIncsElided      int
	RCDecsElided      int
	AllocationsReused int
	SharedPromotions  int
	RegionsBulkFreed  int
}

func NewOptimizationStats() *OptimizationStats {
	return &OptimizationStats{}
}

// TotalSavings is the number of runtime operations the analysis removed:
// elided count updates plus recycled allocations plus allocations moved off
// the heap.
func (s *OptimizationStats) TotalSavings() int {
	return s.StackAllocations + s.RCIncsElided + s.RCDecsElided + s.AllocationsReused
}

// Merge folds another unit's counters into this one.
func (s *OptimizationStats) Merge(other *OptimizationStats) {
	if other == nil {
		return
	}
	s.StackAllocations += other.StackAllocations
	s.RCIncsElided += other.RCIncsElided
	s.RCDecsElided += other.RCDecsElided
	s.AllocationsReused += other.AllocationsReused
	s.SharedPromotions += other.SharedPromotions
	s.RegionsBulkFreed += other.RegionsBulkFreed
}

func (s *OptimizationStats) String() string {
	var sb strings.Builder
	sb.WriteString("=== Optimization Stats ===\n")
	fmt.Fprintf(&sb, "stack allocations:   %d\n", s.StackAllocations)
	fmt.Fprintf(&sb, "rc incs elided:      %d\n", s.RCIncsElided)
	fmt.Fprintf(&sb, "rc decs elided:      %d\n", s.RCDecsElided)
	fmt.Fprintf(&sb, "allocations reused:  %d\n", s.AllocationsReused)
	fmt.Fprintf(&sb, "shared promotions:   %d\n", s.SharedPromotions)
	fmt.Fprintf(&sb, "regions bulk freed:  %d\n", s.RegionsBulkFreed)
	fmt.Fprintf(&sb, "total savings:       %d\n", s.TotalSavings())
	return sb.String()
}
