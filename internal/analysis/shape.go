// Type shape classification.
// Shapes decide how a value can be destroyed: trees free bottom-up with no
// bookkeeping, DAGs need alias awareness, cycles need reference counting.
// Back edges are recognized by field name, so a doubly linked list whose
// reverse pointer is called "prev" classifies as cyclic while a "next"-only
// alias classifies as a DAG.

package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loam-lang/loam/internal/ast"
)

type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeScalar
	ShapeTree
	ShapeDAG
	ShapeCyclic
)

func (s Shape) String() string {
	switch s {
	case ShapeUnknown:
		return "Unknown"
	case ShapeScalar:
		return "Scalar"
	case ShapeTree:
		return "Tree"
	case ShapeDAG:
		return "DAG"
	case ShapeCyclic:
		return "Cyclic"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ShapeRecord is the classification of one declared type.
type ShapeRecord struct {
	Name           string
	Shape          Shape
	BackEdgeFields []string
}

// backEdgeNames are the substrings that mark a self-referential field as a
// back edge. Matching is case sensitive: a field named "Parent" does not
// match "parent".
var backEdgeNames = []string{"parent", "prev", "previous", "back", "up", "owner"}

// IsBackEdgeField reports whether a field name marks a reverse pointer.
func IsBackEdgeField(name string) bool {
	for _, marker := range backEdgeNames {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// ====== Registry ======

// ShapeRegistry classifies declared types by name. It is independent of any
// one analysis context so a compilation unit's type table can be shared.
type ShapeRegistry struct {
	records map[string]*ShapeRecord
}

func NewShapeRegistry() *ShapeRegistry {
	r := &ShapeRegistry{records: make(map[string]*ShapeRecord)}
	r.seedPrimitives()
	return r
}

// seedPrimitives installs the builtin aggregate types the analyzer already
// knows the layout of.
func (r *ShapeRegistry) seedPrimitives() {
	r.records["pair"] = &ShapeRecord{Name: "pair", Shape: ShapeTree}
	r.records["box"] = &ShapeRecord{Name: "box", Shape: ShapeTree}
	r.records["int"] = &ShapeRecord{Name: "int", Shape: ShapeScalar}
	r.records["float"] = &ShapeRecord{Name: "float", Shape: ShapeScalar}
	r.records["char"] = &ShapeRecord{Name: "char", Shape: ShapeScalar}
}

// AnalyzeShape classifies a type definition and registers the result.
// A type with no fields is a scalar. A self-referential field whose name
// marks a back edge makes the type cyclic; a self-referential field with a
// neutral name only proves sharing, so the type is a DAG. Weak fields are
// recorded as back edges but never force the cyclic classification, since a
// weak reference does not keep its target alive.
func (r *ShapeRegistry) AnalyzeShape(td *ast.TypeDef) *ShapeRecord {
	rec := &ShapeRecord{Name: td.Name}

	if len(td.Fields) == 0 {
		rec.Shape = ShapeScalar
		r.records[td.Name] = rec
		return rec
	}

	rec.Shape = ShapeTree
	for _, f := range td.Fields {
		if f.TypeName != td.Name {
			continue
		}
		if f.Strength == ast.FieldWeak {
			rec.BackEdgeFields = append(rec.BackEdgeFields, f.Name)
			continue
		}
		if IsBackEdgeField(f.Name) {
			rec.BackEdgeFields = append(rec.BackEdgeFields, f.Name)
			rec.Shape = ShapeCyclic
		} else if rec.Shape != ShapeCyclic {
			rec.Shape = ShapeDAG
		}
	}
	r.records[td.Name] = rec
	return rec
}

// ShapeOf returns the shape of a type name, ShapeUnknown for names never
// registered.
func (r *ShapeRegistry) ShapeOf(typeName string) Shape {
	if rec, ok := r.records[typeName]; ok {
		return rec.Shape
	}
	return ShapeUnknown
}

// BackEdgeFields returns the back-edge field names of a type, nil when
// unknown or acyclic.
func (r *ShapeRegistry) BackEdgeFields(typeName string) []string {
	if rec, ok := r.records[typeName]; ok {
		return rec.BackEdgeFields
	}
	return nil
}

// IsCyclicType reports whether values of the type can form reference cycles.
func (r *ShapeRegistry) IsCyclicType(typeName string) bool {
	return r.ShapeOf(typeName) == ShapeCyclic
}

// Record returns the full classification for a type name, nil when the type
// was never analyzed.
func (r *ShapeRegistry) Record(typeName string) *ShapeRecord {
	return r.records[typeName]
}

func (r *ShapeRegistry) String() string {
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("=== Shapes ===\n")
	for _, name := range names {
		rec := r.records[name]
		fmt.Fprintf(&sb, "%s: %s", name, rec.Shape)
		if len(rec.BackEdgeFields) > 0 {
			fmt.Fprintf(&sb, " backEdges=%v", rec.BackEdgeFields)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
