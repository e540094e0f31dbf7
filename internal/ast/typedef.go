package ast

// FieldStrength distinguishes owning fields from weak (non-owning) fields.
// A weak field never participates in ownership accounting: it is skipped by
// recursive deallocation and never forces a type cyclic on its own.
type FieldStrength int

const (
	FieldStrong FieldStrength = iota
	FieldWeak
)

func (fs FieldStrength) String() string {
	switch fs {
	case FieldStrong:
		return "strong"
	case FieldWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// Field is one named, typed slot of a user-defined aggregate type.
type Field struct {
	Name     string
	TypeName string
	Strength FieldStrength
}

// TypeDef is a user-defined aggregate type as declared by a deftype form:
//
//	(deftype node (value int) (next node) (parent node :weak))
//
// The analysis inspects field/type names only; layout belongs to codegen.
type TypeDef struct {
	Name   string
	Fields []Field
}

// FieldByName returns the field with the given name, if declared.
func (td *TypeDef) FieldByName(name string) (Field, bool) {
	for _, f := range td.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SelfReferential reports whether any field's declared type names the
// enclosing type itself.
func (td *TypeDef) SelfReferential() bool {
	for _, f := range td.Fields {
		if f.TypeName == td.Name {
			return true
		}
	}
	return false
}
