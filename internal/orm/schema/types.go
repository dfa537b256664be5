// Package schema provides the entity metamodel: reflective property
// descriptors, element classification and entity markers.
package schema

import (
	"reflect"
	"strings"
)

// ElementKind classifies the structural shape of a property
type ElementKind int

const (
	KindScalar ElementKind = iota
	KindEntity
	KindList
	KindSet
	KindMap
	KindCollection
	KindArray
)

// String returns the string representation of the element kind
func (k ElementKind) String() string {
	switch k {
	case KindScalar:
		return "SCALAR"
	case KindEntity:
		return "ENTITY"
	case KindList:
		return "LIST"
	case KindSet:
		return "SET"
	case KindMap:
		return "MAP"
	case KindCollection:
		return "COLLECTION"
	case KindArray:
		return "ARRAY"
	default:
		return "UNKNOWN"
	}
}

// IsContainer reports whether the kind carries parameterized types
func (k ElementKind) IsContainer() bool {
	switch k {
	case KindList, KindSet, KindMap, KindCollection:
		return true
	}
	return false
}

// IsNavigable reports whether a path may traverse through this kind.
// Arrays are opaque leaves.
func (k ElementKind) IsNavigable() bool {
	return k == KindEntity || k.IsContainer()
}

// ValueType is the type a predicate sees when it targets a property
type ValueType int

const (
	ValueComparable ValueType = iota
	ValueString
	ValueNumber
	ValueBool
	ValueTemporal
	ValueEntity
	ValueArray
)

// String returns the string representation of the value type
func (v ValueType) String() string {
	switch v {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	case ValueTemporal:
		return "temporal"
	case ValueEntity:
		return "entity"
	case ValueArray:
		return "array"
	default:
		return "comparable"
	}
}

// Textual reports whether substring matching applies
func (v ValueType) Textual() bool {
	return v == ValueString
}

// Orderable reports whether ordering comparisons apply
func (v ValueType) Orderable() bool {
	switch v {
	case ValueString, ValueNumber, ValueTemporal:
		return true
	}
	return false
}

// Path segments addressing the keys or the values of a map property
const (
	MapKeySegment   = "key"
	MapValueSegment = "value"
)

// EntrySide tells which side of a map entry a descriptor addresses
type EntrySide int

const (
	EntryNone EntrySide = iota
	EntryKey
	EntryValue
)

// IsMapEntrySegment reports whether a path segment names a map key or
// value side
func IsMapEntrySegment(segment string) bool {
	return segment == MapKeySegment || segment == MapValueSegment
}

// Annotation represents a marker attached to a property through its orm tag
type Annotation struct {
	Name string
	Args []string
}

// Join annotations, in lookup priority order
var joinAnnotations = []string{
	"has_many",
	"has_one",
	"belongs_to",
	"many_to_many",
	"embedded",
	"ref",
}

// PropertyDescriptor describes one declared field of an entity type.
// Descriptors are created once per (owner, field) pair and never mutated.
type PropertyDescriptor struct {
	// QualifiedName is the join key for this property: the canonical name
	// of the target entity type, or "<owner>.<field>" otherwise.
	QualifiedName string
	OwnerType     reflect.Type
	// FieldName is the path segment name (lower camel case)
	FieldName string
	GoName    string
	Column    string
	Kind      ElementKind
	// DeclaredType is the field's type as written, pointers included
	DeclaredType reflect.Type
	// ParameterizedTypes holds the element type of a list, set or
	// collection, and the key and value types of a map.
	ParameterizedTypes []reflect.Type
	Annotations        []Annotation
	ValueType          ValueType
	Index              []int
	// Entry marks the synthetic key and value descriptors of a map
	Entry EntrySide
	// Map is the map property an entry descriptor belongs to
	Map *PropertyDescriptor
}

// ElementType returns the type a path continues into after this property
func (p *PropertyDescriptor) ElementType() reflect.Type {
	switch p.Kind {
	case KindList, KindSet, KindCollection:
		return indirect(p.ParameterizedTypes[0])
	case KindMap:
		return indirect(p.ParameterizedTypes[1])
	default:
		return indirect(p.DeclaredType)
	}
}

// IsNavigable reports whether a path may continue past this property
func (p *PropertyDescriptor) IsNavigable() bool {
	return p.Kind.IsNavigable()
}

// IsMapEntry reports whether the descriptor is the key or value side of
// a map property
func (p *PropertyDescriptor) IsMapEntry() bool {
	return p.Entry != EntryNone
}

// IsEmptiable reports whether null comparisons against this property
// mean "no elements" rather than "no value"
func (p *PropertyDescriptor) IsEmptiable() bool {
	return p.Kind.IsContainer()
}

// HasAnnotation reports whether the property carries the named annotation
func (p *PropertyDescriptor) HasAnnotation(name string) bool {
	_, ok := p.Annotation(name)
	return ok
}

// Annotation returns the named annotation
func (p *PropertyDescriptor) Annotation(name string) (Annotation, bool) {
	for _, a := range p.Annotations {
		if a.Name == name {
			return a, true
		}
	}
	return Annotation{}, false
}

// JoinAnnotation returns the relationship annotation of the property, if any
func (p *PropertyDescriptor) JoinAnnotation() (string, bool) {
	for _, name := range joinAnnotations {
		if p.HasAnnotation(name) {
			return name, true
		}
	}
	return "", false
}

// String returns a short diagnostic form
func (p *PropertyDescriptor) String() string {
	var b strings.Builder
	b.WriteString(CanonicalName(p.OwnerType))
	b.WriteByte('.')
	b.WriteString(p.FieldName)
	b.WriteString(" (")
	b.WriteString(p.Kind.String())
	b.WriteByte(')')
	return b.String()
}

// CanonicalName returns the fully qualified name of a named type,
// pointers stripped
func CanonicalName(t reflect.Type) string {
	t = indirect(t)
	if t == nil {
		return ""
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
