package schema

import (
	"reflect"
	"sync"
)

// EntityMarker recognizes entity types for one persistence substrate
type EntityMarker interface {
	Name() string
	IsEntity(t reflect.Type) bool
}

// Tabler is implemented by relational entities
type Tabler interface {
	TableName() string
}

// Documenter is implemented by document-store entities
type Documenter interface {
	CollectionName() string
}

var (
	tablerType     = reflect.TypeOf((*Tabler)(nil)).Elem()
	documenterType = reflect.TypeOf((*Documenter)(nil)).Elem()
)

// TableMarker marks struct types implementing Tabler
type TableMarker struct{}

// Name returns "table"
func (TableMarker) Name() string { return "table" }

// IsEntity reports whether t is a struct implementing Tabler
func (TableMarker) IsEntity(t reflect.Type) bool {
	return implementsStruct(t, tablerType)
}

// DocumentMarker marks struct types implementing Documenter
type DocumentMarker struct{}

// Name returns "document"
func (DocumentMarker) Name() string { return "document" }

// IsEntity reports whether t is a struct implementing Documenter
func (DocumentMarker) IsEntity(t reflect.Type) bool {
	return implementsStruct(t, documenterType)
}

// TypeSetMarker marks an explicit set of struct types
type TypeSetMarker struct {
	name  string
	mu    sync.RWMutex
	types map[reflect.Type]struct{}
}

// NewTypeSetMarker creates a marker recognizing the types of the given values
func NewTypeSetMarker(name string, values ...any) *TypeSetMarker {
	m := &TypeSetMarker{name: name, types: make(map[reflect.Type]struct{})}
	m.Add(values...)
	return m
}

// Add marks the types of the given values
func (m *TypeSetMarker) Add(values ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		m.types[indirect(t)] = struct{}{}
	}
}

// Name returns the marker name given at construction
func (m *TypeSetMarker) Name() string { return m.name }

// IsEntity reports whether t was added to the set
func (m *TypeSetMarker) IsEntity(t reflect.Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.types[indirect(t)]
	return ok
}

// MarkerFunc adapts a function to the EntityMarker interface
type MarkerFunc func(reflect.Type) bool

// Name returns "func"
func (f MarkerFunc) Name() string { return "func" }

// IsEntity calls f
func (f MarkerFunc) IsEntity(t reflect.Type) bool { return f(t) }

// DefaultMarkers returns the relational and document markers
func DefaultMarkers() []EntityMarker {
	return []EntityMarker{TableMarker{}, DocumentMarker{}}
}

func implementsStruct(t reflect.Type, iface reflect.Type) bool {
	t = indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return false
	}
	return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
}
