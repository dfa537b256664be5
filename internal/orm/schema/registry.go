package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrNotEntity is returned when a registered type is not recognized by any marker
var ErrNotEntity = errors.New("type is not an entity")

// Registry builds and memoizes property descriptors for entity types.
// Markers are fixed at construction; descriptor tables are built lazily
// or eagerly through Register and are safe for concurrent use.
type Registry struct {
	markers []EntityMarker
	logger  *zap.Logger

	tables  sync.Map // reflect.Type -> *typeTable
	kinds   sync.Map // reflect.Type -> ElementKind
	entries sync.Map // entryKey -> *PropertyDescriptor

	mu       sync.RWMutex
	entities map[string]reflect.Type
}

// typeTable is the immutable descriptor table of one struct type
type typeTable struct {
	ordered []*PropertyDescriptor
	byName  map[string]*PropertyDescriptor
	errs    map[string]error
}

// Option configures a Registry
type Option func(*Registry)

// WithMarkers replaces the default entity markers
func WithMarkers(markers ...EntityMarker) Option {
	return func(r *Registry) {
		r.markers = markers
	}
}

// WithLogger sets the registry logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a new metamodel registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		markers:  DefaultMarkers(),
		logger:   zap.NewNop(),
		entities: make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsEntity reports whether any marker recognizes the type
func (r *Registry) IsEntity(t reflect.Type) bool {
	t = indirect(t)
	if t == nil {
		return false
	}
	for _, m := range r.markers {
		if m.IsEntity(t) {
			return true
		}
	}
	return false
}

// Classify returns the memoized element kind of a type
func (r *Registry) Classify(t reflect.Type) ElementKind {
	if k, ok := r.kinds.Load(t); ok {
		return k.(ElementKind)
	}
	kind := Classify(t, r.IsEntity)
	r.kinds.Store(t, kind)
	return kind
}

// Register eagerly builds descriptor tables for the given entities.
// Values may be instances, pointers or reflect.Type values.
func (r *Registry) Register(values ...any) error {
	for _, v := range values {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		t = indirect(t)
		if !r.IsEntity(t) {
			return fmt.Errorf("%s: %w", CanonicalName(t), ErrNotEntity)
		}
		if _, err := r.AllProperties(t); err != nil {
			return err
		}

		r.mu.Lock()
		r.entities[CanonicalName(t)] = t
		r.mu.Unlock()
	}
	return nil
}

// Entities returns the registered entity types sorted by canonical name
func (r *Registry) Entities() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	types := make([]reflect.Type, len(names))
	for i, name := range names {
		types[i] = r.entities[name]
	}
	return types
}

// Lookup finds a registered entity by canonical name or by its simple
// name, case-insensitively
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.entities[name]; ok {
		return t, true
	}
	for _, t := range r.entities {
		if strings.EqualFold(t.Name(), name) {
			return t, true
		}
	}
	return nil, false
}

// Describe returns the descriptor of a field, by path segment or Go name
func (r *Registry) Describe(owner reflect.Type, field string) (*PropertyDescriptor, error) {
	table, err := r.table(owner)
	if err != nil {
		return nil, err
	}
	if err, ok := table.errs[field]; ok {
		return nil, err
	}
	if desc, ok := table.byName[field]; ok {
		return desc, nil
	}
	return nil, &FieldError{Owner: owner, Field: field, Err: ErrFieldNotFound}
}

type entryKey struct {
	m    *PropertyDescriptor
	side EntrySide
}

// MapEntry returns the synthetic descriptor of the key or value side of
// a map property. The entry keeps the owner of the map; its column is the
// segment name.
func (r *Registry) MapEntry(m *PropertyDescriptor, segment string) (*PropertyDescriptor, error) {
	if m == nil || m.Kind != KindMap {
		return nil, &FieldError{Owner: ownerOf(m), Field: segment, Err: ErrNotMap}
	}

	side, t := EntryKey, m.ParameterizedTypes[0]
	switch segment {
	case MapKeySegment:
	case MapValueSegment:
		side, t = EntryValue, m.ParameterizedTypes[1]
	default:
		return nil, &FieldError{Owner: m.OwnerType, Field: segment, Err: ErrFieldNotFound}
	}

	key := entryKey{m: m, side: side}
	if desc, ok := r.entries.Load(key); ok {
		return desc.(*PropertyDescriptor), nil
	}

	kind := r.Classify(t)
	params := parameterizedTypes(t, kind)
	desc := &PropertyDescriptor{
		QualifiedName:      m.QualifiedName + "." + segment,
		OwnerType:          m.OwnerType,
		FieldName:          segment,
		GoName:             m.GoName,
		Column:             segment,
		Kind:               kind,
		DeclaredType:       t,
		ParameterizedTypes: params,
		ValueType:          predicateValueType(kind, t, params, r.IsEntity),
		Index:              m.Index,
		Entry:              side,
		Map:                m,
	}
	actual, _ := r.entries.LoadOrStore(key, desc)
	return actual.(*PropertyDescriptor), nil
}

func ownerOf(p *PropertyDescriptor) reflect.Type {
	if p == nil {
		return nil
	}
	return p.OwnerType
}

// AllProperties returns the descriptors of the exported instance fields
// of a type in declaration order. Unexported fields and fields tagged
// `orm:"-"` are excluded.
func (r *Registry) AllProperties(owner reflect.Type) ([]*PropertyDescriptor, error) {
	table, err := r.table(owner)
	if err != nil {
		return nil, err
	}
	if len(table.errs) > 0 {
		return nil, errors.Join(sortedErrs(table.errs)...)
	}

	out := make([]*PropertyDescriptor, len(table.ordered))
	copy(out, table.ordered)
	return out, nil
}

// table returns the descriptor table of owner, building it on first use
func (r *Registry) table(owner reflect.Type) (*typeTable, error) {
	owner = indirect(owner)
	if owner == nil || owner.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%v: %w", owner, ErrNotStruct)
	}
	if t, ok := r.tables.Load(owner); ok {
		return t.(*typeTable), nil
	}

	table := &typeTable{
		byName: make(map[string]*PropertyDescriptor),
		errs:   make(map[string]error),
	}
	r.collect(owner, owner, nil, table)

	actual, loaded := r.tables.LoadOrStore(owner, table)
	if !loaded {
		r.logger.Debug("built property table",
			zap.String("type", CanonicalName(owner)),
			zap.Int("properties", len(table.ordered)),
			zap.Int("errors", len(table.errs)),
		)
	}
	return actual.(*typeTable), nil
}

// collect walks the fields of t, flattening embedded non-entity structs
// into owner
func (r *Registry) collect(owner, t reflect.Type, prefix []int, table *typeTable) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag := parseTag(f.Tag.Get(TagName))
		if tag.skip {
			continue
		}
		if f.Anonymous {
			ft := indirect(f.Type)
			if ft.Kind() == reflect.Struct && !r.IsEntity(ft) {
				r.collect(owner, ft, index, table)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}

		desc, err := r.describeField(owner, f, tag, index)
		name := lowerCamel(f.Name)
		if tag.name != "" {
			name = tag.name
		}
		if err != nil {
			table.errs[name] = err
			table.errs[f.Name] = err
			continue
		}
		if _, dup := table.byName[desc.FieldName]; dup {
			continue
		}
		table.ordered = append(table.ordered, desc)
		table.byName[desc.FieldName] = desc
		table.byName[desc.GoName] = desc
	}
}

// describeField builds the descriptor of one exported field
func (r *Registry) describeField(owner reflect.Type, f reflect.StructField, tag fieldTag, index []int) (*PropertyDescriptor, error) {
	name := lowerCamel(f.Name)
	if tag.name != "" {
		name = tag.name
	}
	column := tag.column
	if column == "" {
		column = SnakeCase(f.Name)
	}

	kind := r.Classify(f.Type)
	params := parameterizedTypes(f.Type, kind)
	if kind.IsContainer() && !resolvable(params) {
		return nil, &FieldError{Owner: owner, Field: name, Err: ErrUnresolvedGenericType}
	}

	desc := &PropertyDescriptor{
		OwnerType:          owner,
		FieldName:          name,
		GoName:             f.Name,
		Column:             column,
		Kind:               kind,
		DeclaredType:       f.Type,
		ParameterizedTypes: params,
		Annotations:        tag.annotations,
		ValueType:          predicateValueType(kind, f.Type, params, r.IsEntity),
		Index:              index,
	}
	desc.QualifiedName = r.qualifiedName(desc)
	return desc, nil
}

// qualifiedName keys entity-valued properties by target type so that
// fields pointing at the same entity share one join. Maps are keyed per
// field.
func (r *Registry) qualifiedName(desc *PropertyDescriptor) string {
	effective := desc.DeclaredType
	switch desc.Kind {
	case KindList, KindSet, KindCollection:
		effective = desc.ParameterizedTypes[0]
	}
	if r.IsEntity(effective) {
		return CanonicalName(effective)
	}
	return CanonicalName(desc.OwnerType) + "." + desc.FieldName
}

func sortedErrs(errs map[string]error) []error {
	keys := make([]string, 0, len(errs))
	seen := make(map[error]bool)
	for k, err := range errs {
		if seen[err] {
			continue
		}
		seen[err] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]error, len(keys))
	for i, k := range keys {
		out[i] = errs[k]
	}
	return out
}
