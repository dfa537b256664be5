package schema

import (
	"encoding/json"
	"reflect"
	"time"
)

// Collection is implemented by custom container types that are neither
// slices nor maps. ElementType is called on the zero value.
type Collection interface {
	ElementType() reflect.Type
}

var (
	collectionType = reflect.TypeOf((*Collection)(nil)).Elem()
	timeType       = reflect.TypeOf(time.Time{})
	rawMessageType = reflect.TypeOf(json.RawMessage{})
)

// Classify maps a type to its element kind. Entity recognition takes
// priority over the structural shape of the type.
func Classify(t reflect.Type, isEntity func(reflect.Type) bool) ElementKind {
	t = indirect(t)
	if t == nil {
		return KindScalar
	}
	if isEntity != nil && isEntity(t) {
		return KindEntity
	}
	if isOpaqueScalar(t) {
		return KindScalar
	}
	if implementsCollection(t) {
		return KindCollection
	}

	switch t.Kind() {
	case reflect.Slice:
		return KindList
	case reflect.Array:
		return KindArray
	case reflect.Map:
		if isSetValue(t.Elem()) {
			return KindSet
		}
		return KindMap
	default:
		return KindScalar
	}
}

func isOpaqueScalar(t reflect.Type) bool {
	if t == timeType || t == rawMessageType {
		return true
	}
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// isSetValue reports whether a map value type marks membership only
func isSetValue(t reflect.Type) bool {
	if t.Kind() == reflect.Bool {
		return true
	}
	return t.Kind() == reflect.Struct && t.NumField() == 0
}

func implementsCollection(t reflect.Type) bool {
	return t.Implements(collectionType) || reflect.PointerTo(t).Implements(collectionType)
}

func collectionElement(t reflect.Type) reflect.Type {
	var v reflect.Value
	if t.Implements(collectionType) {
		v = reflect.Zero(t)
	} else {
		v = reflect.New(t)
	}
	c, ok := v.Interface().(Collection)
	if !ok {
		return nil
	}
	return c.ElementType()
}

// parameterizedTypes extracts the container parameters for a kind.
// Arrays are never unwrapped.
func parameterizedTypes(t reflect.Type, kind ElementKind) []reflect.Type {
	t = indirect(t)
	switch kind {
	case KindList:
		return []reflect.Type{t.Elem()}
	case KindSet:
		return []reflect.Type{t.Key()}
	case KindMap:
		return []reflect.Type{t.Key(), t.Elem()}
	case KindCollection:
		return []reflect.Type{collectionElement(t)}
	default:
		return nil
	}
}

// resolvable reports whether at least one parameter is a concrete type
func resolvable(params []reflect.Type) bool {
	for _, p := range params {
		if p != nil && indirect(p).Kind() != reflect.Interface {
			return true
		}
	}
	return false
}

// valueTypeOf maps a scalar or entity type to its value type
func valueTypeOf(t reflect.Type, isEntity func(reflect.Type) bool) ValueType {
	t = indirect(t)
	if t == nil {
		return ValueComparable
	}
	if isEntity != nil && isEntity(t) {
		return ValueEntity
	}
	if t == timeType {
		return ValueTemporal
	}

	switch t.Kind() {
	case reflect.String:
		return ValueString
	case reflect.Bool:
		return ValueBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return ValueNumber
	case reflect.Array:
		return ValueArray
	default:
		return ValueComparable
	}
}

// predicateValueType derives the value type from the kind, or from the
// first or second parameter of a container.
func predicateValueType(kind ElementKind, declared reflect.Type, params []reflect.Type, isEntity func(reflect.Type) bool) ValueType {
	switch kind {
	case KindList, KindSet, KindCollection:
		return valueTypeOf(params[0], isEntity)
	case KindMap:
		return valueTypeOf(params[1], isEntity)
	case KindEntity:
		return ValueEntity
	case KindArray:
		return ValueArray
	default:
		return valueTypeOf(declared, isEntity)
	}
}
