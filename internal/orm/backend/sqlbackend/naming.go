package sqlbackend

import (
	"reflect"
	"strings"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

const primaryKey = "id"

// TableName returns the table of an entity type: its TableName method,
// or the snake_case plural of the type name
func TableName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if tabler, ok := reflect.Zero(t).Interface().(schema.Tabler); ok {
		return tabler.TableName()
	}
	if tabler, ok := reflect.New(t).Interface().(schema.Tabler); ok {
		return tabler.TableName()
	}
	return schema.Pluralize(schema.SnakeCase(t.Name()))
}

// foreignKey is the column referencing an entity of type t
func foreignKey(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return schema.SnakeCase(t.Name()) + "_" + primaryKey
}

// annotationArg returns the first argument of an annotation
func annotationArg(prop *schema.PropertyDescriptor, name string) (string, bool) {
	a, ok := prop.Annotation(name)
	if !ok || len(a.Args) == 0 || a.Args[0] == "" {
		return "", false
	}
	return a.Args[0], true
}

// ownerColumn is the column on the owner table holding a to-one
// reference
func ownerColumn(prop *schema.PropertyDescriptor) string {
	if fk, ok := annotationArg(prop, "foreign_key"); ok {
		return fk
	}
	if strings.HasSuffix(prop.Column, "_"+primaryKey) {
		return prop.Column
	}
	return prop.Column + "_" + primaryKey
}

// inverseColumn is the column on the target table pointing back at the
// owner
func inverseColumn(prop *schema.PropertyDescriptor) string {
	if fk, ok := annotationArg(prop, "foreign_key"); ok {
		return fk
	}
	return foreignKey(prop.OwnerType)
}

// throughTable is the link table of a many-to-many relation
func throughTable(prop *schema.PropertyDescriptor) string {
	if t, ok := annotationArg(prop, "through"); ok {
		return t
	}
	return TableName(prop.OwnerType) + "_" + TableName(prop.ElementType())
}

// sideTable holds the elements of a scalar collection or map
func sideTable(prop *schema.PropertyDescriptor) string {
	if t, ok := annotationArg(prop, "table"); ok {
		return t
	}
	owner := prop.OwnerType
	for owner.Kind() == reflect.Pointer {
		owner = owner.Elem()
	}
	return schema.SnakeCase(owner.Name()) + "_" + prop.Column
}

// relation describes how a property is stored relationally
type relation int

const (
	// scalar columns and opaque arrays
	relColumn relation = iota
	// to-one reference held by the owner
	relBelongsTo
	// to-one reference held by the target
	relHasOne
	relHasMany
	relManyToMany
	// scalar collection or map in a side table
	relElements
)

// relationOf decides how prop is stored relative to its owner table
func relationOf(prop *schema.PropertyDescriptor, isEntity func(reflect.Type) bool) relation {
	// map entries are columns of the map's side table
	if prop.IsMapEntry() {
		return relColumn
	}
	switch prop.Kind {
	case schema.KindEntity:
		if prop.HasAnnotation("has_one") {
			return relHasOne
		}
		return relBelongsTo
	case schema.KindList, schema.KindSet, schema.KindCollection:
		if !isEntity(prop.ElementType()) {
			return relElements
		}
		if prop.HasAnnotation("many_to_many") {
			return relManyToMany
		}
		return relHasMany
	case schema.KindMap:
		return relElements
	default:
		return relColumn
	}
}
