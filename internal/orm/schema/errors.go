package schema

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrFieldNotFound is returned when an entity has no field of the requested name
	ErrFieldNotFound = errors.New("field not found")

	// ErrUnresolvedGenericType is returned when a container field has no resolvable element type
	ErrUnresolvedGenericType = errors.New("unresolved generic type")

	// ErrNotStruct is returned when a non-struct type is described
	ErrNotStruct = errors.New("type is not a struct")

	// ErrNotMap is returned when a key or value segment follows a property that is not a map
	ErrNotMap = errors.New("property is not a map")
)

// FieldError carries the owner type and field of a metamodel failure
type FieldError struct {
	Owner reflect.Type
	Field string
	Err   error
}

// Error returns the owner, the field and the cause
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", CanonicalName(e.Owner), e.Field, e.Err)
}

// Unwrap returns the cause
func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsFieldNotFound checks if an error is a missing field error
func IsFieldNotFound(err error) bool {
	return errors.Is(err, ErrFieldNotFound)
}

// IsUnresolvedGenericType checks if an error is an unresolved container error
func IsUnresolvedGenericType(err error) bool {
	return errors.Is(err, ErrUnresolvedGenericType)
}
