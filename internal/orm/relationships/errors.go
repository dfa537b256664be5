package relationships

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

var (
	// ErrInvalidFieldPath is returned when a path names a missing field or
	// traverses through a non-navigable one
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrAmbiguousJoinWidening is returned in strict mode when a request
	// would narrow an existing join
	ErrAmbiguousJoinWidening = errors.New("ambiguous join widening")

	// ErrMaxDepthExceeded is returned when fetch traversal goes deeper than allowed
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")
)

// PathError reports a failure resolving one segment of a field path
type PathError struct {
	Path    string
	Segment string
	Owner   reflect.Type
	Err     error
}

// Error returns the path, the failing segment and the cause
func (e *PathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: segment %q on %s: %v", e.Path, e.Segment, schema.CanonicalName(e.Owner), e.Err)
}

// Unwrap returns the cause
func (e *PathError) Unwrap() error {
	return e.Err
}

// WideningError reports a join request the existing edge does not cover
type WideningError struct {
	Key       string
	Existing  JoinHint
	Requested JoinHint
}

// Error describes both hints of the conflicting join
func (e *WideningError) Error() string {
	return fmt.Sprintf("%v: join %s is %s, requested %s", ErrAmbiguousJoinWidening, e.Key, e.Existing, e.Requested)
}

// Unwrap returns ErrAmbiguousJoinWidening
func (e *WideningError) Unwrap() error {
	return ErrAmbiguousJoinWidening
}

// IsInvalidFieldPath checks if an error is an invalid field path error
func IsInvalidFieldPath(err error) bool {
	return errors.Is(err, ErrInvalidFieldPath)
}

// IsAmbiguousJoinWidening checks if an error is a rejected join narrowing
func IsAmbiguousJoinWidening(err error) bool {
	return errors.Is(err, ErrAmbiguousJoinWidening)
}

// invalidPath wraps cause in a PathError matching ErrInvalidFieldPath
func invalidPath(path, segment string, owner reflect.Type, cause error) error {
	if cause == nil {
		cause = ErrInvalidFieldPath
	} else if !errors.Is(cause, ErrInvalidFieldPath) && !schema.IsUnresolvedGenericType(cause) {
		cause = fmt.Errorf("%w: %w", ErrInvalidFieldPath, cause)
	}
	return &PathError{Path: path, Segment: segment, Owner: owner, Err: cause}
}
